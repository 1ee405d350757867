package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseUserIDArg extracts a Telegram user ID from a command argument string.
func ParseUserIDArg(args string) (int64, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, fmt.Errorf("user ID is required")
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user ID %q", fields[0])
	}
	return id, nil
}
