package release

import "fmt"

// Stages name the step at which a scan or a publish failed.
const (
	StageBrowse      = "browse"
	StageLookup      = "lookup"
	StageEnrich      = "enrich"
	StageDestination = "destination"
	StageDeliver     = "deliver"
	StageRecord      = "record"
)

// ScanError reports a failure that ended a catalog scan.
type ScanError struct {
	Stage string
	Cause error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Stage, e.Cause)
}

func (e *ScanError) Unwrap() error { return e.Cause }

// PublishError reports why a single candidate was abandoned.
type PublishError struct {
	EpisodeID string
	Stage     string
	Cause     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %s: %v", e.EpisodeID, e.Stage, e.Cause)
}

func (e *PublishError) Unwrap() error { return e.Cause }
