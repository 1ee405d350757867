// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"release_bot/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when inserting a row whose key already exists.
	ErrDuplicate = errors.New("duplicate key")
)

// Storage is the interface for all persistence operations.
// Implementations must be safe for concurrent use.
type Storage interface {
	GetEpisode(ctx context.Context, id string) (*model.AnnouncedEpisode, error)
	HasEpisode(ctx context.Context, id string) (bool, error)
	CreateEpisode(ctx context.Context, ep *model.AnnouncedEpisode) error

	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetOrCreateUser(ctx context.Context, u *model.User) (*model.User, error)
	SetAdmin(ctx context.Context, id int64, isAdmin bool) error

	Close() error
}
