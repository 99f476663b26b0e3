// Package store persists Room and Vote records behind a key-value style
// contract. It holds no business logic; guards and transitions live in the
// room and ballot services.
package store

import (
	"context"
	"time"

	"github.com/victornm/rateroom/internal/domain"
)

type Store interface {
	// CreateRoom persists a new room. Fails with CodeAlreadyExists if the
	// room ID is already taken.
	CreateRoom(ctx context.Context, room *domain.Room) error

	// GetRoom returns the room or a CodeNotFound error.
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)

	// UpdateVotingStatus writes the voting phase fields of a room.
	UpdateVotingStatus(ctx context.Context, roomID string, active bool, duration time.Duration, endTime *time.Time, epoch int) error

	// UpdateOptions replaces the room's option labels.
	UpdateOptions(ctx context.Context, roomID string, options []string) error

	// AddVote inserts a vote, failing with CodeAlreadyExists if the client
	// already voted in this room and epoch.
	AddVote(ctx context.Context, v domain.Vote) error

	// SetVote inserts or overwrites the client's vote for this room and epoch.
	SetVote(ctx context.Context, v domain.Vote) error

	// ListVotes returns all votes cast in the given room and epoch.
	ListVotes(ctx context.Context, roomID string, epoch int) ([]domain.Vote, error)

	// IsHost reports whether clientID is the host of roomID. A missing room
	// is reported as not host, not as an error.
	IsHost(ctx context.Context, roomID, clientID string) (bool, error)
}
