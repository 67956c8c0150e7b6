// Package records defines the durable room and participant records that
// outlive any live room, and an in-memory implementation used when no
// database is configured.
package records

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// Room is the durable record behind a live room. They share the lookup id but
// not a lifecycle.
type Room struct {
	ID        int64
	LookupID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Participant struct {
	ID          int64
	LookupID    string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const DefaultDisplayName = "Guest"

//go:generate mockgen -destination=../mocks/mock_records.go -package=mocks breakout/internal/records RoomStore,ParticipantStore

type RoomStore interface {
	CreateRoom(ctx context.Context, lookupID string) (Room, error)
	FindRoom(ctx context.Context, lookupID string) (Room, error)
}

type ParticipantStore interface {
	CreateParticipant(ctx context.Context, lookupID, displayName string) (Participant, error)
	FindParticipant(ctx context.Context, lookupID string) (Participant, error)
	UpdateDisplayName(ctx context.Context, lookupID, displayName string) (Participant, error)
}
