package rooms

import (
	"log/slog"

	"breakout/internal/events"
)

// Participant is a user attached to a live room.
type Participant struct {
	ID          string
	DisplayName string
	Vote        *int64

	seq uint64
}

// ParticipantView is one entry of a room snapshot. Voted reports whether a
// vote is present; Vote holds a copy of it. Transports decide whether the
// value itself is shown.
type ParticipantView struct {
	ID          string
	DisplayName string
	Voted       bool
	Vote        *int64
}

// Update is the message published on a room's fanout. Lifecycle updates carry
// no participants and are always followed by a snapshot update.
type Update struct {
	RoomID       string
	Kind         events.Kind
	Revealed     bool
	Participants []ParticipantView
}

// Observer receives hub activity, typically for metrics.
type Observer interface {
	RoomCreated()
	RoomRemoved()
	Operation(op string)
	MessageDropped()
}

type nopObserver struct{}

func (nopObserver) RoomCreated()     {}
func (nopObserver) RoomRemoved()     {}
func (nopObserver) Operation(string) {}
func (nopObserver) MessageDropped()  {}

const defaultBufferSize = 100

type settings struct {
	bufferSize int
	observer   Observer
	log        *slog.Logger
}

func newSettings(opts []Option) settings {
	st := settings{
		bufferSize: defaultBufferSize,
		observer:   nopObserver{},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&st)
	}
	return st
}

type Option func(*settings)

// WithBufferSize sets how many updates a single subscriber may lag behind
// before its oldest buffered update is dropped.
func WithBufferSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}
