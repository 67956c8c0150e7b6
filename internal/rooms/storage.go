package rooms

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Store is the process-wide registry of live rooms. A single lock guards the
// map and every room created here, so all room operations are totally
// ordered.
type Store struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	settings settings
}

func NewStore(opts ...Option) *Store {
	return &Store{
		rooms:    make(map[string]*Room),
		settings: newSettings(opts),
	}
}

// GetOrCreate returns the live room for id, creating an empty one if needed.
func (s *Store) GetOrCreate(id string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(id)
}

// Get returns the live room for id without creating one.
func (s *Store) Get(id string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	return room, ok
}

// RemoveIfEmpty discards the room for id when nobody is left in it and
// reports whether it did.
func (s *Store) RemoveIfEmpty(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeIfEmpty(id)
}

// Join looks up or creates the room and adds p to it in one step, so a
// concurrent Leave cannot discard the room in between.
func (s *Store) Join(id string, p Participant) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.getOrCreate(id)
	room.join(p)
	return room
}

// Leave removes the participant and discards the room if it became empty.
func (s *Store) Leave(id, participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return
	}
	room.leave(participantID)
	s.removeIfEmpty(id)
}

// Rename updates p's entry in the room, if p is currently in it, and reports
// whether it did. Participants that are not connected are never added.
func (s *Store) Rename(id string, p Participant) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return false
	}
	if _, ok := room.participants[p.ID]; !ok {
		return false
	}
	room.rename(p)
	return true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := lo.Keys(s.rooms)
	slices.Sort(ids)
	return ids
}

// Subscribers returns the number of listeners across all live rooms.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.SumBy(lo.Values(s.rooms), func(r *Room) int { return r.fanout.Len() })
}

func (s *Store) getOrCreate(id string) *Room {
	if room, ok := s.rooms[id]; ok {
		return room
	}
	room := newRoom(id, &s.mu, s.settings)
	s.rooms[id] = room
	s.settings.observer.RoomCreated()
	s.settings.log.Debug("room created", "room", id)
	return room
}

func (s *Store) removeIfEmpty(id string) bool {
	room, ok := s.rooms[id]
	if !ok || len(room.participants) > 0 {
		return false
	}
	delete(s.rooms, id)
	room.close()
	s.settings.observer.RoomRemoved()
	s.settings.log.Debug("room removed", "room", id)
	return true
}
