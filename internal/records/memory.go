package records

import (
	"context"
	"sync"
	"time"
)

// Memory keeps records for the lifetime of the process.
type Memory struct {
	mu           sync.Mutex
	nextID       int64
	rooms        map[string]Room
	participants map[string]Participant
}

func NewMemory() *Memory {
	return &Memory{
		rooms:        make(map[string]Room),
		participants: make(map[string]Participant),
	}
}

func (m *Memory) CreateRoom(_ context.Context, lookupID string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rooms[lookupID]; exists {
		return Room{}, ErrConflict
	}
	now := time.Now()
	m.nextID++
	room := Room{ID: m.nextID, LookupID: lookupID, CreatedAt: now, UpdatedAt: now}
	m.rooms[lookupID] = room
	return room, nil
}

func (m *Memory) FindRoom(_ context.Context, lookupID string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[lookupID]
	if !ok {
		return Room{}, ErrNotFound
	}
	return room, nil
}

func (m *Memory) CreateParticipant(_ context.Context, lookupID, displayName string) (Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.participants[lookupID]; exists {
		return Participant{}, ErrConflict
	}
	now := time.Now()
	m.nextID++
	p := Participant{ID: m.nextID, LookupID: lookupID, DisplayName: displayName, CreatedAt: now, UpdatedAt: now}
	m.participants[lookupID] = p
	return p, nil
}

func (m *Memory) FindParticipant(_ context.Context, lookupID string) (Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[lookupID]
	if !ok {
		return Participant{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) UpdateDisplayName(_ context.Context, lookupID, displayName string) (Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[lookupID]
	if !ok {
		return Participant{}, ErrNotFound
	}
	p.DisplayName = displayName
	p.UpdatedAt = time.Now()
	m.participants[lookupID] = p
	return p, nil
}
