package rooms

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"breakout/internal/broadcast"
	"breakout/internal/events"

	"github.com/samber/lo"
)

// Room is the live state of one breakout: its roster, the reveal flag and a
// fanout every mutation publishes to. Rooms created by a Store share the
// store's lock.
type Room struct {
	id           string
	mu           *sync.Mutex
	participants map[string]*Participant
	seq          uint64
	revealed     bool
	fanout       *broadcast.Broadcaster[Update]
	observer     Observer
	log          *slog.Logger
}

// NewRoom creates a standalone room guarded by its own lock.
func NewRoom(id string, opts ...Option) *Room {
	return newRoom(id, &sync.Mutex{}, newSettings(opts))
}

func newRoom(id string, mu *sync.Mutex, st settings) *Room {
	return &Room{
		id:           id,
		mu:           mu,
		participants: make(map[string]*Participant),
		fanout:       broadcast.New[Update](st.bufferSize, broadcast.WithDropHook(st.observer.MessageDropped)),
		observer:     st.observer,
		log:          st.log.With("room", id),
	}
}

func (r *Room) ID() string { return r.id }

// Join adds p unless a participant with the same id is already present.
// The snapshot is published either way.
func (r *Room) Join(p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.join(p)
}

// Rename replaces the participant's entry with one carrying the new display
// name. The current vote is kept.
func (r *Room) Rename(p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rename(p)
}

func (r *Room) Leave(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(participantID)
}

// SetVote records value for the participant. Casting the value already held
// clears it.
func (r *Room) SetVote(participantID string, value int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setVote(participantID, value)
}

// ToggleReveal flips the reveal flag and returns the new value. Starting a
// new round clears every vote.
func (r *Room) ToggleReveal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.toggleReveal()
}

func (r *Room) Revealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revealed
}

// Snapshot returns the participants sorted by display name, ignoring case.
// Equal names keep their join order.
func (r *Room) Snapshot() []ParticipantView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Current returns the snapshot update a new subscriber should be sent first.
func (r *Room) Current() Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotUpdate()
}

func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants) == 0
}

func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// Subscribe registers a listener for updates published from now on. There is
// no replay: callers fetch Current right after subscribing.
func (r *Room) Subscribe() *broadcast.Subscription[Update] {
	return r.fanout.Subscribe()
}

func (r *Room) Unsubscribe(sub *broadcast.Subscription[Update]) {
	r.fanout.Unsubscribe(sub)
}

func (r *Room) Subscribers() int {
	return r.fanout.Len()
}

func (r *Room) join(p Participant) {
	if _, ok := r.participants[p.ID]; !ok {
		r.insert(p)
		r.log.Debug("participant joined", "participant", p.ID)
	}
	r.observer.Operation("join")
	r.publishSnapshot()
}

func (r *Room) rename(p Participant) {
	if old, ok := r.participants[p.ID]; ok {
		delete(r.participants, p.ID)
		p.Vote = old.Vote
	}
	r.insert(p)
	r.observer.Operation("rename")
	r.publishSnapshot()
}

func (r *Room) leave(participantID string) {
	if _, ok := r.participants[participantID]; ok {
		delete(r.participants, participantID)
		r.log.Debug("participant left", "participant", participantID)
	}
	r.observer.Operation("leave")
	r.publishSnapshot()
}

func (r *Room) setVote(participantID string, value int64) {
	if p, ok := r.participants[participantID]; ok {
		if p.Vote != nil && *p.Vote == value {
			p.Vote = nil
		} else {
			p.Vote = lo.ToPtr(value)
		}
	}
	r.observer.Operation("vote")
	r.publishSnapshot()
}

func (r *Room) toggleReveal() bool {
	r.revealed = !r.revealed
	if !r.revealed {
		for _, p := range r.participants {
			p.Vote = nil
		}
	}
	r.observer.Operation("toggle_reveal")
	r.fanout.Publish(Update{
		RoomID:   r.id,
		Kind:     events.ForReveal(r.revealed),
		Revealed: r.revealed,
	})
	r.publishSnapshot()
	r.log.Debug("reveal toggled", "revealed", r.revealed)
	return r.revealed
}

func (r *Room) insert(p Participant) {
	r.seq++
	p.seq = r.seq
	if p.Vote != nil {
		p.Vote = lo.ToPtr(*p.Vote)
	}
	r.participants[p.ID] = &p
}

func (r *Room) snapshot() []ParticipantView {
	ordered := lo.Values(r.participants)
	slices.SortFunc(ordered, func(a, b *Participant) int {
		if c := strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return lo.Map(ordered, func(p *Participant, _ int) ParticipantView {
		view := ParticipantView{ID: p.ID, DisplayName: p.DisplayName, Voted: p.Vote != nil}
		if p.Vote != nil {
			view.Vote = lo.ToPtr(*p.Vote)
		}
		return view
	})
}

func (r *Room) snapshotUpdate() Update {
	return Update{
		RoomID:       r.id,
		Kind:         events.Snapshot,
		Revealed:     r.revealed,
		Participants: r.snapshot(),
	}
}

func (r *Room) publishSnapshot() {
	r.fanout.Publish(r.snapshotUpdate())
}

// close ends every subscription once the room has been discarded.
func (r *Room) close() {
	r.fanout.Close()
}
