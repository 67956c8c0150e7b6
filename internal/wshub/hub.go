// Package wshub is the duplex transport: one websocket per participant,
// room updates pushed as JSON frames and votes received the same way.
package wshub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"breakout/internal/broadcast"
	"breakout/internal/events"
	"breakout/internal/rooms"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const (
	ActionVote        = "vote"
	ActionToggleVotes = "toggle_votes"
)

const DefaultReadLimit = 1024

// ClientMessage is the JSON structure received from clients.
type ClientMessage struct {
	Action string `json:"action" validate:"required,oneof=vote toggle_votes"`
	Vote   *int64 `json:"vote,omitempty" validate:"required_if=Action vote"`
}

// ServerMessage is the JSON structure sent to clients.
type ServerMessage struct {
	Type         string  `json:"type"`
	Label        string  `json:"label,omitempty"`
	Revealed     bool    `json:"revealed"`
	Participants []Voter `json:"participants,omitempty"`
}

// Voter is one roster entry. Vote is only filled in once votes are revealed.
type Voter struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Voted bool   `json:"voted"`
	Vote  *int64 `json:"vote,omitempty"`
}

// Encode turns a room update into its wire form.
func Encode(u rooms.Update) ServerMessage {
	msg := ServerMessage{Type: string(u.Kind), Revealed: u.Revealed}
	if u.Kind.Lifecycle() {
		msg.Label = u.Kind.Label()
		return msg
	}
	msg.Participants = lo.Map(u.Participants, func(p rooms.ParticipantView, _ int) Voter {
		v := Voter{ID: p.ID, Name: p.DisplayName, Voted: p.Voted}
		if u.Revealed {
			v.Vote = p.Vote
		}
		return v
	})
	if msg.Participants == nil {
		msg.Participants = []Voter{}
	}
	return msg
}

// Client represents a single WebSocket connection attached to a room.
type Client struct {
	ParticipantID string
	Conn          *websocket.Conn
	Updates       *broadcast.Subscription[rooms.Update]
}

// WritePump forwards room updates to the WebSocket connection until the
// context ends, the subscription closes or a write fails.
func (c *Client) WritePump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-c.Updates.C():
			if !ok {
				return nil
			}
			if err := c.write(ctx, u); err != nil {
				return err
			}
		}
	}
}

func (c *Client) write(ctx context.Context, u rooms.Update) error {
	data, err := json.Marshal(Encode(u))
	if err != nil {
		return err
	}
	return c.Conn.Write(ctx, websocket.MessageText, data)
}

// Hub attaches websocket connections to live rooms.
type Hub struct {
	store     *rooms.Store
	log       *slog.Logger
	validate  *validator.Validate
	readLimit int64
}

func NewHub(store *rooms.Store, log *slog.Logger, readLimit int64) *Hub {
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	return &Hub{
		store:     store,
		log:       log,
		validate:  validator.New(),
		readLimit: readLimit,
	}
}

// Serve upgrades the request and keeps p joined to the room for as long as
// the connection stays open.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, roomID string, p rooms.Participant) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("websocket accept failed", "room", roomID, "err", err)
		return
	}
	conn.SetReadLimit(h.readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	room := h.store.Join(roomID, p)
	client := &Client{ParticipantID: p.ID, Conn: conn, Updates: room.Subscribe()}
	defer func() {
		room.Unsubscribe(client.Updates)
		h.store.Leave(roomID, p.ID)
		h.log.Debug("websocket closed", "room", roomID, "participant", p.ID)
	}()

	if err := client.write(ctx, room.Current()); err != nil {
		conn.Close(websocket.StatusInternalError, "initial snapshot failed")
		return
	}

	go func() {
		defer cancel()
		h.readPump(ctx, conn, room, p.ID)
	}()

	err = client.WritePump(ctx)
	switch {
	case err == nil:
		conn.Close(websocket.StatusGoingAway, "room closed")
	case errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		h.log.Debug("websocket write failed", "room", roomID, "participant", p.ID, "err", err)
		conn.CloseNow()
	}
}

func (h *Hub) readPump(ctx context.Context, conn *websocket.Conn, room *rooms.Room, participantID string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				h.log.Debug("websocket read failed", "room", room.ID(), "participant", participantID, "err", err)
			}
			return
		}

		msg, err := h.decode(data)
		if err != nil {
			h.log.Debug("ignoring client message", "room", room.ID(), "participant", participantID, "err", err)
			continue
		}
		h.dispatch(room, participantID, msg)
	}
}

func (h *Hub) decode(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, err
	}
	if err := h.validate.Struct(msg); err != nil {
		return ClientMessage{}, err
	}
	return msg, nil
}

// dispatch applies an inbound action. The sender learns the outcome from the
// broadcast like everyone else.
func (h *Hub) dispatch(room *rooms.Room, participantID string, msg ClientMessage) {
	switch msg.Action {
	case ActionVote:
		room.SetVote(participantID, *msg.Vote)
	case ActionToggleVotes:
		revealed := room.ToggleReveal()
		h.log.Info(events.ForReveal(revealed).Label(), "room", room.ID(), "participant", participantID)
	}
}
