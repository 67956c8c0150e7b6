package wshub

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"breakout/internal/events"
	"breakout/internal/rooms"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*rooms.Store, *httptest.Server) {
	t.Helper()
	store := rooms.NewStore()
	hub := NewHub(store, slog.Default(), 256)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		hub.Serve(w, r, q.Get("room"), rooms.Participant{ID: q.Get("id"), DisplayName: q.Get("name")})
	}))
	t.Cleanup(ts.Close)
	return store, ts
}

func dial(t *testing.T, ts *httptest.Server, room, id, name string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, ts.URL+"?room="+room+"&id="+id+"&name="+name, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg ServerMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

// readUntil skips frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(ServerMessage) bool) ServerMessage {
	t.Helper()
	for range 20 {
		if msg := read(t, conn); match(msg) {
			return msg
		}
	}
	t.Fatal("expected frame never arrived")
	return ServerMessage{}
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

func TestEncode_HidesVotesUntilRevealed(t *testing.T) {
	req := require.New(t)
	views := []rooms.ParticipantView{{ID: "u1", DisplayName: "Alice", Voted: true, Vote: lo.ToPtr(int64(5))}}

	hidden := Encode(rooms.Update{Kind: events.Snapshot, Participants: views})
	req.Equal("snapshot", hidden.Type)
	req.True(hidden.Participants[0].Voted)
	req.Nil(hidden.Participants[0].Vote)

	shown := Encode(rooms.Update{Kind: events.Snapshot, Revealed: true, Participants: views})
	req.Equal(int64(5), *shown.Participants[0].Vote)

	empty := Encode(rooms.Update{Kind: events.Snapshot})
	req.NotNil(empty.Participants)
	req.Empty(empty.Participants)
}

func TestEncode_Lifecycle(t *testing.T) {
	req := require.New(t)

	msg := Encode(rooms.Update{Kind: events.VotingDisabled, Revealed: true})
	req.Equal("disable_voting", msg.Type)
	req.Equal("votes are in", msg.Label)
	req.Nil(msg.Participants)

	msg = Encode(rooms.Update{Kind: events.VotingEnabled})
	req.Equal("enable_voting", msg.Type)
	req.Equal("start voting", msg.Label)
}

func TestHub_DecodeValidation(t *testing.T) {
	req := require.New(t)
	h := NewHub(rooms.NewStore(), slog.Default(), 0)

	msg, err := h.decode([]byte(`{"action":"vote","vote":0}`))
	req.NoError(err)
	req.Equal(int64(0), *msg.Vote)

	_, err = h.decode([]byte(`{"action":"toggle_votes"}`))
	req.NoError(err)

	for _, bad := range []string{`{"action":"vote"}`, `{"action":"shout"}`, `{}`, `not json`} {
		_, err := h.decode([]byte(bad))
		req.Error(err, bad)
	}
}

func TestHub_ConnectSendsSnapshot(t *testing.T) {
	req := require.New(t)
	store, ts := newTestHub(t)

	conn := dial(t, ts, "abc", "u1", "Alice")
	msg := read(t, conn)

	req.Equal("snapshot", msg.Type)
	req.False(msg.Revealed)
	req.Len(msg.Participants, 1)
	req.Equal("Alice", msg.Participants[0].Name)
	req.Equal(1, store.Len())
}

func TestHub_VoteAndReveal(t *testing.T) {
	req := require.New(t)
	_, ts := newTestHub(t)

	alice := dial(t, ts, "abc", "u1", "Alice")
	read(t, alice)
	bob := dial(t, ts, "abc", "u2", "Bob")
	read(t, bob)

	send(t, alice, ClientMessage{Action: ActionVote, Vote: lo.ToPtr(int64(8))})

	// Bob sees Alice voted without seeing the value
	msg := readUntil(t, bob, func(m ServerMessage) bool {
		return m.Type == "snapshot" && len(m.Participants) == 2 && m.Participants[0].Voted
	})
	req.Nil(msg.Participants[0].Vote)

	send(t, bob, ClientMessage{Action: ActionToggleVotes})

	lifecycle := readUntil(t, alice, func(m ServerMessage) bool { return m.Type != "snapshot" })
	req.Equal("disable_voting", lifecycle.Type)
	req.Equal("votes are in", lifecycle.Label)

	revealed := read(t, alice)
	req.Equal("snapshot", revealed.Type)
	req.True(revealed.Revealed)
	req.Equal(int64(8), *revealed.Participants[0].Vote)
	req.False(revealed.Participants[1].Voted)
}

func TestHub_InvalidFramesAreIgnored(t *testing.T) {
	req := require.New(t)
	_, ts := newTestHub(t)

	conn := dial(t, ts, "abc", "u1", "Alice")
	read(t, conn)

	send(t, conn, map[string]any{"action": "vote"})
	send(t, conn, map[string]any{"action": "dance"})
	send(t, conn, ClientMessage{Action: ActionVote, Vote: lo.ToPtr(int64(3))})

	msg := read(t, conn)
	req.Equal("snapshot", msg.Type)
	req.True(msg.Participants[0].Voted)
}

func TestHub_OversizedFrameClosesConnection(t *testing.T) {
	_, ts := newTestHub(t)

	conn := dial(t, ts, "abc", "u1", "Alice")
	read(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	big := make([]byte, 1024)
	for i := range big {
		big[i] = 'x'
	}
	require.NoError(t, conn.Write(ctx, websocket.MessageText, big))

	_, _, err := conn.Read(ctx)
	require.Equal(t, websocket.StatusMessageTooBig, websocket.CloseStatus(err))
}

func TestHub_CloseLeavesRoom(t *testing.T) {
	store, ts := newTestHub(t)

	alice := dial(t, ts, "abc", "u1", "Alice")
	read(t, alice)
	bob := dial(t, ts, "abc", "u2", "Bob")
	read(t, bob)

	bob.Close(websocket.StatusNormalClosure, "")

	msg := readUntil(t, alice, func(m ServerMessage) bool { return len(m.Participants) == 1 })
	require.Equal(t, "Alice", msg.Participants[0].Name)

	alice.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return store.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
