package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeHub struct{ rooms, subs int }

func (h fakeHub) Len() int         { return h.rooms }
func (h fakeHub) Subscribers() int { return h.subs }

func TestCollector_Counters(t *testing.T) {
	req := require.New(t)
	c := NewCollector()

	c.RoomCreated()
	c.RoomCreated()
	c.RoomRemoved()
	c.MessageDropped()
	c.Operation("vote")
	c.Operation("vote")
	c.Operation("join")

	req.Equal(2.0, testutil.ToFloat64(c.created))
	req.Equal(1.0, testutil.ToFloat64(c.removed))
	req.Equal(1.0, testutil.ToFloat64(c.dropped))
	req.Equal(2.0, testutil.ToFloat64(c.operations.WithLabelValues("vote")))
	req.Equal(1.0, testutil.ToFloat64(c.operations.WithLabelValues("join")))
}

func TestCollector_Handler(t *testing.T) {
	req := require.New(t)
	c := NewCollector()
	c.Observe(fakeHub{rooms: 3, subs: 7})
	c.Operation("toggle_reveal")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	req.Equal(http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	req.NoError(err)
	req.Contains(string(body), "breakout_live_rooms 3")
	req.Contains(string(body), "breakout_subscribers 7")
	req.Contains(string(body), `breakout_room_operations_total{op="toggle_reveal"} 1`)
}
