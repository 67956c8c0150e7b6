package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"breakout/internal/db"
	"breakout/internal/identity"
	"breakout/internal/metrics"
	"breakout/internal/records"
	"breakout/internal/rooms"
	"breakout/internal/wshub"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

//go:embed templates/*.html
var templateFS embed.FS

// Cards are the vote values offered on the room page.
var Cards = []int64{1, 2, 3, 5, 8, 13, 21}

// maxCreateAttempts bounds retries when a generated lookup id is taken.
const maxCreateAttempts = 10

type Server struct {
	Store        *rooms.Store
	Rooms        records.RoomStore
	Participants records.ParticipantStore
	Identity     *identity.Resolver
	Hub          *wshub.Hub
	Metrics      *metrics.Collector
	DB           *db.DB // nil if no database configured
	Tmpl         *template.Template
	Log          *slog.Logger
	Validate     *validator.Validate
}

// ParseTemplates loads the embedded page templates.
func ParseTemplates() (*template.Template, error) {
	funcMap := template.FuncMap{
		"deref": func(v *int64) int64 {
			if v == nil {
				return 0
			}
			return *v
		},
	}
	return template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/*.html")
}

type renameForm struct {
	DisplayName string `validate:"required,max=40"`
}

// votersView feeds the voters partial, which also carries the reveal toggle
// so its label follows every snapshot.
type votersView struct {
	RoomID       string
	Revealed     bool
	Participants []rooms.ParticipantView
}

type breakoutView struct {
	RoomID      string
	DisplayName string
	Cards       []int64
	Voters      votersView
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	s.renderStatus(w, http.StatusOK, name, data)
}

func (s *Server) renderStatus(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.Tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.Log.Error("rendering template", "template", name, "err", err)
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// identify resolves the caller, answering 500 itself on failure.
func (s *Server) identify(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	who, err := s.Identity.Resolve(w, r)
	if err != nil {
		s.Log.Error("resolving identity", "err", err)
		http.Error(w, "Could not identify participant", http.StatusInternalServerError)
		return identity.Identity{}, false
	}
	return who, true
}

// breakoutID returns the room id from the path once its durable record is
// known to exist. Otherwise it answers 404 and reports false.
func (s *Server) breakoutID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := s.Rooms.FindRoom(r.Context(), id); err != nil {
		if !errors.Is(err, records.ErrNotFound) {
			s.Log.Error("finding breakout", "room", id, "err", err)
			http.Error(w, "Could not load breakout", http.StatusInternalServerError)
			return "", false
		}
		http.Error(w, "Breakout not found", http.StatusNotFound)
		return "", false
	}
	return id, true
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identify(w, r)
	if !ok {
		return
	}
	s.render(w, "home", map[string]string{"DisplayName": who.DisplayName})
}

func (s *Server) handleCreateBreakout(w http.ResponseWriter, r *http.Request) {
	for range maxCreateAttempts {
		id, err := rooms.NewLookupID()
		if err != nil {
			s.Log.Error("generating lookup id", "err", err)
			s.createFailed(w)
			return
		}
		_, err = s.Rooms.CreateRoom(r.Context(), id)
		if errors.Is(err, records.ErrConflict) {
			continue
		}
		if err != nil {
			s.Log.Error("creating breakout", "err", err)
			s.createFailed(w)
			return
		}
		s.Log.Info("breakout created", "room", id)
		http.Redirect(w, r, "/breakout/"+id, http.StatusSeeOther)
		return
	}
	s.Log.Error("creating breakout", "err", "no free lookup id")
	s.createFailed(w)
}

// createFailed shows the home page again with the error.
func (s *Server) createFailed(w http.ResponseWriter) {
	s.renderStatus(w, http.StatusInternalServerError, "home", map[string]string{
		"Error": "Could not create a breakout, please try again.",
	})
}

func (s *Server) handleBreakout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.Rooms.FindRoom(r.Context(), id); err != nil {
		if !errors.Is(err, records.ErrNotFound) {
			s.Log.Error("finding breakout", "room", id, "err", err)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	who, ok := s.identify(w, r)
	if !ok {
		return
	}

	view := breakoutView{RoomID: id, DisplayName: who.DisplayName, Cards: Cards, Voters: votersView{RoomID: id}}
	if room, ok := s.Store.Get(id); ok {
		current := room.Current()
		view.Voters = votersView{RoomID: id, Revealed: current.Revealed, Participants: current.Participants}
	}
	s.render(w, "breakout", view)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.breakoutID(w, r)
	if !ok {
		return
	}
	who, ok := s.identify(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	room := s.Store.Join(id, rooms.Participant{ID: who.ID, DisplayName: who.DisplayName})
	sub := room.Subscribe()
	defer func() {
		room.Unsubscribe(sub)
		s.Store.Leave(id, who.ID)
	}()

	if err := s.writeEvent(w, room.Current()); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case u, ok := <-sub.C():
			if !ok {
				return
			}
			if err := s.writeEvent(w, u); err != nil {
				s.Log.Debug("event stream closed", "room", id, "participant", who.ID, "err", err)
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes one server-sent event. Snapshots are rendered as the
// voters partial, lifecycle events carry their label.
func (s *Server) writeEvent(w http.ResponseWriter, u rooms.Update) error {
	data := u.Kind.Label()
	if !u.Kind.Lifecycle() {
		var buf bytes.Buffer
		if err := s.Tmpl.ExecuteTemplate(&buf, "voters", votersView{RoomID: u.RoomID, Revealed: u.Revealed, Participants: u.Participants}); err != nil {
			s.Log.Error("rendering voters", "room", u.RoomID, "err", err)
			return err
		}
		data = strings.TrimSpace(buf.String())
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", u.Kind); err != nil {
		return err
	}
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	id, ok := s.breakoutID(w, r)
	if !ok {
		return
	}
	who, ok := s.identify(w, r)
	if !ok {
		return
	}
	s.Hub.Serve(w, r, id, rooms.Participant{ID: who.ID, DisplayName: who.DisplayName})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := s.breakoutID(w, r)
	if !ok {
		return
	}
	who, ok := s.identify(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	vote, err := strconv.ParseInt(r.FormValue("vote"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid vote", http.StatusBadRequest)
		return
	}

	if room, ok := s.Store.Get(id); ok {
		room.SetVote(who.ID, vote)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id, ok := s.breakoutID(w, r)
	if !ok {
		return
	}
	who, ok := s.identify(w, r)
	if !ok {
		return
	}

	room, ok := s.Store.Get(id)
	if !ok {
		http.Error(w, "Nobody is connected to this breakout", http.StatusConflict)
		return
	}
	revealed := room.ToggleReveal()
	s.Log.Info("reveal toggled", "room", id, "participant", who.ID, "revealed", revealed)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	id, ok := s.breakoutID(w, r)
	if !ok {
		return
	}
	who, ok := s.identify(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	form := renameForm{DisplayName: strings.TrimSpace(r.FormValue("display_name"))}
	if err := s.Validate.Struct(form); err != nil {
		http.Error(w, "Display name must be 1 to 40 characters", http.StatusBadRequest)
		return
	}

	p, err := s.Participants.UpdateDisplayName(r.Context(), who.ID, form.DisplayName)
	if err != nil {
		s.Log.Error("updating display name", "participant", who.ID, "err", err)
		http.Error(w, "Could not rename participant", http.StatusInternalServerError)
		return
	}
	s.Store.Rename(id, rooms.Participant{ID: p.LookupID, DisplayName: p.DisplayName})
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Rooms: s.Store.Len()}
	status := http.StatusOK
	if s.DB != nil {
		if err := s.DB.Ping(r.Context()); err != nil {
			resp.Status = "db_error"
			resp.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.Log.Error("writing health response", "err", err)
	}
}
