package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"breakout/internal/config"
	"breakout/internal/db"
	"breakout/internal/identity"
	"breakout/internal/metrics"
	"breakout/internal/records"
	"breakout/internal/rooms"
	"breakout/internal/wshub"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/mama165/sdk-go/logs"
)

// Routes builds the HTTP handler for every endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHome)
	r.Post("/breakout", s.handleCreateBreakout)
	r.Put("/breakout", s.handleCreateBreakout)
	r.Route("/breakout/{id}", func(r chi.Router) {
		r.Get("/", s.handleBreakout)
		r.Get("/events", s.handleEvents)
		r.Get("/ws", s.handleWebsocket)
		r.Post("/vote", s.handleVote)
		r.Post("/toggle", s.handleToggle)
		r.Post("/name", s.handleRename)
	})
	r.Get("/health", s.handleHealth)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}
	return r
}

// New wires a server around the given durable stores.
func New(cfg config.Config, log *slog.Logger, roomStore records.RoomStore, participants records.ParticipantStore) (*Server, error) {
	tmpl, err := ParseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	collector := metrics.NewCollector()
	store := rooms.NewStore(
		rooms.WithBufferSize(cfg.FanoutBuffer),
		rooms.WithObserver(collector),
		rooms.WithLogger(log),
	)
	collector.Observe(store)

	return &Server{
		Store:        store,
		Rooms:        roomStore,
		Participants: participants,
		Identity:     identity.NewResolver(cfg.JWTSecret, participants, cfg.CookieMaxAge),
		Hub:          wshub.NewHub(store, log, cfg.MaxMessageSize),
		Metrics:      collector,
		Tmpl:         tmpl,
		Log:          log,
		Validate:     validator.New(),
	}, nil
}

// readHeaderTimeout bounds how long a client may take to send request
// headers. Event streams and websockets are unaffected once established.
const readHeaderTimeout = 5 * time.Second

func newHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)
	if cfg.JWTSecret == config.DefaultJWTSecret {
		log.Warn("JWT_SECRET not set, using the development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional database connection
	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = db.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.Warn("database unavailable, running without database", "err", err)
			database = nil
		} else if err := database.Migrate(ctx); err != nil {
			database.Close()
			return fmt.Errorf("migrating database: %w", err)
		} else {
			log.Info("database connected and migrations applied")
		}
	} else {
		log.Info("DATABASE_URL not set, running without database")
	}

	var (
		roomStore    records.RoomStore
		participants records.ParticipantStore
	)
	if database != nil {
		defer database.Close()
		roomStore, participants = database, database
	} else {
		memory := records.NewMemory()
		roomStore, participants = memory, memory
	}

	srv, err := New(cfg, log, roomStore, participants)
	if err != nil {
		return err
	}
	srv.DB = database

	httpServer := newHTTPServer(cfg, srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", "http://localhost:"+cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
