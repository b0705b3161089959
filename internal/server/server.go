package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/securenotes/apiserver/config"
	"github.com/securenotes/apiserver/internal/db"
	"github.com/securenotes/apiserver/internal/events"
	"github.com/securenotes/apiserver/internal/handlers"
	"github.com/securenotes/apiserver/internal/mailer"
	"github.com/securenotes/apiserver/internal/services"
	"github.com/securenotes/apiserver/internal/storage"
	"github.com/securenotes/apiserver/internal/store"
)

// Server wraps the HTTP server, the router and the background reaper.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	bus        *events.Bus
	reaper     *services.Reaper
	logger     *slog.Logger
}

// New constructs a Server with all collaborators wired from config.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if strings.TrimSpace(cfg.Session.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	logger := newLogger(cfg.Env)

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bus, err := newEventBus(ctx, cfg.Events, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	photos, err := newPhotoStorage(ctx, cfg.Storage)
	if err != nil {
		_ = bus.Close()
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	noteRepo := store.NewNoteRepository(dbConn)

	userService := services.NewUserService(userRepo)
	noteService := services.NewNoteService(noteRepo, bus)
	reaper := services.NewReaper(noteRepo, bus, logger, cfg.Retention.TrashTTL, cfg.Retention.SweepInterval)

	authHandler := handlers.NewAuthHandler(handlers.AuthHandlerDeps{
		UserService:    userService,
		Photos:         photos,
		Mail:           mailer.New(cfg.SMTP, logger),
		Logger:         logger,
		Session:        cfg.Session,
		ResetTokenTTL:  cfg.Reset.TokenTTL,
		FrontendOrigin: cfg.FrontendOrigin,
	})
	authMiddleware := handlers.RequireAuth(cfg.Session)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		corsMiddleware(cfg.FrontendOrigin),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/notes", func(r chi.Router) {
		handlers.NoteRouter(r, noteService, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		bus:        bus,
		reaper:     reaper,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the reaper and the HTTP server and blocks until the server
// stops or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	reaperCtx, cancelReaper := context.WithCancel(ctx)
	defer cancelReaper()
	go s.reaper.Run(reaperCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.logger.Info("server listening", "addr", s.httpServer.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown releases the server's resources.
func (s *Server) Shutdown() error {
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}

func newLogger(env string) *slog.Logger {
	if env == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newEventBus builds the configured lifecycle event publisher. An empty
// backend disables publishing; the bus then drops events silently.
func newEventBus(ctx context.Context, cfg config.EventsConfig, logger *slog.Logger) (*events.Bus, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		backend, err := events.NewRabbitMQPublisher(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		return events.NewBus(backend, cfg.Channel, logger), nil
	case "pubsub":
		backend, err := events.NewPubSubPublisher(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		return events.NewBus(backend, cfg.Channel, logger), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

// newPhotoStorage builds the configured object storage for profile photos.
// An empty backend disables uploads.
func newPhotoStorage(ctx context.Context, cfg config.StorageConfig) (*storage.Storage, error) {
	var backend storage.ObjectStorage
	switch cfg.Backend {
	case "":
		return nil, nil
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		backend = client
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		backend = client
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	wrapped := storage.NewStorage(backend)
	if err := wrapped.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return wrapped, nil
}

// corsMiddleware allows the configured frontend origin to call the API with
// credentials.
func corsMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
