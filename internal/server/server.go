package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/materialdesk/apiserver/config"
	"github.com/materialdesk/apiserver/internal/db"
	"github.com/materialdesk/apiserver/internal/events"
	"github.com/materialdesk/apiserver/internal/handlers"
	"github.com/materialdesk/apiserver/internal/services"
	"github.com/materialdesk/apiserver/internal/storage"
	"github.com/materialdesk/apiserver/internal/store"
	"github.com/materialdesk/apiserver/pkg/slogx"
)

// Server wraps the HTTP server and its backing resources.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	publisher  *events.Publisher
	logger     *slog.Logger
}

// New constructs a Server: it opens the database, selects the image
// storage and event backends from config, and wires repositories,
// services and routes.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := slogx.New(slogx.Config{
		Service: "apiserver",
		Env:     cfg.Log.Env,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})

	if strings.TrimSpace(cfg.Session.Secret) == "" {
		return nil, errors.New("SESSION_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	imageStore, err := newImageStore(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	publisher, err := newPublisher(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	dropdownRepo := store.NewDropdownRepository(dbConn)
	materialRepo := store.NewMaterialRepository(dbConn)
	statsRepo := store.NewStatsRepository(dbConn)

	userService := services.NewUserService(userRepo)
	dropdownService := services.NewDropdownService(dropdownRepo, publisher)
	materialService := services.NewMaterialService(materialRepo, imageStore, publisher)
	dashboardService := services.NewDashboardService(statsRepo, materialRepo, dropdownRepo)

	authHandler := handlers.NewAuthHandler(userService, cfg.Session.Secret, cfg.Session.CookieSecure)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		slogx.HTTPMiddleware(logger),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler)
		})
		r.Group(func(r chi.Router) {
			r.Use(authHandler.RequireAuth)
			r.Route("/dropdowns", func(r chi.Router) {
				handlers.DropdownRouter(r, dropdownService)
			})
			r.Route("/materials", func(r chi.Router) {
				handlers.MaterialRouter(r, materialService)
			})
			r.Route("/dashboard", func(r chi.Router) {
				handlers.DashboardRouter(r, dashboardService)
			})
		})
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
		publisher:  publisher,
		logger:     logger,
	}, nil
}

func newImageStore(ctx context.Context, cfg config.Config) (*storage.ImageStore, error) {
	var backend storage.ObjectStorage
	switch cfg.Storage.Backend {
	case "minio":
		client, err := storage.NewMinioClient(cfg.Storage.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		backend = client
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.Storage.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		backend = client
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	return storage.NewImageStore(backend), nil
}

func newPublisher(ctx context.Context, cfg config.Config) (*events.Publisher, error) {
	switch cfg.Events.Backend {
	case "":
		return events.NewPublisher(nil, cfg.Events.Topic), nil
	case "rabbitmq":
		backend, err := events.NewRabbitMQBackend(cfg.Events.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		return events.NewPublisher(backend, cfg.Events.Topic), nil
	case "pubsub":
		backend, err := events.NewPubSubBackend(ctx, cfg.Events.PubSub)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		return events.NewPublisher(backend, cfg.Events.Topic), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until the context is done or
// a SIGINT/SIGTERM arrives, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.closeResources()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.closeResources()
	return err
}

// Shutdown closes the server immediately along with its resources.
func (s *Server) Shutdown() error {
	s.closeResources()
	return s.httpServer.Close()
}

func (s *Server) closeResources() {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("closing event publisher", "error", err)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
