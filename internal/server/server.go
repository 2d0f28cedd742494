package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/taskdeck/apiserver/config"
	"github.com/taskdeck/apiserver/internal/auth"
	"github.com/taskdeck/apiserver/internal/db"
	"github.com/taskdeck/apiserver/internal/handlers"
	"github.com/taskdeck/apiserver/internal/logger"
	"github.com/taskdeck/apiserver/internal/middleware"
	"github.com/taskdeck/apiserver/internal/mq"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/storage"
	"github.com/taskdeck/apiserver/internal/store"
)

// Server wraps the HTTP server and its long-lived resources.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	events     *mq.MQ
}

// New constructs a fully wired Server from config.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if err := logger.Init(cfg.Logging.Development); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	userRepo := store.NewUserRepository(dbConn)
	taskRepo := store.NewTaskRepository(dbConn)

	issuer, err := newTokenIssuer(cfg.Auth, userRepo)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	avatars, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	events, err := mq.New(ctx, cfg.Broker)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init broker: %w", err)
	}

	userService := services.NewUserService(userRepo, issuer)
	taskService := services.NewTaskService(taskRepo, events, cfg.Broker.Topic)

	identity := handlers.NewIdentity(userService, cfg.Auth.CookieSecure)
	userHandler := handlers.NewUserHandler(userService, identity, avatars, cfg.Storage.PublicBaseURL)
	corsPolicy := middleware.NewCORSPolicy(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedOriginSuffixes)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logging,
		chimw.Timeout(60*time.Second),
		corsPolicy.Handler,
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userHandler)
	})
	router.Route("/tasks", func(r chi.Router) {
		handlers.TaskRouter(r, taskService, identity)
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
		events:     events,
	}, nil
}

func newTokenIssuer(cfg config.AuthConfig, users *store.UserRepository) (auth.TokenIssuer, error) {
	switch cfg.Mode {
	case config.AuthModeSession:
		return auth.NewSessionIssuer(users), nil
	case config.AuthModeJWT:
		if cfg.JWTSecret == "" {
			return nil, errors.New("JWT_SECRET is required in jwt auth mode")
		}
		return auth.NewJWTIssuer(users, cfg.JWTSecret), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	logger.Info("server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown releases long-lived resources and stops the HTTP server.
func (s *Server) Shutdown() error {
	if s.events != nil {
		_ = s.events.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	logger.Sync()
	return s.httpServer.Close()
}
