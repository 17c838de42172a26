package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/SameFileServer/backend/internal/api/http"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/api/middleware"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/filesystem"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/permissions"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/storage"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	fs         *filesystem.Service
	store      *storage.Store
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
	instanceID string
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	instanceID := uuid.NewString()
	logger.Info("Initializing file server",
		zap.String("instance", instanceID),
		zap.String("addr", cfg.Address()),
		zap.String("root", cfg.Storage.Root),
		zap.Bool("trash", cfg.Storage.TrashEnabled),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	// Access policy is optional; the role baseline applies without it
	var policy *permissions.Policy
	if cfg.Policy.File != "" {
		policy, err = permissions.LoadPolicy(cfg.Policy.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load access policy: %w", err)
		}
		logger.Info("Access policy loaded", zap.String("file", cfg.Policy.File))
	}
	evaluator := permissions.NewEvaluator(permissions.Layout{
		HomeDir:   cfg.Storage.HomeDir,
		GroupsDir: cfg.Storage.GroupsDir,
	}, policy)

	// Trash index and work history
	store, err := storage.Open(storage.Options{Path: cfg.Storage.StatePath}, logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if cfg.Storage.StatePath == "" {
		logger.Warn("State store is in memory; trash index and history are lost on restart")
	}

	if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	format, err := filesystem.ParseArchiveFormat(cfg.Limits.ArchiveFormat)
	if err != nil {
		store.Close()
		return nil, err
	}
	fs, err := filesystem.New(filesystem.Config{
		Root:             cfg.Storage.Root,
		TrashDir:         cfg.Storage.TrashDir,
		TrashEnabled:     cfg.Storage.TrashEnabled,
		MaxPathLength:    cfg.Limits.MaxPathLength,
		MaxNameLength:    cfg.Limits.MaxNameLength,
		MaxUploadSize:    cfg.Limits.MaxUploadSize,
		SearchMaxDepth:   cfg.Limits.SearchMaxDepth,
		AggregateWorkers: cfg.Limits.AggregateWorkers,
		MaxPageSize:      cfg.Limits.MaxPageSize,
		ArchiveDownloads: cfg.Limits.ArchiveDownloads,
		ArchiveFormat:    format,
	}, evaluator,
		filesystem.WithTrash(store),
		filesystem.WithHistory(store),
		filesystem.WithObserver(metrics),
		filesystem.WithLogger(logger.Named("filesystem")),
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to start filesystem engine: %w", err)
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(middleware.Recovery(logger.Logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Logger))
	router.Use(monitoring.Middleware(metrics))
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	router.Use(middleware.CORS(corsCfg))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))

		if cfg.RateLimit.GlobalRPS > 0 {
			router.Use(middleware.GlobalRateLimit(middleware.RateLimitConfig{
				RequestsPerSecond: cfg.RateLimit.GlobalRPS,
				Burst:             cfg.RateLimit.GlobalRPS * 2,
			}))
		}
	}

	// Create handlers
	handlers := api.NewHandlers(fs, logger.Logger, instanceID)

	// Register routes
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	files := router.Group("/api/files", middleware.Identity())
	if cfg.Storage.ProvisionHomes {
		files.Use(handlers.ProvisionHome())
	}
	handlers.Register(files)

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:    cfg.Address(),
			Handler: router,
		},
		fs:         fs,
		store:      store,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
		instanceID: instanceID,
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Filesystem returns the engine behind the API.
func (s *Server) Filesystem() *filesystem.Service { return s.fs }

// Run starts the HTTP server and blocks until Shutdown.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunJanitor purges expired trash entries until ctx is done. It returns
// immediately when the trash is disabled.
func (s *Server) RunJanitor(ctx context.Context) {
	if !s.config.Storage.TrashEnabled {
		return
	}
	s.logger.Info("Trash janitor started",
		zap.Duration("interval", s.config.Storage.TrashPurgeInterval),
		zap.Duration("retention", s.config.Storage.TrashRetention),
	)
	s.fs.RunJanitor(ctx, s.config.Storage.TrashPurgeInterval, s.config.Storage.TrashRetention)
}

// Shutdown stops accepting connections and waits for in-flight requests,
// including downloads, until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.httpServer.Shutdown(ctx)
}

// Close releases the state store and flushes the logger
func (s *Server) Close() error {
	var errs []error
	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close state store", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to close state store: %w", err))
	}

	// Sync logger before exit
	_ = s.logger.Sync()

	return errors.Join(errs...)
}
