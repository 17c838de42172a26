package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/api/middleware"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/filesystem"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/permissions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	fs         *filesystem.Service
	logger     *zap.Logger
	instanceID string
	started    time.Time
	homes      sync.Map
}

// NewHandlers creates a new handler set
func NewHandlers(fs *filesystem.Service, logger *zap.Logger, instanceID string) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		fs:         fs,
		logger:     logger,
		instanceID: instanceID,
		started:    time.Now(),
	}
}

// Register mounts the file routes on group. The group must run the
// Identity middleware.
func (h *Handlers) Register(group *gin.RouterGroup) {
	group.GET("", h.List)
	group.DELETE("", h.Delete)
	group.GET("/info", h.Info)
	group.GET("/exists", h.Exists)
	group.POST("/folder", h.CreateFolder)
	group.GET("/download", h.Download)
	group.GET("/view", h.View)
	group.POST("/upload", h.Upload)

	group.GET("/trash", h.ListTrash)
	group.POST("/trash/:id/restore", h.RestoreTrash)
	group.DELETE("/trash/:id", h.PurgeTrash)
	group.GET("/history", h.History)
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	cfg := h.fs.Config()
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  "file-server",
		"instance": h.instanceID,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"storage": gin.H{
			"trash_enabled":     cfg.TrashEnabled,
			"archive_downloads": cfg.ArchiveDownloads,
			"archive_format":    cfg.ArchiveFormat,
			"path_locks":        h.fs.Locks().Len(),
		},
	})
}

// ProvisionHome creates the caller's home folder on first sight. A
// failure is logged and the request proceeds; the engine reports any
// resulting NotFound itself.
func (h *Handlers) ProvisionHome() gin.HandlerFunc {
	return func(c *gin.Context) {
		who := caller(c)
		if _, done := h.homes.Load(who.ID); !done && who.ID != "" {
			if err := h.fs.EnsureHome(c.Request.Context(), who); err != nil {
				h.log(c).Warn("failed to provision home folder", zap.String("user_id", who.ID), zap.Error(err))
			} else {
				h.homes.Store(who.ID, struct{}{})
			}
		}
		c.Next()
	}
}

// caller returns the identity set by the Identity middleware. Routes are
// only mounted behind that middleware, so a missing value is a wiring bug.
func caller(c *gin.Context) permissions.Identity {
	who, _ := middleware.GetIdentity(c)
	return who
}

func (h *Handlers) log(c *gin.Context) *zap.Logger {
	return logging.FromContext(c.Request.Context(), h.logger)
}
