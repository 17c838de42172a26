package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Limits    LimitsConfig
	Policy    PolicyConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000" validate:"required,numeric"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s" validate:"gt=0"`
}

// StorageConfig locates the served tree and the engine's own state.
type StorageConfig struct {
	Root               string        `envconfig:"FS_ROOT" default:"./data" validate:"required"`
	TrashEnabled       bool          `envconfig:"FS_TRASH_ENABLED" default:"false"`
	TrashDir           string        `envconfig:"FS_TRASH_DIR" default:"./state/trash" validate:"required_if=TrashEnabled true"`
	TrashRetention     time.Duration `envconfig:"FS_TRASH_RETENTION" default:"720h" validate:"gte=0"`
	TrashPurgeInterval time.Duration `envconfig:"FS_TRASH_PURGE_INTERVAL" default:"1h" validate:"gte=0"`
	// StatePath is the Badger directory; empty keeps state in memory.
	StatePath      string `envconfig:"FS_STATE_PATH" default:"./state/db"`
	HomeDir        string `envconfig:"FS_HOME_DIR" default:"users" validate:"required,excludesall=/\\"`
	GroupsDir      string `envconfig:"FS_GROUPS_DIR" default:"groups" validate:"required,excludesall=/\\,nefield=HomeDir"`
	ProvisionHomes bool   `envconfig:"FS_PROVISION_HOMES" default:"true"`
}

// LimitsConfig bounds request sizes and work per request.
type LimitsConfig struct {
	MaxPathLength    int    `envconfig:"FS_MAX_PATH_LENGTH" default:"4096" validate:"gt=0"`
	MaxNameLength    int    `envconfig:"FS_MAX_NAME_LENGTH" default:"255" validate:"gt=0"`
	MaxUploadSize    int64  `envconfig:"FS_MAX_UPLOAD_SIZE" default:"1073741824" validate:"gt=0"`
	SearchMaxDepth   int    `envconfig:"FS_SEARCH_MAX_DEPTH" default:"8" validate:"gt=0"`
	AggregateWorkers int    `envconfig:"FS_AGGREGATE_WORKERS" default:"8" validate:"gt=0"`
	MaxPageSize      int    `envconfig:"FS_MAX_PAGE_SIZE" default:"1000" validate:"gt=0"`
	ArchiveDownloads bool   `envconfig:"FS_ARCHIVE_DOWNLOADS" default:"true"`
	ArchiveFormat    string `envconfig:"FS_ARCHIVE_FORMAT" default:"zip" validate:"oneof=zip tar.gz tar.zst"`
}

// PolicyConfig points at an optional access policy file.
type PolicyConfig struct {
	File string `envconfig:"FS_POLICY_FILE"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" validate:"gt=0"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" validate:"gtefield=RequestsPerSecond"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	// GlobalRPS caps all clients together; zero disables it.
	GlobalRPS int `envconfig:"RATE_LIMIT_GLOBAL_RPS" default:"0" validate:"gte=0"`
}

// CORSConfig lists the origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Root:               "./data",
			TrashDir:           "./state/trash",
			TrashRetention:     720 * time.Hour,
			TrashPurgeInterval: time.Hour,
			StatePath:          "./state/db",
			HomeDir:            "users",
			GroupsDir:          "groups",
			ProvisionHomes:     true,
		},
		Limits: LimitsConfig{
			MaxPathLength:    4096,
			MaxNameLength:    255,
			MaxUploadSize:    1 << 30,
			SearchMaxDepth:   8,
			AggregateWorkers: 8,
			MaxPageSize:      1000,
			ArchiveDownloads: true,
			ArchiveFormat:    "zip",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
	}
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}
