package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/permissions"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/storage"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/shared/id"
	"go.uber.org/zap"
)

// Config fixes the engine's process-wide settings at startup.
type Config struct {
	Root             string
	TrashDir         string
	TrashEnabled     bool
	MaxPathLength    int
	MaxNameLength    int
	MaxUploadSize    int64
	SearchMaxDepth   int
	AggregateWorkers int
	MaxPageSize      int
	ArchiveDownloads bool
	ArchiveFormat    ArchiveFormat
}

// DefaultConfig returns the engine defaults. New fills zero limits and an
// empty archive format from it.
func DefaultConfig() Config {
	return Config{
		MaxPathLength:    4096,
		MaxNameLength:    255,
		MaxUploadSize:    1 << 30,
		SearchMaxDepth:   8,
		AggregateWorkers: 8,
		MaxPageSize:      1000,
		ArchiveDownloads: true,
		ArchiveFormat:    FormatZip,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPathLength <= 0 {
		c.MaxPathLength = d.MaxPathLength
	}
	if c.MaxNameLength <= 0 {
		c.MaxNameLength = d.MaxNameLength
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = d.MaxUploadSize
	}
	if c.SearchMaxDepth <= 0 {
		c.SearchMaxDepth = d.SearchMaxDepth
	}
	if c.AggregateWorkers <= 0 {
		c.AggregateWorkers = d.AggregateWorkers
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = d.MaxPageSize
	}
	if c.ArchiveFormat == "" {
		c.ArchiveFormat = d.ArchiveFormat
	}
	return c
}

// Evaluator derives capabilities for an identity on a virtual path.
type Evaluator interface {
	Evaluate(who permissions.Identity, path string) permissions.Permissions
	HomeOf(who permissions.Identity) string
}

// TrashIndex persists trash entries.
type TrashIndex interface {
	PutTrash(e storage.TrashEntry) error
	GetTrash(id string) (*storage.TrashEntry, error)
	DeleteTrash(id string) error
	ListTrash(owner string) ([]storage.TrashEntry, error)
	TrashOlderThan(cutoff time.Time) ([]storage.TrashEntry, error)
}

// HistoryLog persists the work history.
type HistoryLog interface {
	AppendHistory(r storage.HistoryRecord) error
	History(userID string, limit int) ([]storage.HistoryRecord, error)
}

// Observer receives operation telemetry.
type Observer interface {
	ObserveOperation(operation, status string, d time.Duration)
	ObserveBytes(direction string, n int64)
	ObserveLocks(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, time.Duration) {}
func (nopObserver) ObserveBytes(string, int64)                     {}
func (nopObserver) ObserveLocks(int)                               {}

// Service is the navigation and operations engine over one storage root.
type Service struct {
	cfg        Config
	resolver   *Resolver
	aggregator *Aggregator
	evaluator  Evaluator
	locks      *LockTable
	trash      TrashIndex
	history    HistoryLog
	observer   Observer
	logger     *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithTrash enables the trash index. Required when Config.TrashEnabled.
func WithTrash(idx TrashIndex) Option {
	return func(s *Service) { s.trash = idx }
}

// WithHistory records every mutating operation.
func WithHistory(h HistoryLog) Option {
	return func(s *Service) { s.history = h }
}

// WithObserver attaches telemetry.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New builds a Service rooted at cfg.Root.
func New(cfg Config, evaluator Evaluator, opts ...Option) (*Service, error) {
	cfg = cfg.withDefaults()
	if evaluator == nil {
		return nil, fmt.Errorf("permission evaluator is required")
	}
	if _, err := ParseArchiveFormat(string(cfg.ArchiveFormat)); err != nil {
		return nil, err
	}

	resolver, err := NewResolver(cfg.Root, cfg.MaxPathLength)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		resolver:  resolver,
		evaluator: evaluator,
		locks:     NewLockTable(),
		observer:  nopObserver{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.aggregator = NewAggregator(cfg.AggregateWorkers, s.logger)
	s.locks.Observe(s.observer.ObserveLocks)

	if cfg.TrashEnabled {
		if s.trash == nil {
			return nil, fmt.Errorf("trash enabled without a trash index")
		}
		if err := s.prepareTrashDir(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) prepareTrashDir() error {
	if s.cfg.TrashDir == "" {
		return fmt.Errorf("trash enabled without a trash directory")
	}
	if err := os.MkdirAll(s.cfg.TrashDir, 0o755); err != nil {
		return fmt.Errorf("create trash directory: %w", err)
	}
	abs, err := filepath.Abs(s.cfg.TrashDir)
	if err != nil {
		return fmt.Errorf("resolve trash directory: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return fmt.Errorf("canonicalize trash directory: %w", err)
	}
	if s.resolver.contains(canonical) {
		return fmt.Errorf("trash directory must live outside the storage root")
	}
	s.cfg.TrashDir = canonical
	return nil
}

// Resolver exposes the path resolver.
func (s *Service) Resolver() *Resolver { return s.resolver }

// Aggregator exposes the metadata aggregator.
func (s *Service) Aggregator() *Aggregator { return s.aggregator }

// Config returns the effective settings after defaults are applied.
func (s *Service) Config() Config { return s.cfg }

// Locks exposes the per-path lock table.
func (s *Service) Locks() *LockTable { return s.locks }

// Permissions evaluates the capability set of who on a raw path.
func (s *Service) Permissions(who permissions.Identity, raw string) (permissions.Permissions, error) {
	vp, err := s.resolver.Normalize(raw)
	if err != nil {
		return permissions.Permissions{}, err
	}
	return s.evaluator.Evaluate(who, vp.String()), nil
}

func (s *Service) allowed(who permissions.Identity, vp VirtualPath, action permissions.Action) error {
	if !s.evaluator.Evaluate(who, vp.String()).Allows(action) {
		return forbidden(vp, string(action))
	}
	return nil
}

// visibleTo admits the paths who may read.
func (s *Service) visibleTo(who permissions.Identity) Visibility {
	return func(vp VirtualPath) bool {
		return s.evaluator.Evaluate(who, vp.String()).CanDownload
	}
}

// record emits telemetry and a history entry for one finished operation.
func (s *Service) record(who permissions.Identity, op string, vp VirtualPath, start time.Time, message string, err error) {
	status := "success"
	if err != nil {
		status = string(KindOf(err))
		message = Failure(err).Message
		if KindOf(err) == KindIOFailure {
			s.logger.Warn("filesystem operation failed",
				zap.String("operation", op),
				zap.String("path", vp.String()),
				zap.String("user", who.ID),
				zap.Error(err))
		}
	}
	s.observer.ObserveOperation(op, status, time.Since(start))

	if s.history == nil {
		return
	}
	rec := storage.HistoryRecord{
		ID:        id.NewRecordID().String(),
		Time:      time.Now().UTC(),
		UserID:    who.ID,
		Operation: op,
		Path:      vp.String(),
		Success:   err == nil,
		Message:   message,
	}
	if herr := s.history.AppendHistory(rec); herr != nil {
		s.logger.Warn("failed to append history", zap.String("operation", op), zap.Error(herr))
	}
}

// finish converts an operation outcome into the result returned to callers.
func (s *Service) finish(who permissions.Identity, op string, vp VirtualPath, start time.Time, res *OperationResult, err error) (*OperationResult, error) {
	if err != nil {
		s.record(who, op, vp, start, "", err)
		return Failure(err), err
	}
	s.record(who, op, vp, start, res.Message, nil)
	return res, nil
}

// History returns the newest records visible to who. Admins see everyone.
func (s *Service) History(who permissions.Identity, limit int) ([]storage.HistoryRecord, error) {
	if s.history == nil {
		return []storage.HistoryRecord{}, nil
	}
	owner := who.ID
	if who.IsAdmin() {
		owner = ""
	} else if owner == "" {
		return nil, forbidden(RootPath, "read history of")
	}
	recs, err := s.history.History(owner, limit)
	if err != nil {
		return nil, wrapIO(RootPath, "read history", err)
	}
	return recs, nil
}

// EnsureHome creates the caller's home folder if missing.
func (s *Service) EnsureHome(ctx context.Context, who permissions.Identity) error {
	home := s.evaluator.HomeOf(who)
	if home == "" {
		return nil
	}
	r, err := s.resolver.Resolve(home)
	if err != nil {
		return err
	}
	release, err := s.locks.Acquire(ctx, r.Abs)
	if err != nil {
		return wrapIO(r.Virtual, "lock", err)
	}
	defer release()

	if err := os.MkdirAll(r.Abs, 0o755); err != nil {
		return classifyIO(r.Virtual, "create home", err)
	}
	return nil
}
