package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wricardo/mcp-training/drivesim/game/course"
	"github.com/wricardo/mcp-training/drivesim/game/engine"
)

// Errors shared by the service and its storage layers
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrConfigNotFound    = errors.New("configuration not found")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidElapsed    = errors.New("elapsed must be in (0, 1000] ms")
	ErrInvalidControls   = errors.New("invalid controls")
	ErrInvalidTicks      = errors.New("invalid tick count")
	ErrTelemetryDisabled = errors.New("telemetry recording is not enabled")
)

const (
	// MaxBulkTicks caps the ticks run by a single Tick or Drive call
	MaxBulkTicks = 600
	// MaxElapsedMS is the longest frame a caller may request
	MaxElapsedMS = 1000.0
)

// DriveService defines all driving operations
type DriveService interface {
	// Session Management
	CreateSession(ctx context.Context, configName string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Simulation
	Tick(ctx context.Context, sessionID string, req TickRequest) (*TickResult, error)
	Drive(ctx context.Context, sessionID string, segments []TickRequest, reset bool) (*DriveResult, error)
	Reset(ctx context.Context, sessionID string) (*engine.Snapshot, error)

	// State
	GetState(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	GetTrail(ctx context.Context, sessionID string, opts TrailOptions) (*TrailResponse, error)
	GetTelemetry(ctx context.Context, sessionID string, limit int) ([]TelemetrySample, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*course.Config, error)
	SaveConfig(ctx context.Context, configName string, config *course.Config) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id, configID string, config *course.Config) (*Session, error)
	Get(id string) (*Session, error)
	GetOrCreate(id, configID string, config *course.Config) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// ConfigManager handles course profile loading
type ConfigManager interface {
	LoadConfig(name string) (*course.Config, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *course.Config
	SaveConfig(name string, config *course.Config) error
}

// Recorder stores per-tick telemetry. It is optional.
type Recorder interface {
	Record(samples []TelemetrySample, marks []MarkSample) error
	Telemetry(sessionID string, limit int) ([]TelemetrySample, error)
	Forget(sessionID string) error
}

// Session represents one driving session. Vehicle and LastAccessedAt are
// guarded by the session lock; the other fields do not change after creation.
type Session struct {
	ID             string
	ConfigID       string
	Vehicle        *engine.Vehicle
	Config         *course.Config
	Ground         []engine.Collidable
	CreatedAt      time.Time
	LastAccessedAt time.Time

	mu sync.Mutex
}

// Lock takes the session lock. Holders must not call back into the session
// manager, which takes its own lock before this one.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session lock
func (s *Session) Unlock() { s.mu.Unlock() }

// Touch records an access at t
func (s *Session) Touch(t time.Time) {
	s.mu.Lock()
	s.LastAccessedAt = t
	s.mu.Unlock()
}

// LastAccessed returns the time of the last recorded access
func (s *Session) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastAccessedAt
}
