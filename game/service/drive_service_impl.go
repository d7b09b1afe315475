package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/drivesim/game/course"
	"github.com/wricardo/mcp-training/drivesim/game/engine"
)

// driveServiceImpl implements the DriveService interface
type driveServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	recorder Recorder
	log      zerolog.Logger
	mu       sync.RWMutex
}

// Option configures a DriveService
type Option func(*driveServiceImpl)

// WithRecorder attaches a telemetry recorder
func WithRecorder(r Recorder) Option {
	return func(s *driveServiceImpl) { s.recorder = r }
}

// WithLogger sets the service logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *driveServiceImpl) { s.log = l }
}

// NewDriveService creates a new drive service instance
func NewDriveService(sessions SessionManager, configs ConfigManager, opts ...Option) DriveService {
	s := &driveServiceImpl{
		sessions: sessions,
		configs:  configs,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// getConfigID returns the config_id for a given course name, used for consistent API responses
func (s *driveServiceImpl) getConfigID(courseName string) string {
	available, err := s.configs.ListConfigs()
	if err == nil {
		for _, cfg := range available {
			if cfg.Name == courseName {
				return cfg.ConfigID
			}
		}
	}
	if courseName == "" {
		return "default"
	}
	return courseName
}

func (s *driveServiceImpl) info(sess *Session) *SessionInfo {
	sess.Lock()
	snap := sess.Vehicle.Snapshot()
	lastAccessed := sess.LastAccessedAt
	sess.Unlock()

	configID := sess.ConfigID
	if configID == "" {
		configID = s.getConfigID(sess.Config.Name)
	}
	return &SessionInfo{
		ID:             sess.ID,
		ConfigName:     configID,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: lastAccessed,
		State:          &snap,
		Config:         sess.Config,
	}
}

// CreateSession creates a new driving session on the named course
func (s *driveServiceImpl) CreateSession(ctx context.Context, configName string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var config *course.Config
	var err error
	if configName != "" {
		config, err = s.configs.LoadConfig(configName)
		if err != nil {
			// Provide helpful error message with available options
			if errors.Is(err, ErrConfigNotFound) {
				available, listErr := s.configs.ListConfigs()
				if listErr == nil && len(available) > 0 {
					ids := make([]string, 0, len(available))
					for _, cfg := range available {
						ids = append(ids, cfg.ConfigID)
					}
					return nil, fmt.Errorf("%w: '%s'. Available configs: %v", ErrConfigNotFound, configName, ids)
				}
				return nil, fmt.Errorf("%w: '%s'. Use /api/configs to list available configurations", ErrConfigNotFound, configName)
			}
			return nil, fmt.Errorf("failed to load config %s: %w", configName, err)
		}
	} else {
		config = s.configs.GetDefault()
	}

	configID := configName
	if configID == "" {
		configID = s.getConfigID(config.Name)
	}

	// Let session manager generate a proper 4-character ID
	sess, err := s.sessions.Create("", configID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.log.Info().Str("session", sess.ID).Str("config", configID).Msg("session created")
	return s.info(sess), nil
}

// GetSession retrieves session information
func (s *driveServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	s.sessions.UpdateLastAccessed(sessionID)
	return s.info(sess), nil
}

// ListSessions returns all active sessions
func (s *driveServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.info(sess))
	}
	return result, nil
}

// DeleteSession removes a session and its recorded telemetry
func (s *driveServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := sessionID
	if sess, err := s.sessions.Get(sessionID); err == nil {
		id = sess.ID
	}
	if err := s.sessions.Delete(sessionID); err != nil {
		return err
	}
	if s.recorder != nil {
		if err := s.recorder.Forget(id); err != nil {
			s.log.Warn().Err(err).Str("session", sessionID).Msg("failed to drop telemetry")
		}
	}
	return nil
}

// resolve validates a request and returns its controls, frame length and
// repeat count
func resolve(req TickRequest, tuning engine.Tuning) (engine.ControlInput, time.Duration, int, error) {
	controls := req.Controls
	if req.Keys != "" {
		c, err := engine.ParseControls(req.Keys)
		if err != nil {
			return engine.ControlInput{}, 0, 0, fmt.Errorf("%w: %v", ErrInvalidControls, err)
		}
		controls = c
	}

	ms := req.ElapsedMS
	if ms == 0 {
		ms = 1000 / tuning.ReferenceFPS
	}
	if math.IsNaN(ms) || ms <= 0 || ms > MaxElapsedMS {
		return engine.ControlInput{}, 0, 0, fmt.Errorf("%w, got %v", ErrInvalidElapsed, req.ElapsedMS)
	}

	n := req.Ticks
	if n == 0 {
		n = 1
	}
	if n < 0 {
		return engine.ControlInput{}, 0, 0, fmt.Errorf("%w: %d", ErrInvalidTicks, req.Ticks)
	}
	return controls, time.Duration(ms * float64(time.Millisecond)), n, nil
}

// run tracks what happened over a sequence of ticks
type run struct {
	sess     *Session
	grounded bool
	capped   bool
	ticks    int
	distance float64
	marks    []engine.TireMark
	events   []DriveEvent
	samples  []TelemetrySample
	marked   []MarkSample
	record   bool
}

func (s *driveServiceImpl) newRun(sess *Session) *run {
	return &run{
		sess:     sess,
		grounded: sess.Vehicle.GroundFound(),
		record:   s.recorder != nil,
	}
}

// step runs n ticks with the same controls and frame length
func (r *run) step(controls engine.ControlInput, elapsed time.Duration, n int) {
	v := r.sess.Vehicle
	label := controls.String()
	for i := 0; i < n; i++ {
		before := v.State().Position
		out := v.Tick(controls, elapsed, r.sess.Ground)
		r.ticks++
		pos := out.State.Position
		r.distance += mgl64.Vec2{pos.X() - before.X(), pos.Z() - before.Z()}.Len()

		if out.Mark != nil {
			r.marks = append(r.marks, *out.Mark)
			r.events = append(r.events, DriveEvent{
				Type:      EventBrakeMark,
				Message:   fmt.Sprintf("Tire mark laid at %.1f speed", out.State.Speed()),
				Timestamp: v.Clock(),
				Tick:      v.Ticks(),
				Position:  pos,
			})
			if r.record {
				r.marked = append(r.marked, MarkSample{SessionID: r.sess.ID, Tick: v.Ticks(), Mark: *out.Mark})
			}
		}
		if r.grounded && !out.Ground.Found {
			r.events = append(r.events, DriveEvent{
				Type:      EventAirborne,
				Message:   "No ground beneath the car; vertical motion frozen",
				Timestamp: v.Clock(),
				Tick:      v.Ticks(),
				Position:  pos,
			})
		}
		if out.SpeedCapped && !r.capped {
			r.events = append(r.events, DriveEvent{
				Type:      EventSpeedCapped,
				Message:   fmt.Sprintf("Speed limited to %.1f", v.Tuning().MaxSpeed),
				Timestamp: v.Clock(),
				Tick:      v.Ticks(),
				Position:  pos,
			})
		}
		r.grounded = out.Ground.Found
		r.capped = out.SpeedCapped

		if r.record {
			r.samples = append(r.samples, TelemetrySample{
				SessionID:        r.sess.ID,
				Tick:             v.Ticks(),
				Clock:            v.Clock(),
				Controls:         label,
				ElapsedMS:        float64(elapsed) / float64(time.Millisecond),
				Position:         pos,
				Rotation:         out.State.Rotation,
				Speed:            out.State.Speed(),
				VerticalVelocity: out.State.VerticalVelocity,
				GroundFound:      out.Ground.Found,
				SpeedCapped:      out.SpeedCapped,
			})
		}
	}
}

func (r *run) reset() {
	v := r.sess.Vehicle
	state := v.Reset(r.sess.Ground)
	r.grounded = v.GroundFound()
	r.capped = false
	r.events = append(r.events, DriveEvent{
		Type:      EventReset,
		Message:   "Vehicle returned to spawn",
		Timestamp: v.Clock(),
		Tick:      v.Ticks(),
		Position:  state.Position,
	})
}

// finish persists the session and flushes telemetry. The caller must not
// hold the session lock.
func (s *driveServiceImpl) finish(r *run, op string) {
	id := r.sess.ID
	if s.recorder != nil && (len(r.samples) > 0 || len(r.marked) > 0) {
		if err := s.recorder.Record(r.samples, r.marked); err != nil {
			s.log.Warn().Err(err).Str("session", id).Msg("failed to record telemetry")
		}
	}
	if err := s.sessions.Save(id); err != nil {
		s.log.Warn().Err(err).Str("session", id).Msgf("failed to persist session after %s", op)
	}
}

// Tick runs one request against a session
func (s *driveServiceImpl) Tick(ctx context.Context, sessionID string, req TickRequest) (*TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	s.sessions.UpdateLastAccessed(sessionID)

	controls, elapsed, n, err := resolve(req, sess.Vehicle.Tuning())
	if err != nil {
		return nil, err
	}
	if n > MaxBulkTicks {
		return nil, fmt.Errorf("%w: %d exceeds the limit of %d", ErrInvalidTicks, n, MaxBulkTicks)
	}

	sess.Lock()
	r := s.newRun(sess)
	if req.Reset {
		r.reset()
	}
	r.step(controls, elapsed, n)
	snap := sess.Vehicle.Snapshot()
	sess.Unlock()

	s.finish(r, "tick")
	s.log.Debug().
		Str("session", sessionID).
		Str("controls", controls.String()).
		Int("ticks", n).
		Float64("speed", snap.Speed).
		Int("marks", len(r.marks)).
		Msg("tick")

	return &TickResult{
		Ticks:       r.ticks,
		Controls:    controls.String(),
		State:       &snap,
		Marks:       r.marks,
		GroundFound: snap.GroundFound,
		SpeedCapped: r.capped,
		Events:      nonNilEvents(r.events),
	}, nil
}

// Drive runs a sequence of requests, stopping at the first invalid one
func (s *driveServiceImpl) Drive(ctx context.Context, sessionID string, segments []TickRequest, reset bool) (*DriveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	s.sessions.UpdateLastAccessed(sessionID)

	v := sess.Vehicle
	sess.Lock()
	start := v.State()
	result := &DriveResult{
		Success:       true,
		StartPosition: start.Position,
		StartSpeed:    start.Speed(),
	}

	r := s.newRun(sess)
	if reset {
		r.reset()
	}

	budget := MaxBulkTicks
	for i, seg := range segments {
		controls, elapsed, n, err := resolve(seg, v.Tuning())
		if err != nil {
			result.Success = false
			result.StoppedReason = err.Error()
			result.StoppedOnSegment = i + 1
			break
		}
		result.RequestedTicks += n
		if err := ctx.Err(); err != nil {
			result.Success = false
			result.StoppedReason = err.Error()
			result.StoppedOnSegment = i + 1
			break
		}
		if budget == 0 {
			result.Truncated = true
			continue
		}
		if n > budget {
			n = budget
			result.Truncated = true
		}
		budget -= n

		before := v.State().Speed()
		marks := len(r.marks)
		r.step(controls, elapsed, n)
		result.Segments = append(result.Segments, SegmentInfo{
			Idx:         i + 1,
			Controls:    controls.String(),
			ElapsedMS:   float64(elapsed) / float64(time.Millisecond),
			Ticks:       n,
			SpeedBefore: before,
			SpeedAfter:  v.State().Speed(),
			Position:    v.State().Position,
			Marks:       len(r.marks) - marks,
			GroundFound: v.GroundFound(),
		})
	}
	if result.Truncated {
		result.Limit = MaxBulkTicks
	}
	snap := v.Snapshot()
	sess.Unlock()

	s.finish(r, "drive")

	result.TicksExecuted = r.ticks
	result.State = &snap
	result.Events = nonNilEvents(r.events)
	result.EndPosition = snap.State.Position
	result.EndSpeed = snap.Speed
	result.Distance = r.distance
	result.MarksLaid = len(r.marks)

	s.log.Debug().
		Str("session", sessionID).
		Int("executed", result.TicksExecuted).
		Int("requested", result.RequestedTicks).
		Bool("truncated", result.Truncated).
		Str("stopped", result.StoppedReason).
		Msg("drive")

	return result, nil
}

// Reset returns the session's car to the course spawn
func (s *driveServiceImpl) Reset(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	s.sessions.UpdateLastAccessed(sessionID)

	sess.Lock()
	r := s.newRun(sess)
	r.reset()
	snap := sess.Vehicle.Snapshot()
	sess.Unlock()

	s.finish(r, "reset")
	return &snap, nil
}

// GetState returns the current snapshot
func (s *driveServiceImpl) GetState(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	s.sessions.UpdateLastAccessed(sessionID)

	sess.Lock()
	snap := sess.Vehicle.Snapshot()
	sess.Unlock()
	return &snap, nil
}

// GetTrail returns a page of tire marks with their opacity at the current
// simulated time
func (s *driveServiceImpl) GetTrail(ctx context.Context, sessionID string, opts TrailOptions) (*TrailResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	sess.Lock()
	trail := sess.Vehicle.Trail()
	marks := trail.Marks()
	now := sess.Vehicle.Clock()
	sess.Unlock()
	total := len(marks)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Order != "asc" {
		opts.Order = "desc"
	}
	fade := opts.FadeMS
	if fade == 0 {
		fade = sess.Config.TrailFade()
	}
	if fade < 0 {
		fade = 0
	}
	lifetime := time.Duration(fade) * time.Millisecond

	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}
	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	page := []TrailMark{}
	for i := start; i < end; i++ {
		idx := i
		if opts.Order == "desc" {
			// Most recent first
			idx = total - 1 - i
		}
		m := marks[idx]
		page = append(page, TrailMark{TireMark: m, Index: idx, Opacity: m.Opacity(now, lifetime)})
	}

	return &TrailResponse{
		Marks:       page,
		TotalMarks:  total,
		TotalLaid:   trail.Total(),
		Capacity:    trail.Cap(),
		FadeMS:      fade,
		Clock:       now,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}

// GetTelemetry returns up to limit of the most recent recorded samples
func (s *driveServiceImpl) GetTelemetry(ctx context.Context, sessionID string, limit int) ([]TelemetrySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if s.recorder == nil {
		return nil, ErrTelemetryDisabled
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	return s.recorder.Telemetry(sess.ID, limit)
}

// ListConfigs returns available course profiles
func (s *driveServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a specific course profile
func (s *driveServiceImpl) LoadConfig(ctx context.Context, configName string) (*course.Config, error) {
	return s.configs.LoadConfig(configName)
}

// SaveConfig saves a course profile to disk
func (s *driveServiceImpl) SaveConfig(ctx context.Context, configName string, config *course.Config) error {
	return s.configs.SaveConfig(configName, config)
}

func nonNilEvents(events []DriveEvent) []DriveEvent {
	if events == nil {
		return []DriveEvent{}
	}
	return events
}
