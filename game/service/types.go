package service

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/wricardo/mcp-training/drivesim/game/course"
	"github.com/wricardo/mcp-training/drivesim/game/engine"
)

// SessionInfo provides information about a driving session
type SessionInfo struct {
	ID             string           `json:"id"`
	ConfigName     string           `json:"config_name"`
	CreatedAt      time.Time        `json:"created_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	State          *engine.Snapshot `json:"state"`
	Config         *course.Config   `json:"config"`
}

// TickRequest holds the controls for one or more ticks of equal length
type TickRequest struct {
	Controls engine.ControlInput `json:"controls"`
	// Keys overrides Controls when set, e.g. "wa" or "forward,left"
	Keys      string  `json:"keys,omitempty"`
	ElapsedMS float64 `json:"elapsed_ms,omitempty"` // 0 means one reference frame
	Ticks     int     `json:"ticks,omitempty"`      // 0 means 1
	Reset     bool    `json:"reset,omitempty"`
}

// TickResult contains the result of a Tick call
type TickResult struct {
	Ticks       int               `json:"ticks"`
	Controls    string            `json:"controls"`
	State       *engine.Snapshot  `json:"state"`
	Marks       []engine.TireMark `json:"marks,omitempty"`
	GroundFound bool              `json:"ground_found"`
	SpeedCapped bool              `json:"speed_capped"`
	Events      []DriveEvent      `json:"events"`
}

// DriveResult contains the result of a bulk Drive call
type DriveResult struct {
	// Summary
	TicksExecuted    int              `json:"ticks_executed"`
	RequestedTicks   int              `json:"requested_ticks"`
	Success          bool             `json:"success"`
	State            *engine.Snapshot `json:"state"`
	Events           []DriveEvent     `json:"events"`
	StoppedReason    string           `json:"stopped_reason,omitempty"`
	StoppedOnSegment int              `json:"stopped_on_segment,omitempty"` // 1-based
	Truncated        bool             `json:"truncated,omitempty"`
	Limit            int              `json:"limit,omitempty"`

	// Start/end snapshot
	StartPosition mgl64.Vec3 `json:"start_position"`
	EndPosition   mgl64.Vec3 `json:"end_position"`
	StartSpeed    float64    `json:"start_speed"`
	EndSpeed      float64    `json:"end_speed"`
	Distance      float64    `json:"distance"` // horizontal path length
	MarksLaid     int        `json:"marks_laid"`

	// Per-segment trace (only for this call)
	Segments []SegmentInfo `json:"segments,omitempty"`
}

// SegmentInfo is a compact record for each executed segment of a Drive call
type SegmentInfo struct {
	Idx         int        `json:"idx"`
	Controls    string     `json:"controls"`
	ElapsedMS   float64    `json:"elapsed_ms"`
	Ticks       int        `json:"ticks"`
	SpeedBefore float64    `json:"speed_before"`
	SpeedAfter  float64    `json:"speed_after"`
	Position    mgl64.Vec3 `json:"position"`
	Marks       int        `json:"marks,omitempty"`
	GroundFound bool       `json:"ground_found"`
}

// Event types reported by Tick and Drive
const (
	EventBrakeMark   = "brake_mark"
	EventAirborne    = "airborne"
	EventSpeedCapped = "speed_capped"
	EventReset       = "reset"
)

// DriveEvent represents something notable that happened during a call
type DriveEvent struct {
	Type      string     `json:"type"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"` // simulated clock
	Tick      int64      `json:"tick"`
	Position  mgl64.Vec3 `json:"position"`
}

// TrailOptions configures tire trail retrieval
type TrailOptions struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Order  string `json:"order"`   // "asc" or "desc"
	FadeMS int    `json:"fade_ms"` // 0 uses the course default, negative never fades
}

// TrailMark is a tire mark with its position in the trail and current opacity
type TrailMark struct {
	engine.TireMark
	Index   int     `json:"index"` // 0 is the oldest retained mark
	Opacity float64 `json:"opacity"`
}

// TrailResponse contains a paginated tire trail
type TrailResponse struct {
	Marks       []TrailMark `json:"marks"`
	TotalMarks  int         `json:"total_marks"`
	TotalLaid   int64       `json:"total_laid"`
	Capacity    int         `json:"capacity"`
	FadeMS      int         `json:"fade_ms"`
	Clock       time.Time   `json:"clock"`
	Page        int         `json:"page"`
	PageSize    int         `json:"page_size"`
	TotalPages  int         `json:"total_pages"`
	HasNext     bool        `json:"has_next"`
	HasPrevious bool        `json:"has_previous"`
}

// TelemetrySample is one recorded tick
type TelemetrySample struct {
	SessionID        string     `json:"session_id"`
	Tick             int64      `json:"tick"`
	Clock            time.Time  `json:"clock"`
	Controls         string     `json:"controls"`
	ElapsedMS        float64    `json:"elapsed_ms"`
	Position         mgl64.Vec3 `json:"position"`
	Rotation         float64    `json:"rotation"`
	Speed            float64    `json:"speed"`
	VerticalVelocity float64    `json:"vertical_velocity"`
	GroundFound      bool       `json:"ground_found"`
	SpeedCapped      bool       `json:"speed_capped"`
}

// MarkSample is one tire mark laid by a session
type MarkSample struct {
	SessionID string          `json:"session_id"`
	Tick      int64           `json:"tick"`
	Mark      engine.TireMark `json:"mark"`
}

// ConfigInfo provides information about a course profile
type ConfigInfo struct {
	Filename      string  `json:"filename"`
	ConfigID      string  `json:"config_id"` // The identifier to use for session creation
	Name          string  `json:"name"`      // Display name
	Description   string  `json:"description"`
	TerrainCount  int     `json:"terrain_count"`
	MaxSpeed      float64 `json:"max_speed"`
	TerminalSpeed float64 `json:"terminal_speed"`
}
