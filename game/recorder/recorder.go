package recorder

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wricardo/mcp-training/drivesim/game/engine"
	"github.com/wricardo/mcp-training/drivesim/game/service"
)

// TelemetryRecord is one stored vehicle tick
type TelemetryRecord struct {
	ID               uint      `gorm:"primarykey"`
	RunID            string    `gorm:"size:36;index"`
	SessionID        string    `gorm:"size:64;index:idx_telemetry_session_tick,priority:1"`
	Tick             int64     `gorm:"index:idx_telemetry_session_tick,priority:2"`
	Clock            time.Time
	Controls         string `gorm:"size:8"`
	ElapsedMS        float64
	X, Y, Z          float64
	Rotation         float64
	Speed            float64
	VerticalVelocity float64
	GroundFound      bool
	SpeedCapped      bool
}

func (TelemetryRecord) TableName() string { return "telemetry_samples" }

// TireMarkRecord is one stored tire mark
type TireMarkRecord struct {
	ID        uint   `gorm:"primarykey"`
	RunID     string `gorm:"size:36;index"`
	SessionID string `gorm:"size:64;index"`
	Tick      int64
	Timestamp time.Time
	LeftX     float64
	LeftY     float64
	LeftZ     float64
	RightX    float64
	RightY    float64
	RightZ    float64
	Rotation  float64
}

func (TireMarkRecord) TableName() string { return "tire_mark_records" }

var models = []any{&TelemetryRecord{}, &TireMarkRecord{}}

// DefaultRetention is how many samples, and separately how many tire marks,
// a recorder keeps per session
const DefaultRetention = 10000

// Recorder stores per-tick telemetry and tire marks in SQLite
type Recorder struct {
	DB     *gorm.DB
	RunID  string
	Logger zerolog.Logger

	// Retain caps the rows kept per session and table; the oldest go first.
	// Zero or less keeps everything.
	Retain int
}

var _ service.Recorder = (*Recorder)(nil)

// NewRecorder opens the telemetry database at path and migrates its schema.
// An empty path keeps everything in memory for the life of the recorder.
func NewRecorder(path string, log zerolog.Logger) (*Recorder, error) {
	runID := uuid.New().String()

	dsn := path
	if dsn == "" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", runID)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	// one connection keeps an in-memory database alive until Close
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	if err := db.AutoMigrate(models...); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate telemetry schema: %w", err)
	}

	if path == "" {
		log.Info().Str("run", runID).Msg("Using in-memory telemetry DB")
	} else {
		log.Info().Str("path", path).Str("run", runID).Msg("Using telemetry DB")
	}

	return &Recorder{DB: db, RunID: runID, Logger: log, Retain: DefaultRetention}, nil
}

// Record stores a batch of samples and marks, then trims every session it
// touched back to Retain rows
func (r *Recorder) Record(samples []service.TelemetrySample, marks []service.MarkSample) error {
	if len(samples) > 0 {
		rows := make([]TelemetryRecord, 0, len(samples))
		for _, s := range samples {
			rows = append(rows, TelemetryRecord{
				RunID:            r.RunID,
				SessionID:        s.SessionID,
				Tick:             s.Tick,
				Clock:            s.Clock.UTC(),
				Controls:         s.Controls,
				ElapsedMS:        s.ElapsedMS,
				X:                s.Position.X(),
				Y:                s.Position.Y(),
				Z:                s.Position.Z(),
				Rotation:         s.Rotation,
				Speed:            s.Speed,
				VerticalVelocity: s.VerticalVelocity,
				GroundFound:      s.GroundFound,
				SpeedCapped:      s.SpeedCapped,
			})
		}
		if err := r.DB.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("failed to write telemetry: %w", err)
		}
	}

	if len(marks) > 0 {
		rows := make([]TireMarkRecord, 0, len(marks))
		for _, m := range marks {
			rows = append(rows, TireMarkRecord{
				RunID:     r.RunID,
				SessionID: m.SessionID,
				Tick:      m.Tick,
				Timestamp: m.Mark.Timestamp.UTC(),
				LeftX:     m.Mark.LeftPosition.X(),
				LeftY:     m.Mark.LeftPosition.Y(),
				LeftZ:     m.Mark.LeftPosition.Z(),
				RightX:    m.Mark.RightPosition.X(),
				RightY:    m.Mark.RightPosition.Y(),
				RightZ:    m.Mark.RightPosition.Z(),
				Rotation:  m.Mark.Rotation,
			})
		}
		if err := r.DB.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("failed to write tire marks: %w", err)
		}
	}

	if r.Retain > 0 {
		seen := make(map[string]bool)
		for _, s := range samples {
			if !seen[s.SessionID] {
				seen[s.SessionID] = true
				if err := r.trim(&TelemetryRecord{}, s.SessionID); err != nil {
					return fmt.Errorf("failed to trim telemetry: %w", err)
				}
			}
		}
		clear(seen)
		for _, m := range marks {
			if !seen[m.SessionID] {
				seen[m.SessionID] = true
				if err := r.trim(&TireMarkRecord{}, m.SessionID); err != nil {
					return fmt.Errorf("failed to trim tire marks: %w", err)
				}
			}
		}
	}

	r.Logger.Debug().Int("samples", len(samples)).Int("marks", len(marks)).Msg("telemetry recorded")
	return nil
}

// trim deletes a session's rows of model older than the newest Retain
func (r *Recorder) trim(model any, sessionID string) error {
	var ids []uint
	err := r.DB.Model(model).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Offset(r.Retain).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	res := r.DB.Where("session_id = ? AND id <= ?", sessionID, ids[0]).Delete(model)
	if res.Error != nil {
		return res.Error
	}
	r.Logger.Debug().Str("session", sessionID).Int64("rows", res.RowsAffected).Msg("telemetry trimmed")
	return nil
}

// Telemetry returns up to limit samples for a session, newest first
func (r *Recorder) Telemetry(sessionID string, limit int) ([]service.TelemetrySample, error) {
	var rows []TelemetryRecord
	q := r.DB.Where("session_id = ?", sessionID).Order("tick DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read telemetry: %w", err)
	}

	out := make([]service.TelemetrySample, 0, len(rows))
	for _, row := range rows {
		out = append(out, service.TelemetrySample{
			SessionID:        row.SessionID,
			Tick:             row.Tick,
			Clock:            row.Clock,
			Controls:         row.Controls,
			ElapsedMS:        row.ElapsedMS,
			Position:         mgl64.Vec3{row.X, row.Y, row.Z},
			Rotation:         row.Rotation,
			Speed:            row.Speed,
			VerticalVelocity: row.VerticalVelocity,
			GroundFound:      row.GroundFound,
			SpeedCapped:      row.SpeedCapped,
		})
	}
	return out, nil
}

// Marks returns every stored tire mark for a session in the order laid
func (r *Recorder) Marks(sessionID string) ([]service.MarkSample, error) {
	var rows []TireMarkRecord
	if err := r.DB.Where("session_id = ?", sessionID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read tire marks: %w", err)
	}

	out := make([]service.MarkSample, 0, len(rows))
	for _, row := range rows {
		out = append(out, service.MarkSample{
			SessionID: row.SessionID,
			Tick:      row.Tick,
			Mark: engine.TireMark{
				LeftPosition:  mgl64.Vec3{row.LeftX, row.LeftY, row.LeftZ},
				RightPosition: mgl64.Vec3{row.RightX, row.RightY, row.RightZ},
				Rotation:      row.Rotation,
				Timestamp:     row.Timestamp,
			},
		})
	}
	return out, nil
}

// Forget deletes everything stored for a session
func (r *Recorder) Forget(sessionID string) error {
	if err := r.DB.Where("session_id = ?", sessionID).Delete(&TelemetryRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete telemetry: %w", err)
	}
	if err := r.DB.Where("session_id = ?", sessionID).Delete(&TireMarkRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete tire marks: %w", err)
	}
	return nil
}

// Close releases the database connection
func (r *Recorder) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
