package engine

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Trail is a bounded, time-ordered sequence of tire marks. It is a value:
// MaybeAppend returns a new Trail and leaves the receiver untouched, so a copy
// handed to a reader never changes under it.
type Trail struct {
	marks      []TireMark
	lastAppend time.Time
	hasLast    bool
	total      int64

	capacity  int
	interval  time.Duration
	threshold float64
	halfWidth float64
}

// TrailState is the serialisable form of a Trail
type TrailState struct {
	Marks      []TireMark `json:"marks"`
	LastAppend time.Time  `json:"last_append,omitempty"`
	HasLast    bool       `json:"has_last"`
	Total      int64      `json:"total"`
}

// NewTrail returns an empty trail using the tuning's capacity, interval,
// braking threshold and tire width
func NewTrail(t Tuning) Trail {
	return Trail{
		capacity:  t.TrailCapacity,
		interval:  t.TrailInterval(),
		threshold: t.BrakingSpeedThreshold,
		halfWidth: t.TireWidth / 2,
	}
}

// RestoreTrail rebuilds a trail from its serialised form. Marks beyond the
// tuning's capacity are dropped oldest first.
func RestoreTrail(t Tuning, s TrailState) Trail {
	tr := NewTrail(t)
	marks := s.Marks
	if len(marks) > tr.capacity {
		marks = marks[len(marks)-tr.capacity:]
	}
	tr.marks = append([]TireMark(nil), marks...)
	tr.lastAppend = s.LastAppend
	tr.hasLast = s.HasLast
	tr.total = s.Total
	return tr
}

// State returns the serialisable form of the trail
func (tr Trail) State() TrailState {
	return TrailState{
		Marks:      tr.Marks(),
		LastAppend: tr.lastAppend,
		HasLast:    tr.hasLast,
		Total:      tr.total,
	}
}

// Braking reports whether the braking condition holds for the given input
// and speed
func (tr Trail) Braking(controls ControlInput, speed float64) bool {
	return controls.Backward && speed > tr.threshold
}

// MaybeAppend appends a mark at the car's tire contact points when the car is
// braking and at least the sample interval has passed since the last mark. The
// oldest marks are evicted once the trail is over capacity.
func (tr Trail) MaybeAppend(state VehicleState, controls ControlInput, now time.Time) Trail {
	if !tr.Braking(controls, state.Speed()) {
		return tr
	}
	if tr.hasLast && now.Sub(tr.lastAppend) < tr.interval {
		return tr
	}

	r := Right(state.Rotation)
	offset := mgl64.Vec3{r.X(), 0, r.Y()}.Mul(tr.halfWidth)
	mark := TireMark{
		LeftPosition:  state.Position.Sub(offset),
		RightPosition: state.Position.Add(offset),
		Rotation:      state.Rotation,
		Timestamp:     now,
	}

	start := 0
	if len(tr.marks)+1 > tr.capacity {
		start = len(tr.marks) + 1 - tr.capacity
	}
	marks := make([]TireMark, 0, len(tr.marks)-start+1)
	marks = append(marks, tr.marks[start:]...)
	marks = append(marks, mark)

	next := tr
	next.marks = marks
	next.lastAppend = now
	next.hasLast = true
	next.total++
	return next
}

// Cleared returns an empty trail with the same settings. The append counter
// is kept.
func (tr Trail) Cleared() Trail {
	next := tr
	next.marks = nil
	next.lastAppend = time.Time{}
	next.hasLast = false
	return next
}

// Marks returns a copy of the marks, oldest first
func (tr Trail) Marks() []TireMark {
	out := make([]TireMark, len(tr.marks))
	copy(out, tr.marks)
	return out
}

// Len returns the number of marks held
func (tr Trail) Len() int {
	return len(tr.marks)
}

// Cap returns the maximum number of marks held
func (tr Trail) Cap() int {
	return tr.capacity
}

// Total returns how many marks were ever appended, including evicted ones
func (tr Trail) Total() int64 {
	return tr.total
}

// Last returns the newest mark
func (tr Trail) Last() (TireMark, bool) {
	if len(tr.marks) == 0 {
		return TireMark{}, false
	}
	return tr.marks[len(tr.marks)-1], true
}
