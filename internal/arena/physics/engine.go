package physics

import (
	"math"
	"sync/atomic"
	"time"
)

// Engine owns the current State of one body.
//
// Commit is the only way the held state changes. Setters are
// read-modify-replace on the current snapshot and are not atomic as a
// compound: two setters racing on the same body may lose one update. A body
// is driven by its own loop plus low-frequency player input, so this is
// accepted.
type Engine struct {
	state      atomic.Pointer[State]
	integrator Integrator
}

// NewEngine creates an engine holding initial. A nil integrator selects
// EulerIntegrator.
func NewEngine(initial State, integrator Integrator) *Engine {
	if integrator == nil {
		integrator = EulerIntegrator{}
	}
	e := &Engine{integrator: integrator}
	e.state.Store(&initial)
	return e
}

// Current returns the last committed state.
func (e *Engine) Current() State {
	return *e.state.Load()
}

// ComputeNext returns the state at now without committing it.
func (e *Engine) ComputeNext(now time.Time) State {
	return e.integrator.Step(e.Current(), now)
}

// Commit atomically replaces the held state.
func (e *Engine) Commit(s State) {
	e.state.Store(&s)
}

func (e *Engine) update(fn func(s *State)) {
	next := e.Current()
	fn(&next)
	e.Commit(next)
}

// SetThrust sets the thrust scalar.
func (e *Engine) SetThrust(thrust float64) {
	e.update(func(s *State) { s.Thrust = thrust })
}

// SetAngularSpeed sets the angular speed in degrees per second.
func (e *Engine) SetAngularSpeed(speed float64) {
	e.update(func(s *State) { s.AngularSpeed = speed })
}

// SetAngularAcceleration sets the angular acceleration.
func (e *Engine) SetAngularAcceleration(acc float64) {
	e.update(func(s *State) { s.AngularAcc = acc })
}

// AddAngularAcceleration adds delta to the angular acceleration.
func (e *Engine) AddAngularAcceleration(delta float64) {
	e.update(func(s *State) { s.AngularAcc += delta })
}

// ShiftTimestamp moves the committed timestamp forward by d. The next step
// then integrates from the shifted instant.
func (e *Engine) ShiftTimestamp(d time.Duration) {
	e.update(func(s *State) { s.Timestamp = s.Timestamp.Add(d) })
}

// ResetAcceleration zeroes linear acceleration.
func (e *Engine) ResetAcceleration() {
	e.update(func(s *State) {
		s.AccX = 0
		s.AccY = 0
	})
}

// The compass names follow the world orientation: east is the x<0 edge,
// west the x>=width edge, north y<0 and south y>=height.

// ReboundEast reflects a body that crossed x<0 back into the world.
func (e *Engine) ReboundEast(next, prev State, worldW, worldH float64) {
	out := next
	out.SpeedX = math.Abs(next.SpeedX)
	out.PosX = clampInside(prev.PosX, worldW)
	out.PosY = clampInside(next.PosY, worldH)
	e.Commit(out)
}

// ReboundWest reflects a body that crossed x>=worldW back into the world.
func (e *Engine) ReboundWest(next, prev State, worldW, worldH float64) {
	out := next
	out.SpeedX = -math.Abs(next.SpeedX)
	out.PosX = clampInside(prev.PosX, worldW)
	out.PosY = clampInside(next.PosY, worldH)
	e.Commit(out)
}

// ReboundNorth reflects a body that crossed y<0 back into the world.
func (e *Engine) ReboundNorth(next, prev State, worldW, worldH float64) {
	out := next
	out.SpeedY = math.Abs(next.SpeedY)
	out.PosX = clampInside(next.PosX, worldW)
	out.PosY = clampInside(prev.PosY, worldH)
	e.Commit(out)
}

// ReboundSouth reflects a body that crossed y>=worldH back into the world.
func (e *Engine) ReboundSouth(next, prev State, worldW, worldH float64) {
	out := next
	out.SpeedY = -math.Abs(next.SpeedY)
	out.PosX = clampInside(next.PosX, worldW)
	out.PosY = clampInside(prev.PosY, worldH)
	e.Commit(out)
}

// clampInside clamps v into [0, limit).
func clampInside(v, limit float64) float64 {
	if v < 0 {
		return 0
	}
	if v >= limit {
		return math.Nextafter(limit, 0)
	}
	return v
}
