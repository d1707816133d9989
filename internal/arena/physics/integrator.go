package physics

import (
	"math"
	"time"
)

// Integrator advances a State to a new timestamp. Implementations must be
// pure: the input State is never modified.
type Integrator interface {
	Step(s State, now time.Time) State
}

// EulerIntegrator assumes constant acceleration over the step. Thrust is
// applied along the heading as extra acceleration.
type EulerIntegrator struct {
	// MaxSpeed caps the speed module. Zero means unbounded.
	MaxSpeed float64
}

// Step implements Integrator.
func (e EulerIntegrator) Step(s State, now time.Time) State {
	dt := now.Sub(s.Timestamp).Seconds()
	if dt < 0 {
		dt = 0
	}

	next := s
	next.Timestamp = now

	ax, ay := s.AccX, s.AccY
	if s.Thrust != 0 {
		hx, hy := s.Heading()
		ax += s.Thrust * hx
		ay += s.Thrust * hy
	}

	next.SpeedX = s.SpeedX + ax*dt
	next.SpeedY = s.SpeedY + ay*dt
	if e.MaxSpeed > 0 {
		if module := math.Hypot(next.SpeedX, next.SpeedY); module > e.MaxSpeed {
			k := e.MaxSpeed / module
			next.SpeedX *= k
			next.SpeedY *= k
		}
	}

	next.PosX = s.PosX + s.SpeedX*dt + 0.5*ax*dt*dt
	next.PosY = s.PosY + s.SpeedY*dt + 0.5*ay*dt*dt

	next.AngularSpeed = s.AngularSpeed + s.AngularAcc*dt
	next.Angle = normalizeAngle(s.Angle + next.AngularSpeed*dt)

	return next
}

func normalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
