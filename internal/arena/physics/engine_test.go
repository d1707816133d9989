package physics

import (
	"math"
	"sync"
	"testing"
	"time"
)

const eps = 1e-9

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

// TestComputeNextDoesNotCommit verifies computing a step leaves the held state alone
func TestComputeNextDoesNotCommit(t *testing.T) {
	t0 := time.Unix(1000, 0)
	e := NewEngine(State{Timestamp: t0, PosX: 10, PosY: 10, SpeedX: 100, Size: 10}, nil)

	next := e.ComputeNext(t0.Add(time.Second))
	if !almost(next.PosX, 110) {
		t.Errorf("Expected next PosX 110, got %f", next.PosX)
	}
	if got := e.Current().PosX; got != 10 {
		t.Errorf("ComputeNext must not mutate the held state, PosX is %f", got)
	}

	e.Commit(next)
	if got := e.Current().PosX; !almost(got, 110) {
		t.Errorf("Expected committed PosX 110, got %f", got)
	}
}

// TestEulerStep checks constant acceleration, thrust and rotation
func TestEulerStep(t *testing.T) {
	t0 := time.Unix(0, 0)
	tests := []struct {
		name       string
		in         State
		dt         time.Duration
		wantX      float64
		wantY      float64
		wantSpeedX float64
		wantAngle  float64
	}{
		{
			name:       "constant velocity",
			in:         State{Timestamp: t0, SpeedX: 10, SpeedY: -5},
			dt:         2 * time.Second,
			wantX:      20,
			wantY:      -10,
			wantSpeedX: 10,
		},
		{
			name:       "acceleration",
			in:         State{Timestamp: t0, AccX: 2},
			dt:         time.Second,
			wantX:      1,
			wantSpeedX: 2,
		},
		{
			name:       "thrust along heading",
			in:         State{Timestamp: t0, Angle: 0, Thrust: 4},
			dt:         time.Second,
			wantX:      2,
			wantSpeedX: 4,
		},
		{
			name:      "rotation wraps",
			in:        State{Timestamp: t0, Angle: 350, AngularSpeed: 20},
			dt:        time.Second,
			wantAngle: 10,
		},
		{
			name: "negative dt is ignored",
			in:   State{Timestamp: t0.Add(time.Second), PosX: 5, SpeedX: 100},
			dt:   -time.Second,
			// dt is measured against the input timestamp
			wantX:      5,
			wantSpeedX: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := EulerIntegrator{}.Step(tt.in, t0.Add(tt.dt))
			if !almost(out.PosX, tt.wantX) || !almost(out.PosY, tt.wantY) {
				t.Errorf("Expected pos (%f,%f), got (%f,%f)", tt.wantX, tt.wantY, out.PosX, out.PosY)
			}
			if !almost(out.SpeedX, tt.wantSpeedX) {
				t.Errorf("Expected SpeedX %f, got %f", tt.wantSpeedX, out.SpeedX)
			}
			if !almost(out.Angle, tt.wantAngle) {
				t.Errorf("Expected angle %f, got %f", tt.wantAngle, out.Angle)
			}
		})
	}
}

// TestEulerMaxSpeed verifies the speed cap
func TestEulerMaxSpeed(t *testing.T) {
	t0 := time.Unix(0, 0)
	out := EulerIntegrator{MaxSpeed: 50}.Step(State{Timestamp: t0, AccX: 1000}, t0.Add(time.Second))
	if got := math.Hypot(out.SpeedX, out.SpeedY); got > 50+eps {
		t.Errorf("Speed should be capped at 50, got %f", got)
	}
}

// TestSetters verifies read-modify-replace setters keep other fields
func TestSetters(t *testing.T) {
	e := NewEngine(State{PosX: 3, AccX: 1, AccY: 2}, nil)

	e.SetThrust(80)
	e.SetAngularSpeed(30)
	e.AddAngularAcceleration(1000)
	e.AddAngularAcceleration(-250)
	e.ResetAcceleration()

	s := e.Current()
	if s.Thrust != 80 || s.AngularSpeed != 30 || s.AngularAcc != 750 {
		t.Errorf("Unexpected control values: %+v", s)
	}
	if s.AccX != 0 || s.AccY != 0 {
		t.Errorf("ResetAcceleration should zero linear acceleration, got (%f,%f)", s.AccX, s.AccY)
	}
	if s.PosX != 3 {
		t.Errorf("Setters must not touch position, got %f", s.PosX)
	}

	e.SetAngularAcceleration(0)
	if e.Current().AngularAcc != 0 {
		t.Error("SetAngularAcceleration(0) should zero angular acceleration")
	}
}

// TestRebounds verifies velocity reflection and clamping
func TestRebounds(t *testing.T) {
	const w, h = 100.0, 50.0

	tests := []struct {
		name   string
		next   State
		prev   State
		apply  func(e *Engine, next, prev State)
		checks func(t *testing.T, s State)
	}{
		{
			name:  "east",
			next:  State{PosX: -3, PosY: 10, SpeedX: -20},
			prev:  State{PosX: 1, PosY: 10},
			apply: func(e *Engine, n, p State) { e.ReboundEast(n, p, w, h) },
			checks: func(t *testing.T, s State) {
				if s.SpeedX != 20 || s.PosX != 1 {
					t.Errorf("East rebound: got speed %f pos %f", s.SpeedX, s.PosX)
				}
			},
		},
		{
			name:  "west",
			next:  State{PosX: 104, PosY: 10, SpeedX: 20},
			prev:  State{PosX: 120, PosY: 10},
			apply: func(e *Engine, n, p State) { e.ReboundWest(n, p, w, h) },
			checks: func(t *testing.T, s State) {
				if s.SpeedX != -20 || s.PosX >= w {
					t.Errorf("West rebound: got speed %f pos %f", s.SpeedX, s.PosX)
				}
			},
		},
		{
			name:  "north",
			next:  State{PosX: 10, PosY: -1, SpeedY: -7},
			prev:  State{PosX: 10, PosY: 2},
			apply: func(e *Engine, n, p State) { e.ReboundNorth(n, p, w, h) },
			checks: func(t *testing.T, s State) {
				if s.SpeedY != 7 || s.PosY != 2 {
					t.Errorf("North rebound: got speed %f pos %f", s.SpeedY, s.PosY)
				}
			},
		},
		{
			name:  "south",
			next:  State{PosX: 10, PosY: 51, SpeedY: 7},
			prev:  State{PosX: 10, PosY: 49},
			apply: func(e *Engine, n, p State) { e.ReboundSouth(n, p, w, h) },
			checks: func(t *testing.T, s State) {
				if s.SpeedY != -7 || s.PosY != 49 {
					t.Errorf("South rebound: got speed %f pos %f", s.SpeedY, s.PosY)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(tt.prev, nil)
			tt.apply(e, tt.next, tt.prev)
			tt.checks(t, e.Current())
		})
	}
}

// TestIntersectsBoundary verifies touching circles collide
func TestIntersectsBoundary(t *testing.T) {
	a := State{PosX: 0, PosY: 0, Size: 10}
	b := State{PosX: 15, PosY: 0, Size: 20} // D == (10+20)/2

	if !Intersects(a, b) {
		t.Error("Circles at exactly (d1+d2)/2 should intersect")
	}

	b.PosX = 15.0001
	if Intersects(a, b) {
		t.Error("Circles just beyond (d1+d2)/2 should not intersect")
	}
}

// TestConcurrentReadsDuringCommit exercises the snapshot swap under -race
func TestConcurrentReadsDuringCommit(t *testing.T) {
	e := NewEngine(State{Size: 1}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				s := e.Current()
				if s.PosX != s.PosY {
					t.Errorf("Torn state observed: %f != %f", s.PosX, s.PosY)
					return
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		e.Commit(State{PosX: float64(i), PosY: float64(i), Size: 1})
	}
	wg.Wait()
}
