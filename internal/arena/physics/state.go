// Package physics holds the kinematic state of a single body and the engine
// that advances it.
//
// State values are immutable once published: every change builds a new
// State and swaps it in atomically, so readers on other goroutines never see
// a half-written value.
package physics

import (
	"math"
	"time"
)

// State is an immutable kinematic snapshot of one body.
// Angle is in degrees; Size is the body diameter.
type State struct {
	Timestamp    time.Time `json:"ts" msgpack:"ts"`
	PosX         float64   `json:"x" msgpack:"x"`
	PosY         float64   `json:"y" msgpack:"y"`
	Angle        float64   `json:"angle" msgpack:"a"`
	Size         float64   `json:"size" msgpack:"s"`
	SpeedX       float64   `json:"vx" msgpack:"vx"`
	SpeedY       float64   `json:"vy" msgpack:"vy"`
	AccX         float64   `json:"ax" msgpack:"ax"`
	AccY         float64   `json:"ay" msgpack:"ay"`
	AngularSpeed float64   `json:"angularSpeed" msgpack:"w"`
	AngularAcc   float64   `json:"angularAcc" msgpack:"wa"`
	Thrust       float64   `json:"thrust" msgpack:"t"`
}

// NewStaticState builds the state of a body that never moves.
func NewStaticState(size, posX, posY, angle float64, now time.Time) State {
	return State{
		Timestamp: now,
		PosX:      posX,
		PosY:      posY,
		Angle:     angle,
		Size:      size,
	}
}

// Radius returns half the diameter.
func (s State) Radius() float64 {
	return s.Size * 0.5
}

// Bounds returns the axis-aligned bounding box of the body's circle.
func (s State) Bounds() (minX, maxX, minY, maxY float64) {
	r := s.Radius()
	return s.PosX - r, s.PosX + r, s.PosY - r, s.PosY + r
}

// Heading returns the unit vector the body is facing.
func (s State) Heading() (x, y float64) {
	rad := s.Angle * math.Pi / 180
	return math.Cos(rad), math.Sin(rad)
}

// Intersects reports whether two bodies overlap, treating Size as a
// diameter. Touching circles count as intersecting.
func Intersects(a, b State) bool {
	r := a.Radius() + b.Radius()
	dx := a.PosX - b.PosX
	dy := a.PosY - b.PosY
	return dx*dx+dy*dy <= r*r
}

// Elapsed returns seconds between two states, never negative.
func Elapsed(from, to State) float64 {
	dt := to.Timestamp.Sub(from.Timestamp).Seconds()
	if dt < 0 {
		return 0
	}
	return dt
}
