package weapons

import (
	"errors"
)

// ErrInvalidEmissionRate is returned by NewEmitter for a non-positive rate.
var ErrInvalidEmissionRate = errors.New("weapons: emission rate must be positive")

// Emitter paces the trail left by a thrusting player. It follows the
// single-shot machine without ammo: a request emits once, then requests are
// dropped for 1/rate seconds.
type Emitter struct {
	requests
	rate     float64 // emissions per second
	cooldown float64 // seconds, owned by the body loop
}

// NewEmitter creates an emitter producing at most rate emissions per second.
func NewEmitter(rate float64) (*Emitter, error) {
	if rate <= 0 {
		return nil, ErrInvalidEmissionRate
	}
	return &Emitter{rate: rate}, nil
}

// RegisterRequest asks for an emission. Safe from any goroutine.
func (e *Emitter) RegisterRequest() { e.register() }

// MustEmitNow advances the cooldown by dt seconds and reports whether an
// emission is due. Called from the owning body loop only.
func (e *Emitter) MustEmitNow(dt float64) bool {
	if e.cooldown > 0 {
		e.cooldown -= dt
		e.discardRequests()
		return false
	}
	if !e.hasRequest() {
		e.cooldown = 0
		return false
	}

	e.discardRequests()
	e.cooldown = 1.0 / e.rate
	return true
}
