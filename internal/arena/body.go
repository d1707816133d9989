package arena

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"space-arena/internal/arena/physics"
	"space-arena/internal/arena/weapons"

	"github.com/google/uuid"
)

// Body is one simulated entity. Kind-specific behaviour is selected through
// the capability table rather than separate types.
type Body struct {
	id      string
	kind    Kind
	assetID string
	state   atomic.Int32
	born    atomic.Int64 // unix nanos, shifted forward by Resume
	maxLife float64      // seconds, <=0 unbounded

	engine *physics.Engine
	sim    *Simulation

	accelFor time.Duration // 0 accelerates for the whole life

	// Projectile only.
	shooterID string
	immunity  time.Duration

	// Player only.
	rig *playerRig

	// Scratch owned by the body's loop.
	cellScratch []int
	candidates  []string
	seen        map[string]struct{}
}

func newEntityID() string {
	return uuid.NewString()
}

func newBody(sim *Simulation, kind Kind, assetID string, initial physics.State, maxLife float64) *Body {
	b := &Body{
		id:      newEntityID(),
		kind:    kind,
		assetID: assetID,
		maxLife: maxLife,
		engine:  physics.NewEngine(initial, sim.integrator),
		sim:     sim,
	}
	b.born.Store(initial.Timestamp.UnixNano())
	if kind.Moving() {
		b.cellScratch = sim.grid.NewScratch()
		b.candidates = make([]string, 0, 16)
		b.seen = make(map[string]struct{}, 16)
	}
	return b
}

// ID returns the immutable entity id.
func (b *Body) ID() string { return b.id }

// Kind returns the body variant.
func (b *Body) Kind() Kind { return b.kind }

// AssetID returns the visual asset identifier.
func (b *Body) AssetID() string { return b.assetID }

// State returns the lifecycle state.
func (b *Body) State() BodyState { return BodyState(b.state.Load()) }

// Physics returns the last committed kinematic state.
func (b *Body) Physics() physics.State { return b.engine.Current() }

// ShooterID returns the shooter of a projectile, empty otherwise.
func (b *Body) ShooterID() string { return b.shooterID }

// Activate moves the body from STARTING to ALIVE.
func (b *Body) Activate() error {
	if b.sim == nil || b.engine == nil {
		return ErrNotWired
	}
	if !b.state.CompareAndSwap(int32(StateStarting), int32(StateAlive)) {
		return ErrAlreadyActivated
	}
	return nil
}

// Age returns the time since creation.
func (b *Body) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, b.born.Load()))
}

// shiftClock moves the body's time origin forward so the span between
// pausedAt and now does not count as elapsed time. Bodies created during
// the pause only skip the part they lived through.
func (b *Body) shiftClock(pausedAt, now time.Time) {
	since := func(t time.Time) time.Duration {
		if t.Before(pausedAt) {
			t = pausedAt
		}
		return now.Sub(t)
	}

	born := time.Unix(0, b.born.Load())
	b.born.Add(int64(since(born)))
	if b.kind.Moving() {
		b.engine.ShiftTimestamp(since(b.engine.Current().Timestamp))
	}
}

// burnOut drops the linear acceleration once the committed state has used
// up its acceleration time.
func (b *Body) burnOut() {
	if b.accelFor <= 0 {
		return
	}
	st := b.engine.Current()
	if (st.AccX != 0 || st.AccY != 0) && b.Age(st.Timestamp) >= b.accelFor {
		b.engine.ResetAcceleration()
	}
}

// LifeOver reports whether a bounded lifetime has elapsed at now.
func (b *Body) LifeOver(now time.Time) bool {
	return b.maxLife > 0 && b.Age(now).Seconds() >= b.maxLife
}

// LifePercentage returns the fraction of the lifetime left, or 1 for
// unbounded bodies.
func (b *Body) LifePercentage(now time.Time) float64 {
	if b.maxLife <= 0 {
		return 1
	}
	left := 1 - b.Age(now).Seconds()/b.maxLife
	if left < 0 {
		return 0
	}
	return left
}

// withinImmunity reports whether a projectile is still inside its shooter
// immunity window at now.
func (b *Body) withinImmunity(now time.Time) bool {
	return b.kind.caps().immunity && b.Age(now) < b.immunity
}

// run is the body's physics loop. It exits when the body dies or ctx is
// cancelled.
func (b *Body) run(ctx context.Context, interval time.Duration, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if b.State() == StateDead {
			return
		}
		if b.State() == StateAlive {
			b.sim.tick(b)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// playerRig is the weapon and status payload of a player body.
type playerRig struct {
	mu       sync.Mutex
	weapons  []weapons.Weapon
	selected int // -1 when the player has no weapon
	status   Gameplay

	trail *weapons.Emitter // nil when trails are disabled

	maxThrust        float64
	maxAngularAcc    float64
	baseAngularSpeed float64
}

// Gameplay holds player scalars owned by the rules layer. The simulation
// core never reads them.
type Gameplay struct {
	Damage      float64 `json:"damage"`
	Energy      float64 `json:"energy"`
	Shield      float64 `json:"shield"`
	Temperature int     `json:"temperature"`
	Score       int     `json:"score"`
}

func newPlayerRig(tuning PlayerTuning) *playerRig {
	return &playerRig{
		selected:         -1,
		status:           Gameplay{Energy: 1, Shield: 1, Temperature: 1},
		maxThrust:        tuning.MaxThrust,
		maxAngularAcc:    tuning.MaxAngularAcceleration,
		baseAngularSpeed: tuning.AngularSpeed,
	}
}

func (r *playerRig) addWeapon(w weapons.Weapon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weapons = append(r.weapons, w)
	if r.selected < 0 {
		r.selected = 0
	}
}

func (r *playerRig) active() weapons.Weapon {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected < 0 || r.selected >= len(r.weapons) {
		return nil
	}
	return r.weapons[r.selected]
}

func (r *playerRig) selectNext() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.weapons) == 0 {
		return
	}
	r.selected = (r.selected + 1) % len(r.weapons)
}

func (r *playerRig) selectIndex(i int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.weapons) {
		return false
	}
	r.selected = i
	return true
}
