// Package weapons implements the per-weapon cooldown and ammo state machines
// consulted once per tick for a player's selected weapon.
//
// Fire requests are edge-triggered and lossy: a request made while the
// weapon is cooling down or reloading is dropped, never queued.
package weapons

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

var (
	// ErrUnknownKind is returned by New for an unrecognized weapon kind.
	ErrUnknownKind = errors.New("weapons: unknown weapon kind")
	// ErrInvalidConfig is returned by New for unusable rates or ammo.
	ErrInvalidConfig = errors.New("weapons: invalid weapon config")
)

// Kind selects the weapon state machine.
type Kind int

const (
	KindPrimary Kind = iota
	KindBurst
	KindMissileLauncher
	KindMineLauncher
)

var kindNames = map[Kind]string{
	KindPrimary:         "primary",
	KindBurst:           "burst",
	KindMissileLauncher: "missile",
	KindMineLauncher:    "mine",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a name such as "burst" to a Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// ReadyState is the weapon readiness.
type ReadyState int32

const (
	Ready ReadyState = iota
	Reloading
)

func (s ReadyState) String() string {
	if s == Reloading {
		return "reloading"
	}
	return "ready"
}

// Config describes a weapon and the projectiles it launches.
type Config struct {
	Kind              Kind    `json:"kind" mapstructure:"kind"`
	ProjectileAssetID string  `json:"projectileAssetId" mapstructure:"projectileAssetId"`
	ProjectileSize    float64 `json:"projectileSize" mapstructure:"projectileSize"`
	ProjectileMaxLife float64 `json:"projectileMaxLife" mapstructure:"projectileMaxLife"` // seconds, <=0 unbounded
	FiringSpeed       float64 `json:"firingSpeed" mapstructure:"firingSpeed"`
	Acceleration      float64 `json:"acceleration" mapstructure:"acceleration"`
	// AccelerationTime is how long the projectile keeps accelerating, in
	// seconds. Zero or less accelerates for its whole life.
	AccelerationTime float64 `json:"accelerationTime" mapstructure:"accelerationTime"`
	ShootingOffset   float64 `json:"shootingOffset" mapstructure:"shootingOffset"`
	FireRate         float64 `json:"fireRate" mapstructure:"fireRate"` // shots (or bursts) per second
	BurstSize        int     `json:"burstSize" mapstructure:"burstSize"`
	BurstFireRate    float64 `json:"burstFireRate" mapstructure:"burstFireRate"`
	MaxAmmo          int     `json:"maxAmmo" mapstructure:"maxAmmo"`
	ReloadTime       float64 `json:"reloadTime" mapstructure:"reloadTime"` // seconds
}

// Validate reports whether the config can drive a state machine.
func (c Config) Validate() error {
	if c.FireRate <= 0 {
		return fmt.Errorf("%w: fire rate must be positive", ErrInvalidConfig)
	}
	if c.MaxAmmo <= 0 {
		return fmt.Errorf("%w: max ammo must be positive", ErrInvalidConfig)
	}
	if c.ReloadTime < 0 {
		return fmt.Errorf("%w: reload time must not be negative", ErrInvalidConfig)
	}
	if c.Kind == KindBurst && c.BurstFireRate <= 0 {
		return fmt.Errorf("%w: burst fire rate must be positive", ErrInvalidConfig)
	}
	return nil
}

// Weapon is a per-player cooldown/ammo state machine.
//
// MustFireNow is called from the owning body's loop only. RegisterFireRequest
// may be called from any goroutine.
type Weapon interface {
	Config() Config
	RegisterFireRequest()
	MustFireNow(dtSeconds float64) bool
	AmmoStatus() float64
	State() ReadyState
}

// New builds the state machine for cfg.Kind.
func New(cfg Config) (Weapon, error) {
	if _, ok := kindNames[cfg.Kind]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(cfg.Kind))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case KindPrimary:
		w := &SingleShot{}
		w.init(cfg)
		return w, nil
	case KindBurst:
		w := &Burst{}
		w.init(cfg)
		return w, nil
	case KindMissileLauncher:
		w := &MissileLauncher{}
		w.init(cfg)
		return w, nil
	default:
		w := &MineLauncher{}
		w.init(cfg)
		return w, nil
	}
}

// requests counts edge-triggered requests. register may be called from any
// goroutine; the rest belongs to the owning body loop.
type requests struct {
	requested atomic.Uint64
	handled   uint64
}

func (r *requests) register() { r.requested.Add(1) }

func (r *requests) hasRequest() bool { return r.requested.Load() > r.handled }

func (r *requests) discardRequests() { r.handled = r.requested.Load() }

// base holds the state shared by every variant. It is initialised in place
// and never copied.
type base struct {
	requests
	cfg      Config
	ammo     atomic.Int32
	state    atomic.Int32
	cooldown float64 // seconds, owned by the body loop
}

func (b *base) init(cfg Config) {
	b.cfg = cfg
	b.ammo.Store(int32(cfg.MaxAmmo))
}

func (b *base) Config() Config { return b.cfg }

func (b *base) RegisterFireRequest() { b.register() }

func (b *base) State() ReadyState { return ReadyState(b.state.Load()) }

// AmmoStatus returns the loaded fraction in [0,1].
func (b *base) AmmoStatus() float64 {
	return float64(b.ammo.Load()) / float64(b.cfg.MaxAmmo)
}

// coolDown decrements the cooldown. It reports true while the weapon is
// still cooling, in which case pending requests are dropped.
func (b *base) coolDown(dt float64) bool {
	if b.cooldown <= 0 {
		return false
	}
	b.cooldown -= dt
	b.discardRequests()
	return true
}

// reloadIfEmpty starts a reload when the magazine is empty.
func (b *base) reloadIfEmpty() bool {
	if b.ammo.Load() > 0 {
		return false
	}
	b.state.Store(int32(Reloading))
	b.discardRequests()
	b.cooldown = b.cfg.ReloadTime
	b.ammo.Store(int32(b.cfg.MaxAmmo))
	return true
}

// fireOnce is the single-shot machine shared by primary, mine and missile.
func (b *base) fireOnce(dt float64) bool {
	if b.coolDown(dt) {
		return false
	}
	if b.reloadIfEmpty() {
		return false
	}

	b.state.Store(int32(Ready))
	if !b.hasRequest() {
		b.cooldown = 0
		return false
	}

	b.discardRequests()
	b.ammo.Add(-1)
	b.cooldown = 1.0 / b.cfg.FireRate
	return true
}
