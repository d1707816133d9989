// Package generator populates an arena: it seeds players, statics and
// decorators once, then keeps adding random asteroids while the simulation
// runs.
package generator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"space-arena/internal/arena"
	"space-arena/internal/arena/weapons"

	"github.com/rs/zerolog"
)

// Arena is the part of the simulation the generator drives.
type Arena interface {
	AddDynamic(spec arena.DynamicSpec) (string, error)
	AddPlayer(spec arena.DynamicSpec) (string, error)
	AddWeapon(playerID string, cfg weapons.Config) error
	AddStatic(assetID string, size, posX, posY, angle, maxLife float64) (string, error)
	AddDecorator(assetID string, size, posX, posY, angle, maxLife float64) (string, error)
	WorldSize() (width, height float64)
	RunState() arena.RunState
}

// Placement is a fixed body of the scene.
type Placement struct {
	AssetID string  `json:"assetId" mapstructure:"assetId"`
	Size    float64 `json:"size" mapstructure:"size"`
	X       float64 `json:"x" mapstructure:"x"`
	Y       float64 `json:"y" mapstructure:"y"`
	Angle   float64 `json:"angle" mapstructure:"angle"`
}

// Config tunes the generator.
type Config struct {
	AsteroidAssets   []string
	MinSize          float64
	MaxSize          float64
	MaxSpeed         float64 // speed module upper bound
	MaxAcc           float64 // acceleration module upper bound
	MaxAngularSpeed  float64 // degrees/s, spread evenly around zero
	MaxCreationDelay time.Duration

	Players     int
	PlayerAsset string
	PlayerSize  float64
	Weapons     []weapons.Config

	Statics    []Placement
	Decorators []Placement

	Seed uint64 // 0 picks a random seed
}

// DefaultWeapons returns the stock loadout: primary, burst, missile
// launcher and mine launcher, in that order.
func DefaultWeapons() []weapons.Config {
	return []weapons.Config{
		{
			Kind: weapons.KindPrimary, ProjectileAssetID: "bullet", ProjectileSize: 6,
			ProjectileMaxLife: 6, FiringSpeed: 350, ShootingOffset: 0,
			FireRate: 8, MaxAmmo: 100, ReloadTime: 2,
		},
		{
			Kind: weapons.KindBurst, ProjectileAssetID: "bullet", ProjectileSize: 4,
			ProjectileMaxLife: 0.4, FiringSpeed: 1000,
			FireRate: 5, BurstSize: 7, BurstFireRate: 190, MaxAmmo: 200, ReloadTime: 4,
		},
		{
			Kind: weapons.KindMissileLauncher, ProjectileAssetID: "missile", ProjectileSize: 14,
			ProjectileMaxLife: 1, Acceleration: 6000, AccelerationTime: 1, ShootingOffset: -15,
			FireRate: 4, MaxAmmo: 4, ReloadTime: 4,
		},
		{
			Kind: weapons.KindMineLauncher, ProjectileAssetID: "mine", ProjectileSize: 12,
			ProjectileMaxLife: 20, ShootingOffset: 15,
			FireRate: 1, MaxAmmo: 2, ReloadTime: 10,
		},
	}
}

// DefaultConfig returns the stock scene.
func DefaultConfig() Config {
	return Config{
		AsteroidAssets:   []string{"asteroid-1", "asteroid-2", "asteroid-3"},
		MinSize:          6,
		MaxSize:          25,
		MaxSpeed:         175,
		MaxAcc:           0,
		MaxAngularSpeed:  460,
		MaxCreationDelay: 1200 * time.Millisecond,
		Players:          1,
		PlayerAsset:      "spaceship",
		PlayerSize:       40,
		Weapons:          DefaultWeapons(),
		Statics: []Placement{
			{AssetID: "sun", Size: 30, X: 300, Y: 300},
			{AssetID: "black-hole", Size: 50, X: 1200, Y: 700},
		},
		Decorators: []Placement{
			{AssetID: "nebula", Size: 200, X: 800, Y: 500},
		},
	}
}

// Generator adds bodies to an Arena.
type Generator struct {
	cfg   Config
	arena Arena
	log   zerolog.Logger

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// New validates cfg and builds a generator.
func New(cfg Config, a Arena, log zerolog.Logger) (*Generator, error) {
	if len(cfg.AsteroidAssets) == 0 {
		return nil, errors.New("generator: no asteroid assets")
	}
	if cfg.MinSize <= 0 || cfg.MaxSize < cfg.MinSize {
		return nil, fmt.Errorf("generator: invalid size range [%v, %v]", cfg.MinSize, cfg.MaxSize)
	}
	if cfg.MaxCreationDelay <= 0 {
		return nil, errors.New("generator: creation delay must be positive")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Generator{
		cfg:   cfg,
		arena: a,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		log:   log.With().Str("component", "generator").Logger(),
	}, nil
}

// Seed creates the configured statics, decorators and players and returns
// the player ids.
func (g *Generator) Seed() ([]string, error) {
	for _, p := range g.cfg.Statics {
		if _, err := g.arena.AddStatic(p.AssetID, p.Size, p.X, p.Y, p.Angle, 0); err != nil {
			return nil, fmt.Errorf("adding static %s: %w", p.AssetID, err)
		}
	}
	for _, p := range g.cfg.Decorators {
		if _, err := g.arena.AddDecorator(p.AssetID, p.Size, p.X, p.Y, p.Angle, 0); err != nil {
			return nil, fmt.Errorf("adding decorator %s: %w", p.AssetID, err)
		}
	}

	ids := make([]string, 0, g.cfg.Players)
	for i := 0; i < g.cfg.Players; i++ {
		id, err := g.AddPlayer()
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}

	g.log.Info().
		Int("players", len(ids)).
		Int("statics", len(g.cfg.Statics)).
		Int("decorators", len(g.cfg.Decorators)).
		Msg("Scene seeded")
	return ids, nil
}

// AddPlayer spawns a player near the world centre with the configured
// loadout.
func (g *Generator) AddPlayer() (string, error) {
	w, h := g.arena.WorldSize()
	g.mu.Lock()
	spin := g.spread(270)
	g.mu.Unlock()

	id, err := g.arena.AddPlayer(arena.DynamicSpec{
		AssetID:      g.cfg.PlayerAsset,
		Size:         g.cfg.PlayerSize,
		PosX:         w / 2,
		PosY:         h / 2,
		AngularSpeed: spin,
	})
	if err != nil {
		return "", fmt.Errorf("adding player: %w", err)
	}
	for _, wc := range g.cfg.Weapons {
		if err := g.arena.AddWeapon(id, wc); err != nil {
			return id, fmt.Errorf("arming player %s: %w", id, err)
		}
	}
	return id, nil
}

// AddAsteroid spawns one random dynamic body.
func (g *Generator) AddAsteroid() (string, error) {
	w, h := g.arena.WorldSize()

	g.mu.Lock()
	vx, vy := g.vector(g.cfg.MaxSpeed)
	ax, ay := g.vector(g.cfg.MaxAcc)
	spec := arena.DynamicSpec{
		AssetID:      g.cfg.AsteroidAssets[g.rng.IntN(len(g.cfg.AsteroidAssets))],
		Size:         g.cfg.MinSize + g.rng.Float64()*(g.cfg.MaxSize-g.cfg.MinSize),
		PosX:         g.rng.Float64() * w,
		PosY:         g.rng.Float64() * h,
		SpeedX:       vx,
		SpeedY:       vy,
		AccX:         ax,
		AccY:         ay,
		AngularSpeed: g.spread(g.cfg.MaxAngularSpeed),
	}
	g.mu.Unlock()

	return g.arena.AddDynamic(spec)
}

// vector returns a random direction scaled to a random module in [0, limit).
func (g *Generator) vector(limit float64) (x, y float64) {
	if limit <= 0 {
		return 0, 0
	}
	dx, dy := g.rng.NormFloat64(), g.rng.NormFloat64()
	n := math.Hypot(dx, dy)
	if n == 0 {
		return 0, 0
	}
	m := g.rng.Float64() * limit
	return dx / n * m, dy / n * m
}

func (g *Generator) spread(limit float64) float64 {
	return g.rng.Float64()*limit - limit/2
}

// Run adds asteroids at random intervals until ctx is cancelled or the
// arena stops. Nothing is added while the arena is paused.
func (g *Generator) Run(ctx context.Context) {
	g.log.Info().Dur("maxDelay", g.cfg.MaxCreationDelay).Msg("Generator started")
	defer g.log.Info().Msg("Generator stopped")

	for {
		g.mu.Lock()
		delay := time.Duration(g.rng.Int64N(int64(g.cfg.MaxCreationDelay)))
		g.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		switch g.arena.RunState() {
		case arena.RunStopped:
			return
		case arena.RunRunning:
			if _, err := g.AddAsteroid(); err != nil {
				if errors.Is(err, arena.ErrBodyLimit) {
					g.log.Debug().Msg("Body limit reached, skipping asteroid")
					continue
				}
				g.log.Warn().Err(err).Msg("Failed to add asteroid")
			}
		}
	}
}
