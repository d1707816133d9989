// Package arena is the concurrent simulation kernel: body lifecycle, per-body
// physics loops, event detection and action execution.
//
// Every moving body runs its own goroutine. Bodies share the spatial grid
// and the registries, which are concurrent maps; no global lock is taken.
// Ticks of different bodies are not synchronized, so the collision view of
// one body may be slightly stale with respect to another.
package arena

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"space-arena/internal/arena/physics"
	"space-arena/internal/arena/spatial"
	"space-arena/internal/arena/weapons"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidMaxBodies  = errors.New("arena: max dynamic bodies must be positive")
	ErrNoPolicy          = errors.New("arena: policy is not set")
	ErrAlreadyActivated  = errors.New("arena: already activated")
	ErrNotWired          = errors.New("arena: body is not wired to a simulation")
	ErrStopped           = errors.New("arena: simulation stopped")
	ErrBodyLimit         = errors.New("arena: max dynamic bodies reached")
	ErrUnknownBody       = errors.New("arena: unknown body")
	ErrNotPlayer         = errors.New("arena: body is not a player")
	ErrUnsupportedAction = errors.New("arena: unsupported action")
	ErrProcessingFault   = errors.New("arena: fault while processing body")
)

// RunState is the simulation lifecycle.
type RunState int32

const (
	RunStarting RunState = iota
	RunRunning
	RunPaused
	RunStopped
)

func (s RunState) String() string {
	switch s {
	case RunStarting:
		return "starting"
	case RunRunning:
		return "running"
	case RunPaused:
		return "paused"
	case RunStopped:
		return "stopped"
	}
	return "unknown"
}

// PlayerTuning holds the control limits given to new players.
type PlayerTuning struct {
	MaxThrust              float64
	MaxAngularAcceleration float64
	AngularSpeed           float64 // degrees/s applied when a rotation starts from rest
}

// TrailConfig describes the decorator created by ActionSpawn and how often
// a thrusting player leaves one.
type TrailConfig struct {
	AssetID      string
	Size         float64
	MaxLife      float64 // seconds
	EmissionRate float64 // trails per second while thrusting, <=0 disables
}

// Config configures a Simulation.
type Config struct {
	WorldWidth       float64
	WorldHeight      float64
	CellSize         float64
	MaxCellsPerBody  int
	MaxDynamicBodies int

	TickInterval    time.Duration // per-body loop period
	ShooterImmunity time.Duration // projectile vs. its own shooter
	SweepInterval   time.Duration // expiry check for statics and decorators
	NotifyQueueSize int

	Player PlayerTuning
	Trail  TrailConfig

	// ManualStepping disables body goroutines; callers drive bodies with
	// StepBody. Used for replays and deterministic tests.
	ManualStepping bool

	Logger     zerolog.Logger
	Clock      func() time.Time
	Integrator physics.Integrator
}

// DefaultConfig returns the stock arena settings.
func DefaultConfig() Config {
	return Config{
		WorldWidth:       1600,
		WorldHeight:      1000,
		CellSize:         128,
		MaxCellsPerBody:  16,
		MaxDynamicBodies: 5000,
		TickInterval:     30 * time.Millisecond,
		ShooterImmunity:  time.Second,
		SweepInterval:    250 * time.Millisecond,
		NotifyQueueSize:  1024,
		Player: PlayerTuning{
			MaxThrust:              80,
			MaxAngularAcceleration: 1000,
			AngularSpeed:           30,
		},
		Trail: TrailConfig{
			AssetID:      "trail",
			Size:         6,
			MaxLife:      0.4,
			EmissionRate: 20,
		},
	}
}

// SpawnNotice tells the presentation layer a body appeared.
type SpawnNotice struct {
	EntityID string
	AssetID  string
	Kind     Kind
}

// Notifier receives spawn notices. Delivery is asynchronous and
// best-effort; notices are dropped when the queue is full.
type Notifier interface {
	NotifySpawn(n SpawnNotice)
}

// Observer receives per-tick instrumentation from the body loops. Calls are
// made on hot paths and must not block.
type Observer interface {
	ObserveTick(kind Kind, d time.Duration)
	ObserveEvents(events []Event)
	ObserveActions(actions []Action)
}

// Simulation owns the registries, the spatial grid and the event-action
// pipeline. It is the only component that commits changes affecting more
// than one body.
type Simulation struct {
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time
	integrator physics.Integrator
	grid       *spatial.SpatialGrid

	state     atomic.Int32
	pausedAt  atomic.Int64 // unix nanos of the last Pause
	policy    Policy
	notifier  Notifier
	observers []Observer

	dynamic sync.Map // map[string]*Body, moving bodies
	players sync.Map // map[string]*Body
	statics sync.Map // map[string]*Body, statics and decorators

	// staticView is rebuilt copy-on-write; readers never lock.
	staticView atomic.Pointer[[]*Body]
	staticMu   sync.Mutex
	pauseMu    sync.Mutex

	dynamicCount atomic.Int64
	created      atomic.Int64
	alive        atomic.Int64
	dead         atomic.Int64

	notices        *spatial.Ring[SpawnNotice]
	droppedNotices atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSimulation validates cfg and builds an idle simulation. Wire a Policy
// with SetPolicy, then call Activate.
func NewSimulation(cfg Config) (*Simulation, error) {
	if cfg.MaxDynamicBodies <= 0 {
		return nil, ErrInvalidMaxBodies
	}

	log := cfg.Logger.With().Str("component", "simulation").Logger()
	grid, err := spatial.NewSpatialGrid(cfg.WorldWidth, cfg.WorldHeight, cfg.CellSize, cfg.MaxCellsPerBody, log)
	if err != nil {
		return nil, fmt.Errorf("creating spatial grid: %w", err)
	}

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	if cfg.NotifyQueueSize <= 0 {
		cfg.NotifyQueueSize = DefaultConfig().NotifyQueueSize
	}

	s := &Simulation{
		cfg:        cfg,
		log:        log,
		now:        cfg.Clock,
		integrator: cfg.Integrator,
		grid:       grid,
		notices:    spatial.NewRing[SpawnNotice](cfg.NotifyQueueSize),
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.staticView.Store(&[]*Body{})
	return s, nil
}

// SetPolicy wires the rules layer. It must be called before Activate.
func (s *Simulation) SetPolicy(p Policy) { s.policy = p }

// SetNotifier wires the spawn notification sink. Call before Activate.
func (s *Simulation) SetNotifier(n Notifier) { s.notifier = n }

// AddObserver registers instrumentation. Call before Activate.
func (s *Simulation) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Activate starts the simulation. It fails without a Policy or when called
// twice.
func (s *Simulation) Activate() error {
	if s.policy == nil {
		return ErrNoPolicy
	}
	if !s.state.CompareAndSwap(int32(RunStarting), int32(RunRunning)) {
		return ErrAlreadyActivated
	}

	s.wg.Add(2)
	go s.dispatchNotices()
	go s.sweepExpired()

	s.log.Info().
		Float64("width", s.cfg.WorldWidth).
		Float64("height", s.cfg.WorldHeight).
		Int("maxDynamicBodies", s.cfg.MaxDynamicBodies).
		Msg("Simulation activated")
	return nil
}

// Pause suspends processing; body loops keep polling but do nothing.
func (s *Simulation) Pause() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	if s.state.CompareAndSwap(int32(RunRunning), int32(RunPaused)) {
		s.pausedAt.Store(s.now().UnixNano())
	}
}

// Resume continues a paused simulation. Every body's clock is shifted by
// the paused duration, so motion, lifetimes and weapon cooldowns continue
// where they stopped.
func (s *Simulation) Resume() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	if s.RunState() != RunPaused {
		return
	}

	now := s.now()
	pausedAt := time.Unix(0, s.pausedAt.Load())
	paused := now.Sub(pausedAt)
	if paused > 0 {
		shift := func(_, v any) bool {
			v.(*Body).shiftClock(pausedAt, now)
			return true
		}
		s.dynamic.Range(shift)
		s.statics.Range(shift)
	}
	s.state.CompareAndSwap(int32(RunPaused), int32(RunRunning))
	s.log.Debug().Dur("paused", paused).Msg("Simulation resumed")
}

// Stop cancels every body loop and background worker and waits for them.
func (s *Simulation) Stop() {
	s.state.Store(int32(RunStopped))
	s.cancel()
	s.wg.Wait()
	s.log.Info().Int64("alive", s.alive.Load()).Msg("Simulation stopped")
}

// RunState returns the lifecycle state.
func (s *Simulation) RunState() RunState { return RunState(s.state.Load()) }

// Running reports whether bodies are currently processed.
func (s *Simulation) Running() bool { return s.RunState() == RunRunning }

// WorldSize returns the world dimensions.
func (s *Simulation) WorldSize() (width, height float64) {
	return s.cfg.WorldWidth, s.cfg.WorldHeight
}

// DynamicSpec describes a new moving body.
type DynamicSpec struct {
	AssetID      string
	Size         float64
	PosX, PosY   float64
	SpeedX       float64
	SpeedY       float64
	AccX, AccY   float64
	Angle        float64
	AngularSpeed float64
	AngularAcc   float64
	Thrust       float64
	MaxLife      float64 // seconds, <=0 unbounded
	// AccelerationTime limits how long AccX/AccY apply, in seconds. <=0
	// keeps the acceleration for the whole life.
	AccelerationTime float64
}

func (d DynamicSpec) state(now time.Time) physics.State {
	return physics.State{
		Timestamp:    now,
		PosX:         d.PosX,
		PosY:         d.PosY,
		Angle:        d.Angle,
		Size:         d.Size,
		SpeedX:       d.SpeedX,
		SpeedY:       d.SpeedY,
		AccX:         d.AccX,
		AccY:         d.AccY,
		AngularSpeed: d.AngularSpeed,
		AngularAcc:   d.AngularAcc,
		Thrust:       d.Thrust,
	}
}

// AddDynamic creates and activates a dynamic body and returns its id.
func (s *Simulation) AddDynamic(spec DynamicSpec) (string, error) {
	b, err := s.newMoving(KindDynamic, spec)
	if err != nil {
		return "", err
	}
	return b.id, s.startMoving(b)
}

// AddPlayer creates and activates a player body with no weapons.
func (s *Simulation) AddPlayer(spec DynamicSpec) (string, error) {
	b, err := s.newMoving(KindPlayer, spec)
	if err != nil {
		return "", err
	}
	b.rig = newPlayerRig(s.cfg.Player)
	if rate := s.cfg.Trail.EmissionRate; rate > 0 {
		if b.rig.trail, err = weapons.NewEmitter(rate); err != nil {
			s.dynamicCount.Add(-1)
			return "", err
		}
	}
	s.players.Store(b.id, b)
	return b.id, s.startMoving(b)
}

// AddProjectile creates a projectile owned by shooterID.
func (s *Simulation) AddProjectile(spec DynamicSpec, shooterID string) (string, error) {
	b, err := s.newMoving(KindProjectile, spec)
	if err != nil {
		return "", err
	}
	b.shooterID = shooterID
	b.immunity = s.cfg.ShooterImmunity
	return b.id, s.startMoving(b)
}

// AddStatic creates a static body. Statics never move and never collide.
func (s *Simulation) AddStatic(assetID string, size, posX, posY, angle, maxLife float64) (string, error) {
	return s.addInert(KindStatic, assetID, size, posX, posY, angle, maxLife)
}

// AddDecorator creates a visual-only body. A positive maxLife makes it
// temporary.
func (s *Simulation) AddDecorator(assetID string, size, posX, posY, angle, maxLife float64) (string, error) {
	return s.addInert(KindDecorator, assetID, size, posX, posY, angle, maxLife)
}

// AddWeapon builds a weapon from cfg and appends it to the player's rack.
func (s *Simulation) AddWeapon(playerID string, cfg weapons.Config) error {
	p, ok := s.player(playerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBody, playerID)
	}
	w, err := weapons.New(cfg)
	if err != nil {
		return err
	}
	p.rig.addWeapon(w)
	return nil
}

func (s *Simulation) newMoving(kind Kind, spec DynamicSpec) (*Body, error) {
	if s.RunState() == RunStopped {
		return nil, ErrStopped
	}
	if s.dynamicCount.Add(1) > int64(s.cfg.MaxDynamicBodies) {
		s.dynamicCount.Add(-1)
		return nil, ErrBodyLimit
	}
	b := newBody(s, kind, spec.AssetID, spec.state(s.now()), spec.MaxLife)
	if spec.AccelerationTime > 0 {
		b.accelFor = time.Duration(spec.AccelerationTime * float64(time.Second))
	}
	return b, nil
}

func (s *Simulation) startMoving(b *Body) error {
	if err := b.Activate(); err != nil {
		s.dynamicCount.Add(-1)
		return err
	}
	s.created.Add(1)
	s.alive.Add(1)

	s.dynamic.Store(b.id, b)
	s.upsertCommitted(b)

	if !s.cfg.ManualStepping {
		s.wg.Add(1)
		go b.run(s.ctx, s.cfg.TickInterval, &s.wg)
	}

	s.log.Debug().Str("id", b.id).Str("kind", b.kind.String()).Msg("Body added")
	return nil
}

func (s *Simulation) addInert(kind Kind, assetID string, size, posX, posY, angle, maxLife float64) (string, error) {
	if s.RunState() == RunStopped {
		return "", ErrStopped
	}
	b := newBody(s, kind, assetID, physics.NewStaticState(size, posX, posY, angle, s.now()), maxLife)
	if err := b.Activate(); err != nil {
		return "", err
	}
	s.created.Add(1)
	s.alive.Add(1)

	s.statics.Store(b.id, b)
	s.rebuildStaticView()
	return b.id, nil
}

// rebuildStaticView publishes a fresh copy of the static registry.
func (s *Simulation) rebuildStaticView() {
	s.staticMu.Lock()
	defer s.staticMu.Unlock()

	view := make([]*Body, 0, len(*s.staticView.Load())+1)
	s.statics.Range(func(_, v any) bool {
		b := v.(*Body)
		if b.State() != StateDead {
			view = append(view, b)
		}
		return true
	})
	s.staticView.Store(&view)
}

func (s *Simulation) dynamicBody(id string) (*Body, bool) {
	v, ok := s.dynamic.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Body), true
}

func (s *Simulation) player(id string) (*Body, bool) {
	v, ok := s.players.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Body), true
}

// Body returns a registered body of any kind.
func (s *Simulation) Body(id string) (*Body, bool) {
	if b, ok := s.dynamicBody(id); ok {
		return b, true
	}
	if v, ok := s.statics.Load(id); ok {
		return v.(*Body), true
	}
	return nil, false
}

// upsertCommitted registers the committed bounding box of b in the grid.
// It must run on the goroutine that owns b's scratch buffer.
func (s *Simulation) upsertCommitted(b *Body) {
	minX, maxX, minY, maxY := b.engine.Current().Bounds()
	if err := s.grid.Upsert(b.id, minX, maxX, minY, maxY, b.cellScratch); err != nil {
		s.log.Error().Err(err).Str("id", b.id).Msg("Grid upsert failed")
	}
	if b.State() == StateDead {
		s.grid.Remove(b.id)
	}
}

// kill moves b to DEAD and removes it from the grid and registries.
// Killing a dead body is a no-op.
func (s *Simulation) kill(b *Body) {
	if BodyState(b.state.Swap(int32(StateDead))) == StateDead {
		return
	}

	s.grid.Remove(b.id)
	if b.kind.Moving() {
		s.dynamic.Delete(b.id)
		s.dynamicCount.Add(-1)
	} else {
		s.statics.Delete(b.id)
		s.rebuildStaticView()
	}
	if b.kind == KindPlayer {
		s.players.Delete(b.id)
	}

	s.alive.Add(-1)
	s.dead.Add(1)
	s.log.Debug().Str("id", b.id).Str("kind", b.kind.String()).Msg("Body died")
}

// Kill removes any registered body. Unknown ids are ignored.
func (s *Simulation) Kill(id string) {
	if b, ok := s.Body(id); ok {
		s.kill(b)
	}
}

// sweepExpired removes statics and decorators whose lifetime elapsed.
// Moving bodies handle their own lifetime through the life-over event.
func (s *Simulation) sweepExpired() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !s.Running() {
				continue
			}
			now := s.now()
			for _, b := range *s.staticView.Load() {
				if b.LifeOver(now) {
					s.kill(b)
				}
			}
		}
	}
}

// notify queues a spawn notice for asynchronous delivery.
func (s *Simulation) notify(n SpawnNotice) {
	if s.notifier == nil {
		return
	}
	if !s.notices.TryPush(n) {
		s.droppedNotices.Add(1)
	}
}

// dispatchNotices drains the notice ring into the notifier.
func (s *Simulation) dispatchNotices() {
	defer s.wg.Done()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	buf := make([]SpawnNotice, 64)
	flush := func() {
		for {
			n := s.notices.DrainTo(buf)
			for _, notice := range buf[:n] {
				s.notifier.NotifySpawn(notice)
			}
			if n < len(buf) {
				return
			}
		}
	}

	for {
		select {
		case <-s.ctx.Done():
			if s.notifier != nil {
				flush()
			}
			return
		case <-ticker.C:
			if s.notifier != nil {
				flush()
			}
		}
	}
}

func (s *Simulation) observeTick(kind Kind, d time.Duration) {
	for _, o := range s.observers {
		o.ObserveTick(kind, d)
	}
}

func (s *Simulation) observeEvents(events []Event) {
	for _, o := range s.observers {
		o.ObserveEvents(events)
	}
}

func (s *Simulation) observeActions(actions []Action) {
	for _, o := range s.observers {
		o.ObserveActions(actions)
	}
}
