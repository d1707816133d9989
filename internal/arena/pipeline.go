package arena

import (
	"fmt"
	"math"
	"sort"
	"time"

	"space-arena/internal/arena/physics"
)

// StepBody runs one tick for a moving body on the caller's goroutine. It is
// meant for ManualStepping mode; calling it while the body's own loop runs
// races with that loop.
func (s *Simulation) StepBody(id string) error {
	b, ok := s.dynamicBody(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBody, id)
	}
	if b.State() != StateAlive {
		return nil
	}
	return s.tick(b)
}

// tick computes the next state of b, refreshes its grid footprint and runs
// the event-action pipeline.
func (s *Simulation) tick(b *Body) error {
	if !s.Running() {
		return nil
	}
	start := time.Now()

	b.burnOut()
	prev := b.engine.Current()
	next := b.engine.ComputeNext(s.now())

	minX, maxX, minY, maxY := next.Bounds()
	if err := s.grid.Upsert(b.id, minX, maxX, minY, maxY, b.cellScratch); err != nil {
		s.log.Error().Err(err).Str("id", b.id).Msg("Grid upsert failed")
		return err
	}
	// A concurrent kill may have removed b just before the upsert above.
	if b.State() == StateDead {
		s.grid.Remove(b.id)
		return nil
	}

	err := s.processBodyEvents(b, next, prev)
	if err != nil {
		s.log.Warn().Err(err).Str("id", b.id).Str("kind", b.kind.String()).Msg("Body tick rolled back")
	}
	s.observeTick(b.kind, time.Since(start))
	return err
}

// processBodyEvents is the HANDS_OFF window of one tick. Admission is a
// CAS from ALIVE; a failed admission means another goroutine owns the body
// or it is dead. Any error or panic restores the pre-processing state
// unless the body died meanwhile.
func (s *Simulation) processBodyEvents(b *Body, next, prev physics.State) (err error) {
	if !s.Running() {
		return nil
	}
	if !b.state.CompareAndSwap(int32(StateAlive), int32(StateHandsOff)) {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrProcessingFault, r)
		}
		// no-op when b reached DEAD during the window
		b.state.CompareAndSwap(int32(StateHandsOff), int32(StateAlive))
	}()

	events := s.detectEvents(b, next, prev)

	var actions []Action
	if len(events) > 0 {
		s.observeEvents(events)
		actions = s.policy.DecideActions(events)
	}
	if !hasPhysicsAction(actions, b.id) {
		actions = append(actions, Action{
			TargetID: b.id,
			Type:     ActionMove,
			Executor: ExecutorPhysics,
			Priority: PriorityNormal,
		})
	}
	s.observeActions(actions)

	return s.executeActions(b, actions, next, prev)
}

func hasPhysicsAction(actions []Action, id string) bool {
	for _, a := range actions {
		if a.Executor == ExecutorPhysics && a.TargetID == id {
			return true
		}
	}
	return false
}

// detectEvents collects the events of b at next. prev is the committed state
// the step started from.
func (s *Simulation) detectEvents(b *Body, next, prev physics.State) []Event {
	var events []Event

	events = s.detectLimits(b, next, events)
	events = s.detectCollisions(b, next, events)

	if b.rig != nil {
		dt := physics.Elapsed(prev, next)
		if w := b.rig.active(); w != nil && w.MustFireNow(dt) {
			events = append(events, Event{
				Type:        EventMustFire,
				PrimaryID:   b.id,
				PrimaryKind: b.kind,
			})
		}
		if t := b.rig.trail; t != nil {
			if next.Thrust != 0 {
				t.RegisterRequest()
			}
			if t.MustEmitNow(dt) {
				events = append(events, Event{
					Type:        EventThrustOn,
					PrimaryID:   b.id,
					PrimaryKind: b.kind,
				})
			}
		}
	}

	if b.LifeOver(next.Timestamp) {
		events = append(events, Event{
			Type:        EventLifeOver,
			PrimaryID:   b.id,
			PrimaryKind: b.kind,
		})
	}
	return events
}

func (s *Simulation) detectLimits(b *Body, next physics.State, events []Event) []Event {
	limit := func(t EventType) {
		events = append(events, Event{Type: t, PrimaryID: b.id, PrimaryKind: b.kind})
	}
	if next.PosX < 0 {
		limit(EventReachedEastLimit)
	} else if next.PosX >= s.cfg.WorldWidth {
		limit(EventReachedWestLimit)
	}
	if next.PosY < 0 {
		limit(EventReachedNorthLimit)
	} else if next.PosY >= s.cfg.WorldHeight {
		limit(EventReachedSouthLimit)
	}
	return events
}

// detectCollisions tests b against its grid neighbours. Each unordered pair
// is reported by the body with the smaller id only.
func (s *Simulation) detectCollisions(b *Body, next physics.State, events []Event) []Event {
	if !b.kind.caps().collidable {
		return events
	}

	b.candidates = s.grid.QueryCollisionCandidates(b.id, b.candidates[:0])
	clear(b.seen)

	for _, otherID := range b.candidates {
		if otherID <= b.id {
			continue
		}
		if _, dup := b.seen[otherID]; dup {
			continue
		}
		b.seen[otherID] = struct{}{}

		other, ok := s.dynamicBody(otherID)
		if !ok || !other.kind.caps().collidable || other.State() == StateDead {
			continue
		}
		if !physics.Intersects(next, other.Physics()) {
			continue
		}

		ev := Event{
			Type:          EventCollision,
			PrimaryID:     b.id,
			PrimaryKind:   b.kind,
			SecondaryID:   other.id,
			SecondaryKind: other.kind,
		}
		if p, peer := projectilePair(b, other); p != nil {
			within := p.withinImmunity(next.Timestamp)
			if within && p.shooterID == peer.id {
				continue
			}
			ev.ShooterID = p.shooterID
			ev.ShooterImmunity = within
		}
		events = append(events, ev)
	}
	return events
}

// projectilePair returns the projectile of the pair and its peer, or nil
// when neither body is a projectile.
func projectilePair(a, b *Body) (projectile, peer *Body) {
	switch {
	case a.kind.caps().immunity:
		return a, b
	case b.kind.caps().immunity:
		return b, a
	}
	return nil, nil
}

// executeActions applies actions in priority order. Actions whose target is
// gone are skipped. MOVE and rebounds are only honoured for b itself.
func (s *Simulation) executeActions(b *Body, actions []Action, next, prev physics.State) error {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Priority < actions[j].Priority
	})

	for _, a := range actions {
		target, ok := s.dynamicBody(a.TargetID)
		if !ok || target.State() == StateDead {
			continue
		}

		var err error
		switch a.Executor {
		case ExecutorBody:
			err = s.executeBody(a, target)
		case ExecutorPhysics:
			next, err = s.executePhysics(a, b, target, next, prev)
		case ExecutorSimulation:
			st := target.Physics()
			if target == b {
				st = next
			}
			err = s.executeSimulation(a, target, st)
		default:
			err = fmt.Errorf("%w: executor %d", ErrUnsupportedAction, a.Executor)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) executeBody(a Action, target *Body) error {
	switch a.Type {
	case ActionNone:
	case ActionDie:
		s.kill(target)
	default:
		return fmt.Errorf("%w: %s by %s", ErrUnsupportedAction, a.Type, a.Executor)
	}
	return nil
}

// executePhysics returns the state later actions should see for b.
func (s *Simulation) executePhysics(a Action, b, target *Body, next, prev physics.State) (physics.State, error) {
	if a.Type == ActionDie {
		s.kill(target)
		return next, nil
	}
	if a.Type == ActionNone {
		return next, nil
	}
	if target != b {
		s.log.Debug().
			Str("action", a.Type.String()).
			Str("target", target.id).
			Str("processing", b.id).
			Msg("Physics action for a foreign body ignored")
		return next, nil
	}

	w, h := s.cfg.WorldWidth, s.cfg.WorldHeight
	switch a.Type {
	case ActionMove:
		b.engine.Commit(next)
	case ActionReboundEast:
		b.engine.ReboundEast(next, prev, w, h)
	case ActionReboundWest:
		b.engine.ReboundWest(next, prev, w, h)
	case ActionReboundNorth:
		b.engine.ReboundNorth(next, prev, w, h)
	case ActionReboundSouth:
		b.engine.ReboundSouth(next, prev, w, h)
	default:
		return next, fmt.Errorf("%w: %s by %s", ErrUnsupportedAction, a.Type, a.Executor)
	}

	s.upsertCommitted(b)
	return b.engine.Current(), nil
}

func (s *Simulation) executeSimulation(a Action, target *Body, st physics.State) error {
	switch a.Type {
	case ActionNone, ActionExplode:
	case ActionDie:
		s.kill(target)
	case ActionFire:
		s.spawnProjectileFrom(target, st)
	case ActionSpawn:
		s.spawnTrail(st)
	default:
		return fmt.Errorf("%w: %s by %s", ErrUnsupportedAction, a.Type, a.Executor)
	}
	return nil
}

// spawnProjectileFrom fires the shooter's active weapon from state st.
// Hitting the body cap drops the shot.
func (s *Simulation) spawnProjectileFrom(shooter *Body, st physics.State) {
	if shooter.rig == nil {
		return
	}
	w := shooter.rig.active()
	if w == nil {
		return
	}
	cfg := w.Config()

	dirX, dirY := st.Heading()
	offRad := (st.Angle - 90) * math.Pi / 180

	spec := DynamicSpec{
		AssetID: cfg.ProjectileAssetID,
		Size:    cfg.ProjectileSize,
		PosX:    st.PosX + math.Cos(offRad)*cfg.ShootingOffset,
		PosY:    st.PosY + math.Sin(offRad)*cfg.ShootingOffset,
		SpeedX:  st.SpeedX + cfg.FiringSpeed*dirX,
		SpeedY:  st.SpeedY + cfg.FiringSpeed*dirY,
		AccX:    cfg.Acceleration * dirX,
		AccY:    cfg.Acceleration * dirY,
		Angle:   st.Angle,
		MaxLife: cfg.ProjectileMaxLife,

		AccelerationTime: cfg.AccelerationTime,
	}

	id, err := s.AddProjectile(spec, shooter.id)
	if err != nil {
		s.log.Debug().Err(err).Str("shooter", shooter.id).Msg("Projectile dropped")
		return
	}
	s.notify(SpawnNotice{EntityID: id, AssetID: cfg.ProjectileAssetID, Kind: KindProjectile})
}

// spawnTrail drops a temporary decorator at st.
func (s *Simulation) spawnTrail(st physics.State) {
	t := s.cfg.Trail
	id, err := s.AddDecorator(t.AssetID, t.Size, st.PosX, st.PosY, st.Angle, t.MaxLife)
	if err != nil {
		s.log.Debug().Err(err).Msg("Trail dropped")
		return
	}
	s.notify(SpawnNotice{EntityID: id, AssetID: t.AssetID, Kind: KindDecorator})
}
