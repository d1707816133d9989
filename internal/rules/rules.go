// Package rules is the default game policy: it turns detected arena events
// into actions. The arena core never imports it.
package rules

import (
	"fmt"
	"strings"

	"space-arena/internal/arena"

	"github.com/rs/zerolog"
)

// BoundaryMode selects what happens when a body leaves the world.
type BoundaryMode string

const (
	BoundaryDie     BoundaryMode = "die"
	BoundaryRebound BoundaryMode = "rebound"
)

// ParseBoundaryMode validates a boundary mode name.
func ParseBoundaryMode(s string) (BoundaryMode, error) {
	switch m := BoundaryMode(strings.ToLower(strings.TrimSpace(s))); m {
	case BoundaryDie, BoundaryRebound:
		return m, nil
	case "":
		return BoundaryDie, nil
	}
	return "", fmt.Errorf("rules: unknown boundary mode %q", s)
}

// Config holds rule tuning.
type Config struct {
	Boundary  BoundaryMode
	KillScore int // awarded to a shooter whose projectile destroys a body
}

// DefaultConfig returns the stock rules.
func DefaultConfig() Config {
	return Config{
		Boundary:  BoundaryDie,
		KillScore: 10,
	}
}

// ScoreKeeper is the slice of the simulation the rules need to keep player
// scores.
type ScoreKeeper interface {
	UpdatePlayerGameplay(playerID string, fn func(g *arena.Gameplay)) bool
}

// Rules implements arena.Policy.
type Rules struct {
	cfg    Config
	scores ScoreKeeper
	log    zerolog.Logger
}

// New builds the default policy. scores may be nil.
func New(cfg Config, scores ScoreKeeper, log zerolog.Logger) (*Rules, error) {
	mode, err := ParseBoundaryMode(string(cfg.Boundary))
	if err != nil {
		return nil, err
	}
	cfg.Boundary = mode

	return &Rules{
		cfg:    cfg,
		scores: scores,
		log:    log.With().Str("component", "rules").Logger(),
	}, nil
}

// DecideActions implements arena.Policy.
func (r *Rules) DecideActions(events []arena.Event) []arena.Action {
	actions := make([]arena.Action, 0, len(events)*2)
	for _, e := range events {
		actions = r.apply(e, actions)
	}
	return actions
}

func (r *Rules) apply(e arena.Event, actions []arena.Action) []arena.Action {
	switch e.Type {
	case arena.EventReachedEastLimit, arena.EventReachedWestLimit,
		arena.EventReachedNorthLimit, arena.EventReachedSouthLimit:
		return append(actions, r.boundary(e))

	case arena.EventMustFire:
		return append(actions, arena.Action{
			TargetID: e.PrimaryID,
			Type:     arena.ActionFire,
			Executor: arena.ExecutorSimulation,
			Priority: arena.PriorityLow,
		})

	case arena.EventLifeOver:
		return append(actions, arena.Action{
			TargetID: e.PrimaryID,
			Type:     arena.ActionDie,
			Executor: arena.ExecutorSimulation,
			Priority: arena.PriorityHigh,
		})

	case arena.EventThrustOn:
		return append(actions, arena.Action{
			TargetID: e.PrimaryID,
			Type:     arena.ActionSpawn,
			Executor: arena.ExecutorSimulation,
			Priority: arena.PriorityNormal,
		})

	case arena.EventCollision:
		return r.collision(e, actions)
	}
	return actions
}

var reboundFor = map[arena.EventType]arena.ActionType{
	arena.EventReachedEastLimit:  arena.ActionReboundEast,
	arena.EventReachedWestLimit:  arena.ActionReboundWest,
	arena.EventReachedNorthLimit: arena.ActionReboundNorth,
	arena.EventReachedSouthLimit: arena.ActionReboundSouth,
}

func (r *Rules) boundary(e arena.Event) arena.Action {
	// Projectiles always die at the edge.
	if r.cfg.Boundary == BoundaryRebound && e.PrimaryKind != arena.KindProjectile {
		return arena.Action{
			TargetID: e.PrimaryID,
			Type:     reboundFor[e.Type],
			Executor: arena.ExecutorPhysics,
			Priority: arena.PriorityNormal,
		}
	}
	return arena.Action{
		TargetID: e.PrimaryID,
		Type:     arena.ActionDie,
		Executor: arena.ExecutorPhysics,
		Priority: arena.PriorityHigh,
	}
}

func inert(k arena.Kind) bool {
	return k == arena.KindStatic || k == arena.KindDecorator
}

func (r *Rules) collision(e arena.Event, actions []arena.Action) []arena.Action {
	if inert(e.PrimaryKind) || inert(e.SecondaryKind) {
		return actions
	}

	if e.ShooterID != "" && r.scores != nil && e.PrimaryID != e.ShooterID && e.SecondaryID != e.ShooterID {
		r.scores.UpdatePlayerGameplay(e.ShooterID, func(g *arena.Gameplay) {
			g.Score += r.cfg.KillScore
		})
	}

	r.log.Trace().
		Str("primary", e.PrimaryID).
		Str("secondary", e.SecondaryID).
		Msg("Collision resolved")

	return append(actions,
		arena.Action{TargetID: e.PrimaryID, Type: arena.ActionDie, Executor: arena.ExecutorSimulation, Priority: arena.PriorityHigh},
		arena.Action{TargetID: e.SecondaryID, Type: arena.ActionDie, Executor: arena.ExecutorSimulation, Priority: arena.PriorityHigh},
	)
}
