package rules

import (
	"testing"

	"space-arena/internal/arena"

	"github.com/rs/zerolog"
)

type fakeScores struct {
	scores map[string]int
}

func (f *fakeScores) UpdatePlayerGameplay(id string, fn func(g *arena.Gameplay)) bool {
	g := arena.Gameplay{Score: f.scores[id]}
	fn(&g)
	f.scores[id] = g.Score
	return true
}

func mustRules(t *testing.T, cfg Config, scores ScoreKeeper) *Rules {
	t.Helper()
	r, err := New(cfg, scores, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

// TestEventMapping tests the single-event rules
func TestEventMapping(t *testing.T) {
	r := mustRules(t, DefaultConfig(), nil)

	tests := []struct {
		name     string
		event    arena.Event
		wantType arena.ActionType
		wantExec arena.Executor
		wantPrio arena.Priority
	}{
		{"east limit", arena.Event{Type: arena.EventReachedEastLimit, PrimaryID: "a"}, arena.ActionDie, arena.ExecutorPhysics, arena.PriorityHigh},
		{"south limit", arena.Event{Type: arena.EventReachedSouthLimit, PrimaryID: "a"}, arena.ActionDie, arena.ExecutorPhysics, arena.PriorityHigh},
		{"must fire", arena.Event{Type: arena.EventMustFire, PrimaryID: "a"}, arena.ActionFire, arena.ExecutorSimulation, arena.PriorityLow},
		{"life over", arena.Event{Type: arena.EventLifeOver, PrimaryID: "a"}, arena.ActionDie, arena.ExecutorSimulation, arena.PriorityHigh},
		{"thrust on", arena.Event{Type: arena.EventThrustOn, PrimaryID: "a", PrimaryKind: arena.KindPlayer}, arena.ActionSpawn, arena.ExecutorSimulation, arena.PriorityNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.DecideActions([]arena.Event{tt.event})
			if len(got) != 1 {
				t.Fatalf("Expected 1 action, got %d", len(got))
			}
			a := got[0]
			if a.TargetID != "a" || a.Type != tt.wantType || a.Executor != tt.wantExec || a.Priority != tt.wantPrio {
				t.Errorf("Unexpected action %+v", a)
			}
		})
	}

	if got := r.DecideActions([]arena.Event{{Type: arena.EventNone}}); len(got) != 0 {
		t.Errorf("EventNone should produce nothing, got %+v", got)
	}
}

// TestReboundMode tests the rebound boundary switch
func TestReboundMode(t *testing.T) {
	r := mustRules(t, Config{Boundary: BoundaryRebound}, nil)

	got := r.DecideActions([]arena.Event{
		{Type: arena.EventReachedWestLimit, PrimaryID: "rock", PrimaryKind: arena.KindDynamic},
		{Type: arena.EventReachedNorthLimit, PrimaryID: "rock", PrimaryKind: arena.KindDynamic},
		{Type: arena.EventReachedNorthLimit, PrimaryID: "shot", PrimaryKind: arena.KindProjectile},
	})
	if len(got) != 3 {
		t.Fatalf("Expected 3 actions, got %d", len(got))
	}
	if got[0].Type != arena.ActionReboundWest || got[1].Type != arena.ActionReboundNorth {
		t.Errorf("Expected west and north rebounds, got %v and %v", got[0].Type, got[1].Type)
	}
	if got[2].Type != arena.ActionDie {
		t.Errorf("Projectiles should die at the edge, got %v", got[2].Type)
	}

	if _, err := New(Config{Boundary: "wrap"}, nil, zerolog.Nop()); err == nil {
		t.Error("Expected an error for an unknown boundary mode")
	}
}

// TestCollisionRules tests inert bodies and scoring
func TestCollisionRules(t *testing.T) {
	scores := &fakeScores{scores: map[string]int{}}
	r := mustRules(t, DefaultConfig(), scores)

	got := r.DecideActions([]arena.Event{{
		Type: arena.EventCollision, PrimaryID: "a", PrimaryKind: arena.KindDynamic,
		SecondaryID: "b", SecondaryKind: arena.KindStatic,
	}})
	if len(got) != 0 {
		t.Errorf("Collisions with statics must be ignored, got %+v", got)
	}

	got = r.DecideActions([]arena.Event{{
		Type: arena.EventCollision, PrimaryID: "rock", PrimaryKind: arena.KindDynamic,
		SecondaryID: "shot", SecondaryKind: arena.KindProjectile, ShooterID: "p1",
	}})
	if len(got) != 2 || got[0].TargetID != "rock" || got[1].TargetID != "shot" {
		t.Fatalf("Expected both bodies to die, got %+v", got)
	}
	if scores.scores["p1"] != 10 {
		t.Errorf("Expected shooter score 10, got %d", scores.scores["p1"])
	}

	// shooter hit by its own shot scores nothing
	r.DecideActions([]arena.Event{{
		Type: arena.EventCollision, PrimaryID: "p1", PrimaryKind: arena.KindPlayer,
		SecondaryID: "shot2", SecondaryKind: arena.KindProjectile, ShooterID: "p1",
	}})
	if scores.scores["p1"] != 10 {
		t.Errorf("Self hit changed the score to %d", scores.scores["p1"])
	}
}
