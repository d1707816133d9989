package arena

import (
	"sort"

	"space-arena/internal/arena/physics"
	"space-arena/internal/arena/spatial"
)

// BodySnapshot is a read-only copy of one body for rendering and APIs.
type BodySnapshot struct {
	ID      string        `json:"id" msgpack:"id"`
	Kind    Kind          `json:"kind" msgpack:"kind"`
	AssetID string        `json:"assetId" msgpack:"assetId"`
	State   physics.State `json:"state" msgpack:"state"`
}

func (b *Body) snapshot() BodySnapshot {
	return BodySnapshot{
		ID:      b.id,
		Kind:    b.kind,
		AssetID: b.assetID,
		State:   b.Physics(),
	}
}

// DynamicSnapshot returns every live moving body, ordered by id. Each body
// is internally consistent; bodies are not mutually consistent.
func (s *Simulation) DynamicSnapshot() []BodySnapshot {
	out := make([]BodySnapshot, 0, s.dynamicCount.Load())
	s.dynamic.Range(func(_, v any) bool {
		b := v.(*Body)
		if b.State() != StateDead {
			out = append(out, b.snapshot())
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StaticSnapshot returns statics and decorators from the published view.
func (s *Simulation) StaticSnapshot() []BodySnapshot {
	view := *s.staticView.Load()
	out := make([]BodySnapshot, 0, len(view))
	for _, b := range view {
		if b.State() != StateDead {
			out = append(out, b.snapshot())
		}
	}
	return out
}

// PlayerStatus is the externally visible state of a player.
type PlayerStatus struct {
	BodySnapshot
	Gameplay     Gameplay  `json:"gameplay"`
	ActiveWeapon int       `json:"activeWeapon"`
	Ammo         []float64 `json:"ammo"`
}

// PlayerSnapshot returns the status of a live player.
func (s *Simulation) PlayerSnapshot(id string) (PlayerStatus, bool) {
	p, ok := s.livePlayer(id)
	if !ok {
		return PlayerStatus{}, false
	}

	p.rig.mu.Lock()
	st := PlayerStatus{
		BodySnapshot: p.snapshot(),
		Gameplay:     p.rig.status,
		ActiveWeapon: p.rig.selected,
		Ammo:         make([]float64, len(p.rig.weapons)),
	}
	for i, w := range p.rig.weapons {
		st.Ammo[i] = w.AmmoStatus()
	}
	p.rig.mu.Unlock()
	return st, true
}

// PlayerIDs returns the ids of live players.
func (s *Simulation) PlayerIDs() []string {
	var ids []string
	s.players.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Counters are lifetime body counts.
type Counters struct {
	Created int64 `json:"created"`
	Alive   int64 `json:"alive"`
	Dead    int64 `json:"dead"`
	Dynamic int64 `json:"dynamic"`

	DroppedNotices uint64 `json:"droppedNotices"`
}

// Counters returns the current body counts.
func (s *Simulation) Counters() Counters {
	return Counters{
		Created:        s.created.Load(),
		Alive:          s.alive.Load(),
		Dead:           s.dead.Load(),
		Dynamic:        s.dynamicCount.Load(),
		DroppedNotices: s.droppedNotices.Load(),
	}
}

// GridStats returns spatial grid occupancy.
func (s *Simulation) GridStats() spatial.Stats {
	return s.grid.Stats()
}

// GridOccupancy returns the grid topology and per-cell member counts.
func (s *Simulation) GridOccupancy() (cellsX, cellsY int, cellSize float64, counts []int) {
	cellsX, cellsY, cellSize = s.grid.Dimensions()
	return cellsX, cellsY, cellSize, s.grid.Occupancy()
}
