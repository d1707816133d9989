// Package spatial provides concurrent spatial data structures for
// broad-phase collision detection.
//
// The grid topology is fixed at construction; the bucket array is never
// reallocated, which keeps Upsert allocation-free on the hot path once an
// entity has been seen.
package spatial

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidWorld is returned for a non-positive world size.
	ErrInvalidWorld = errors.New("spatial: world width and height must be positive")
	// ErrInvalidCellSize is returned for a non-positive cell size.
	ErrInvalidCellSize = errors.New("spatial: cell size must be positive")
	// ErrInvalidMaxCells is returned for a non-positive max-cells-per-body.
	ErrInvalidMaxCells = errors.New("spatial: max cells per body must be positive")
	// ErrScratchTooSmall is returned when the caller scratch cannot hold
	// MaxCellsPerBody indices.
	ErrScratchTooSmall = errors.New("spatial: scratch buffer shorter than max cells per body")
)

// bucket is the set of entity ids registered in one cell.
type bucket struct {
	ids   sync.Map // map[string]struct{}
	count atomic.Int32
}

func (b *bucket) add(id string) {
	if _, loaded := b.ids.LoadOrStore(id, struct{}{}); !loaded {
		b.count.Add(1)
	}
}

func (b *bucket) remove(id string) {
	if _, loaded := b.ids.LoadAndDelete(id); loaded {
		b.count.Add(-1)
	}
}

// membership is the set of cells an entity currently covers.
// It is normally written by the entity's own loop; mu covers the case where
// another goroutine removes the entity concurrently.
type membership struct {
	mu      sync.Mutex
	cells   []int
	removed bool
}

// SpatialGrid is a uniform grid over the world. Cells are stored in
// row-major order (cells[cy*cellsX+cx]).
//
// Cell size and MaxCellsPerBody trade collision-candidate fan-out against
// per-entity update cost. An entity whose box covers more cells than the
// cap is truncated and a warning is logged.
type SpatialGrid struct {
	cellSize        float64
	invCellSize     float64 // 1/cellSize for faster division
	cellsX, cellsY  int
	maxCellsPerBody int

	cells   []bucket
	members sync.Map // map[string]*membership

	log zerolog.Logger
}

// NewSpatialGrid creates a grid covering worldWidth x worldHeight.
func NewSpatialGrid(worldWidth, worldHeight, cellSize float64, maxCellsPerBody int, log zerolog.Logger) (*SpatialGrid, error) {
	if worldWidth <= 0 || worldHeight <= 0 {
		return nil, ErrInvalidWorld
	}
	if cellSize <= 0 {
		return nil, ErrInvalidCellSize
	}
	if maxCellsPerBody <= 0 {
		return nil, ErrInvalidMaxCells
	}

	cellsX := int(math.Ceil(worldWidth / cellSize))
	cellsY := int(math.Ceil(worldHeight / cellSize))

	return &SpatialGrid{
		cellSize:        cellSize,
		invCellSize:     1.0 / cellSize,
		cellsX:          cellsX,
		cellsY:          cellsY,
		maxCellsPerBody: maxCellsPerBody,
		cells:           make([]bucket, cellsX*cellsY),
		log: log.With().Str("component", "spatial_grid").Logger().
			Sample(&zerolog.BurstSampler{Burst: 1, Period: time.Second}),
	}, nil
}

// MaxCellsPerBody returns the configured per-entity cell cap. Scratch
// buffers passed to Upsert must be at least this long.
func (g *SpatialGrid) MaxCellsPerBody() int {
	return g.maxCellsPerBody
}

// NewScratch allocates a scratch buffer suitable for Upsert.
func (g *SpatialGrid) NewScratch() []int {
	return make([]int, g.maxCellsPerBody)
}

// Dimensions returns the grid dimensions.
func (g *SpatialGrid) Dimensions() (cellsX, cellsY int, cellSize float64) {
	return g.cellsX, g.cellsY, g.cellSize
}

func (g *SpatialGrid) clampX(v float64) int {
	c := int(math.Floor(v * g.invCellSize))
	if c < 0 {
		return 0
	}
	if c >= g.cellsX {
		return g.cellsX - 1
	}
	return c
}

func (g *SpatialGrid) clampY(v float64) int {
	c := int(math.Floor(v * g.invCellSize))
	if c < 0 {
		return 0
	}
	if c >= g.cellsY {
		return g.cellsY - 1
	}
	return c
}

// coveredCells writes the clamped cell indices overlapped by the box into
// scratch and returns how many were written.
func (g *SpatialGrid) coveredCells(id string, minX, maxX, minY, maxY float64, scratch []int) int {
	x0, x1 := g.clampX(minX), g.clampX(maxX)
	y0, y1 := g.clampY(minY), g.clampY(maxY)

	total := (x1 - x0 + 1) * (y1 - y0 + 1)
	if total > g.maxCellsPerBody {
		g.log.Warn().
			Str("entity", id).
			Int("cells", total).
			Int("max", g.maxCellsPerBody).
			Msg("Entity covers more cells than allowed, truncating")
	}

	n := 0
	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			if n == g.maxCellsPerBody {
				return n
			}
			scratch[n] = cy*g.cellsX + cx
			n++
		}
	}
	return n
}

// Upsert registers the entity's bounding box, moving it between cells as
// needed. scratch must be at least MaxCellsPerBody long and is overwritten.
func (g *SpatialGrid) Upsert(id string, minX, maxX, minY, maxY float64, scratch []int) error {
	if len(scratch) < g.maxCellsPerBody {
		return ErrScratchTooSmall
	}

	n := g.coveredCells(id, minX, maxX, minY, maxY, scratch)
	next := scratch[:n]

	m := g.membershipFor(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return nil
	}

	for _, old := range m.cells {
		if !containsInt(next, old) {
			g.cells[old].remove(id)
		}
	}
	for _, idx := range next {
		if !containsInt(m.cells, idx) {
			g.cells[idx].add(id)
		}
	}
	m.cells = append(m.cells[:0], next...)
	return nil
}

func (g *SpatialGrid) membershipFor(id string) *membership {
	if v, ok := g.members.Load(id); ok {
		return v.(*membership)
	}
	m := &membership{cells: make([]int, 0, g.maxCellsPerBody)}
	actual, _ := g.members.LoadOrStore(id, m)
	return actual.(*membership)
}

// Remove drops the entity from every cell. Removing an unknown id is a
// no-op.
func (g *SpatialGrid) Remove(id string) {
	v, ok := g.members.LoadAndDelete(id)
	if !ok {
		return
	}
	m := v.(*membership)
	m.mu.Lock()
	for _, idx := range m.cells {
		g.cells[idx].remove(id)
	}
	m.cells = m.cells[:0]
	m.removed = true
	m.mu.Unlock()
}

// QueryCollisionCandidates appends to out every other entity sharing at
// least one cell with id and returns the extended slice. Duplicates are
// possible when entities share several cells. Results are weakly
// consistent with concurrent Upsert/Remove calls from other entities.
func (g *SpatialGrid) QueryCollisionCandidates(id string, out []string) []string {
	v, ok := g.members.Load(id)
	if !ok {
		return out
	}
	m := v.(*membership)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, idx := range m.cells {
		g.cells[idx].ids.Range(func(key, _ any) bool {
			if other := key.(string); other != id {
				out = append(out, other)
			}
			return true
		})
	}
	return out
}

// Cells returns a copy of the entity's current cell indices.
func (g *SpatialGrid) Cells(id string) []int {
	v, ok := g.members.Load(id)
	if !ok {
		return nil
	}
	m := v.(*membership)
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.cells...)
}

// CellMembers returns the ids registered in cell idx.
func (g *SpatialGrid) CellMembers(idx int) []string {
	if idx < 0 || idx >= len(g.cells) {
		return nil
	}
	var ids []string
	g.cells[idx].ids.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	return ids
}

// Occupancy returns the member count of every cell in row-major order.
func (g *SpatialGrid) Occupancy() []int {
	out := make([]int, len(g.cells))
	for i := range g.cells {
		out[i] = int(g.cells[i].count.Load())
	}
	return out
}

// Stats scans every cell. It is O(cellsX*cellsY) and meant for
// low-frequency diagnostics, never the per-tick path.
func (g *SpatialGrid) Stats() Stats {
	s := Stats{
		CellSize:        g.cellSize,
		CellsX:          g.cellsX,
		CellsY:          g.cellsY,
		MaxCellsPerBody: g.maxCellsPerBody,
	}

	var occupied int64
	for i := range g.cells {
		n := int(g.cells[i].count.Load())
		if n <= 0 {
			s.EmptyCells++
			continue
		}
		s.NonEmptyCells++
		occupied += int64(n)
		if n > s.MaxBucketSize {
			s.MaxBucketSize = n
		}
		s.PairChecks += int64(n) * int64(n-1) / 2
	}
	if s.NonEmptyCells > 0 {
		s.AvgBucketSize = float64(occupied) / float64(s.NonEmptyCells)
	}
	return s
}

// Stats contains grid statistics for diagnostics.
type Stats struct {
	CellSize        float64 `json:"cellSize"`
	CellsX          int     `json:"cellsX"`
	CellsY          int     `json:"cellsY"`
	MaxCellsPerBody int     `json:"maxCellsPerBody"`
	NonEmptyCells   int     `json:"nonEmptyCells"`
	EmptyCells      int     `json:"emptyCells"`
	AvgBucketSize   float64 `json:"avgBucketSize"`
	MaxBucketSize   int     `json:"maxBucketSize"`
	PairChecks      int64   `json:"pairChecks"` // sum of nC2 over buckets
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
