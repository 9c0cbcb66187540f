// Package spatial provides the position type and the distance and region
// helpers used by broadcast-by-range message filtering and the scenario
// engine's Proximity/Area triggers, plus a chunked spatial index (Index).
// Neither the broker nor the scenario engine uses Index; both check
// positions one by one with Within, Distance and Contains.
//
// Grounded on the teacher's internal/networking/chunks.go (ArcChunkIndex),
// which buckets entities by polar angle around an origin for efficient
// "entities near" queries; this package generalizes that bucketing idea
// to a plain Cartesian grid since the simulator has no notion of a
// privileged observer origin the way the teacher's arc index does.
package spatial

import (
	"math"
	"sync"
)

// Position is a point in the simulation's 3D world frame.
type Position struct {
	X, Y, Z float64
}

// Unlimited marks a broadcast range with no distance cutoff.
const Unlimited = math.MaxFloat64

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Position) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Within reports whether b lies within r of a. A non-positive or
// Unlimited r always reports true.
func Within(a, b Position, r float64) bool {
	if r <= 0 || r >= Unlimited {
		return true
	}
	return Distance(a, b) <= r
}

// Rect is an axis-aligned rectangle in the XY plane, used by Area
// triggers. Z is ignored, matching the teacher's 2D tiering logic in
// internal/networking/tiers.go.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Contains reports whether p falls inside the rectangle, inclusive of
// its boundary.
func (r Rect) Contains(p Position) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

// Circle is a 2D circular region, used by Area triggers.
type Circle struct {
	Center Position
	Radius float64
}

// Contains reports whether p falls within the circle, inclusive of its
// boundary.
func (c Circle) Contains(p Position) bool {
	return Distance(c.Center, p) <= c.Radius
}

// chunkSize controls the grid cell edge length used by Index. Chosen to
// keep typical query neighborhoods to a handful of cells for simulations
// spanning a few hundred meters per axis.
const chunkSize = 25.0

type chunkKey struct{ x, y int }

func keyFor(p Position) chunkKey {
	return chunkKey{x: int(math.Floor(p.X / chunkSize)), y: int(math.Floor(p.Y / chunkSize))}
}

// Index buckets named entities by grid cell so that EntitiesNear can
// avoid scanning every tracked entity, mirroring the
// Update/Remove/EntitiesNear shape of the teacher's ArcChunkIndex.
type Index struct {
	mu        sync.RWMutex
	positions map[string]Position
	cells     map[chunkKey]map[string]struct{}
}

// NewIndex constructs an empty spatial index.
func NewIndex() *Index {
	return &Index{
		positions: make(map[string]Position),
		cells:     make(map[chunkKey]map[string]struct{}),
	}
}

// Update records or moves id to position p.
func (idx *Index) Update(id string, p Position) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if old, ok := idx.positions[id]; ok {
		idx.removeFromCellLocked(keyFor(old), id)
	}
	idx.positions[id] = p
	k := keyFor(p)
	bucket, ok := idx.cells[k]
	if !ok {
		bucket = make(map[string]struct{})
		idx.cells[k] = bucket
	}
	bucket[id] = struct{}{}
}

// Remove drops id from the index entirely.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	old, ok := idx.positions[id]
	if !ok {
		return
	}
	idx.removeFromCellLocked(keyFor(old), id)
	delete(idx.positions, id)
}

func (idx *Index) removeFromCellLocked(k chunkKey, id string) {
	bucket, ok := idx.cells[k]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(idx.cells, k)
	}
}

// Position returns the last recorded position for id.
func (idx *Index) Position(id string) (Position, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	p, ok := idx.positions[id]
	return p, ok
}

// EntitiesNear returns every tracked id within radius of p, scanning only
// the grid cells that could contain a match.
func (idx *Index) EntitiesNear(p Position, radius float64) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	span := int(math.Ceil(radius/chunkSize)) + 1
	center := keyFor(p)
	var out []string
	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			bucket, ok := idx.cells[chunkKey{x: center.x + dx, y: center.y + dy}]
			if !ok {
				continue
			}
			for id := range bucket {
				if Distance(idx.positions[id], p) <= radius {
					out = append(out, id)
				}
			}
		}
	}
	return out
}
