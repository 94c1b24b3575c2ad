package sim

import (
	"errors"
	"fmt"
)

// ErrInvalidObserver is returned when visibility is queried from a dead
// unit's point of view. Dead units are never valid observers.
var ErrInvalidObserver = errors.New("dead unit cannot observe")

// VisLevel is the outcome of a visibility query.
type VisLevel uint8

const (
	VisHidden VisLevel = iota
	VisPartial
	VisVisible
)

func (v VisLevel) String() string {
	switch v {
	case VisHidden:
		return "hidden"
	case VisPartial:
		return "partially-visible"
	case VisVisible:
		return "visible"
	default:
		return "unknown"
	}
}

type visKey struct {
	observer UnitID
	target   UnitID
}

type visEntry struct {
	level VisLevel
	tick  uint64      // tick the entry was computed at; older ticks are stale
	cells []CellIndex // ray footprint, used for terrain-damage invalidation
}

// Vision computes per-observer visibility with accumulated-opacity ray
// sampling over the map, memoised per (observer, target, tick).
type Vision struct {
	m     *Map
	store *Store
	cfg   *Tunables
	cache map[visKey]visEntry
}

// NewVision creates a visibility engine over the given map and store.
func NewVision(m *Map, store *Store, cfg *Tunables) *Vision {
	return &Vision{m: m, store: store, cfg: cfg, cache: make(map[visKey]visEntry)}
}

// Query resolves how well observer sees target at the given tick.
//
// The walk accumulates each traversed cell's opacity. Cells within the
// always-visible radius of the observer are skipped entirely: near targets
// stay at least partially visible regardless of intervening light cover.
// Stance and behavior of both parties shift the effective threshold once,
// before the comparison, never per cell.
func (v *Vision) Query(observer, target UnitID, tick uint64) (VisLevel, error) {
	if observer == target {
		return VisVisible, nil
	}

	obs, err := v.store.ref(observer)
	if err != nil {
		return VisHidden, fmt.Errorf("observer: %w", err)
	}
	if !obs.Alive() {
		return VisHidden, ErrInvalidObserver
	}
	tgt, err := v.store.ref(target)
	if err != nil {
		// Fully destroyed targets are always hidden, not an error.
		return VisHidden, nil
	}

	key := visKey{observer: observer, target: target}
	if e, ok := v.cache[key]; ok && e.tick == tick {
		return e.level, nil
	}

	cells, err := v.m.LineOfCells(obs.Pos, tgt.Pos)
	if err != nil {
		return VisHidden, err
	}

	eff := v.cfg.VisionThreshold
	eff += tgt.Stance.Profile().SpotModifier
	if tgt.Behavior.Moving() {
		eff += v.cfg.MovingSpotModifier
	}
	if obs.Gesture.Kind == GestureAiming {
		eff += v.cfg.AimingSpotModifier
	}
	if eff < 0.05 {
		eff = 0.05
	}

	level := VisVisible
	acc := 0.0
	// Skip the observer's own cell plus the always-visible radius; the
	// target's cell never blocks sight of the target standing in it.
	start := 1 + v.cfg.AlwaysVisibleCells
	for i := start; i < len(cells)-1; i++ {
		cell, cerr := v.m.CellAtIndex(cells[i])
		if cerr != nil {
			return VisHidden, cerr
		}
		acc += cell.Opacity()
		if acc >= eff {
			level = VisHidden
			break
		}
	}
	if level != VisHidden && acc >= eff/2 {
		level = VisPartial
	}

	v.cache[key] = visEntry{level: level, tick: tick, cells: cells}
	return level, nil
}

// InvalidateCell drops every cached entry whose ray touched the cell.
// Called synchronously when destructible terrain changes. Over-invalidation
// is fine; a dropped entry just recomputes on the next query.
func (v *Vision) InvalidateCell(ci CellIndex) {
	for key, e := range v.cache {
		for _, c := range e.cells {
			if c == ci {
				delete(v.cache, key)
				break
			}
		}
	}
}

// InvalidateUnit drops every cached entry involving the unit. Called on
// despawn so regenerated slot indices never alias old entries.
func (v *Vision) InvalidateUnit(id UnitID) {
	for key := range v.cache {
		if key.observer == id || key.target == id {
			delete(v.cache, key)
		}
	}
}

// InvalidateAll empties the cache.
func (v *Vision) InvalidateAll() {
	v.cache = make(map[visKey]visEntry)
}

// CacheLen reports the number of memoised entries.
func (v *Vision) CacheLen() int { return len(v.cache) }
