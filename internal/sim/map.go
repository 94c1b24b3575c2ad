package sim

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfBounds is returned for spatial queries outside the map.
// Callers must clamp or reject positions before querying.
var ErrOutOfBounds = errors.New("position out of map bounds")

// Terrain identifies the dominant surface/structure of a cell.
type Terrain uint8

const (
	TerrainOpen Terrain = iota
	TerrainRoad
	TerrainBrush
	TerrainForest
	TerrainRubble
	TerrainWater
	TerrainBuilding
	TerrainWall
	terrainCount // sentinel
)

func (t Terrain) String() string {
	switch t {
	case TerrainOpen:
		return "open"
	case TerrainRoad:
		return "road"
	case TerrainBrush:
		return "brush"
	case TerrainForest:
		return "forest"
	case TerrainRubble:
		return "rubble"
	case TerrainWater:
		return "water"
	case TerrainBuilding:
		return "building"
	case TerrainWall:
		return "wall"
	default:
		return "unknown"
	}
}

// ParseTerrain maps a scenario-file terrain name to a Terrain.
func ParseTerrain(name string) (Terrain, error) {
	for t := TerrainOpen; t < terrainCount; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return TerrainOpen, fmt.Errorf("unknown terrain %q", name)
}

// terrainOpacity returns the per-cell vision blocking contribution.
// 1.0 = fully opaque, 0.0 = transparent.
func terrainOpacity(t Terrain) float64 {
	switch t {
	case TerrainBrush:
		return 0.15
	case TerrainForest:
		return 0.25
	case TerrainRubble:
		return 0.1
	case TerrainBuilding, TerrainWall:
		return 1.0
	default:
		return 0.0
	}
}

// terrainPassable returns true if infantry can enter the cell.
func terrainPassable(t Terrain) bool {
	switch t {
	case TerrainBuilding, TerrainWall, TerrainWater:
		return false
	default:
		return true
	}
}

// terrainCover returns the cover fraction the cell grants a unit in the
// given stance. Going prone squeezes more protection out of low cover.
func terrainCover(t Terrain, s Stance) float64 {
	var base float64
	switch t {
	case TerrainBrush:
		base = 0.15
	case TerrainForest:
		base = 0.3
	case TerrainRubble:
		base = 0.45
	case TerrainBuilding:
		base = 0.7
	case TerrainWall:
		base = 0.8
	default:
		base = 0.0
	}
	total := base + s.Profile().CoverBonus
	if total > 0.9 {
		total = 0.9
	}
	return total
}

// terrainMoveMul returns the movement speed multiplier for the cell in the
// given stance. 0 means impassable.
func terrainMoveMul(t Terrain, s Stance) float64 {
	if !terrainPassable(t) {
		return 0
	}
	var base float64
	switch t {
	case TerrainRoad:
		base = 1.1
	case TerrainBrush:
		base = 0.8
	case TerrainForest:
		base = 0.6
	case TerrainRubble:
		base = 0.5
	default:
		base = 1.0
	}
	return base * s.Profile().SpeedMul
}

// terrainDurability returns starting hit points for destructible terrain.
// 0 means indestructible (or nothing to destroy).
func terrainDurability(t Terrain) int16 {
	switch t {
	case TerrainBrush:
		return 10
	case TerrainForest:
		return 40
	case TerrainBuilding:
		return 60
	case TerrainWall:
		return 80
	default:
		return 0
	}
}

// terrainDegrade returns what a destroyed cell of terrain t becomes.
func terrainDegrade(t Terrain) Terrain {
	switch t {
	case TerrainBuilding, TerrainWall:
		return TerrainRubble
	case TerrainForest:
		return TerrainBrush
	case TerrainBrush:
		return TerrainOpen
	default:
		return t
	}
}

// Cell is one grid cell of the battlefield.
type Cell struct {
	Terrain    Terrain
	Elevation  int16 // metres above the map datum
	Durability int16 // remaining hit points; 0 = indestructible/destroyed
	Damaged    bool
}

// Opacity returns the cell's vision blocking contribution.
func (c Cell) Opacity() float64 { return terrainOpacity(c.Terrain) }

// Passable returns true if infantry can enter the cell.
func (c Cell) Passable() bool { return terrainPassable(c.Terrain) }

// Cover returns the cover fraction for a unit in stance s.
func (c Cell) Cover(s Stance) float64 { return terrainCover(c.Terrain, s) }

// MoveMul returns the movement speed multiplier for stance s.
func (c Cell) MoveMul(s Stance) float64 { return terrainMoveMul(c.Terrain, s) }

// Map is the authoritative per-cell terrain representation. It is immutable
// after scenario load except for explicit destructible-terrain damage.
type Map struct {
	Cols  int
	Rows  int
	cells []Cell // row-major: index = row*Cols + col
}

// NewMap creates a map of open ground.
func NewMap(cols, rows int) *Map {
	return &Map{Cols: cols, Rows: rows, cells: make([]Cell, cols*rows)}
}

// Width returns the map extent along X in metres.
func (m *Map) Width() float64 { return float64(m.Cols) * cellSize }

// Height returns the map extent along Y in metres.
func (m *Map) Height() float64 { return float64(m.Rows) * cellSize }

func (m *Map) inBounds(ci CellIndex) bool {
	return ci.Col >= 0 && ci.Col < m.Cols && ci.Row >= 0 && ci.Row < m.Rows
}

// Contains returns true if the continuous position lies on the map.
func (m *Map) Contains(p Position) bool {
	return m.inBounds(p.Cell())
}

// CellAt returns the cell containing the position.
func (m *Map) CellAt(p Position) (Cell, error) {
	return m.CellAtIndex(p.Cell())
}

// CellAtIndex returns the cell at a grid index.
func (m *Map) CellAtIndex(ci CellIndex) (Cell, error) {
	if !m.inBounds(ci) {
		return Cell{}, fmt.Errorf("cell (%d,%d): %w", ci.Col, ci.Row, ErrOutOfBounds)
	}
	return m.cells[ci.Row*m.Cols+ci.Col], nil
}

// SetTerrain places terrain in a cell, initialising durability.
// Used during scenario load only.
func (m *Map) SetTerrain(ci CellIndex, t Terrain) error {
	if !m.inBounds(ci) {
		return fmt.Errorf("cell (%d,%d): %w", ci.Col, ci.Row, ErrOutOfBounds)
	}
	c := &m.cells[ci.Row*m.Cols+ci.Col]
	c.Terrain = t
	c.Durability = terrainDurability(t)
	return nil
}

// SetElevation sets a cell's elevation in metres. Scenario load only.
func (m *Map) SetElevation(ci CellIndex, metres int16) error {
	if !m.inBounds(ci) {
		return fmt.Errorf("cell (%d,%d): %w", ci.Col, ci.Row, ErrOutOfBounds)
	}
	m.cells[ci.Row*m.Cols+ci.Col].Elevation = metres
	return nil
}

// ApplyDamage reduces a destructible cell's durability and degrades the
// terrain when it reaches zero. Returns true when the cell changed form.
// Callers owning a visibility cache must invalidate entries touching the
// cell whenever this returns true.
func (m *Map) ApplyDamage(ci CellIndex, dmg int) (bool, error) {
	if !m.inBounds(ci) {
		return false, fmt.Errorf("cell (%d,%d): %w", ci.Col, ci.Row, ErrOutOfBounds)
	}
	c := &m.cells[ci.Row*m.Cols+ci.Col]
	if c.Durability <= 0 {
		return false, nil // indestructible or already destroyed
	}
	if dmg > math.MaxInt16 {
		dmg = math.MaxInt16
	}
	c.Durability -= int16(dmg)
	c.Damaged = true
	if c.Durability > 0 {
		return false, nil
	}
	c.Durability = 0
	c.Terrain = terrainDegrade(c.Terrain)
	return true, nil
}

// LineOfCells walks the grid from one position to another and returns every
// cell the segment passes through, endpoints included, in traversal order.
// The walk is a deterministic DDA: when the segment crosses a cell corner
// the X step is taken first. Both visibility and movement rely on the order
// being identical across runs.
func (m *Map) LineOfCells(from, to Position) ([]CellIndex, error) {
	if !m.Contains(from) {
		return nil, fmt.Errorf("from (%.1f,%.1f): %w", from.X, from.Y, ErrOutOfBounds)
	}
	if !m.Contains(to) {
		return nil, fmt.Errorf("to (%.1f,%.1f): %w", to.X, to.Y, ErrOutOfBounds)
	}

	cur := from.Cell()
	end := to.Cell()
	cells := []CellIndex{cur}
	if cur == end {
		return cells, nil
	}

	dx := to.X - from.X
	dy := to.Y - from.Y

	stepX, stepY := 0, 0
	tMaxX, tMaxY := math.Inf(1), math.Inf(1)
	tDeltaX, tDeltaY := math.Inf(1), math.Inf(1)

	if dx > 0 {
		stepX = 1
		tMaxX = (float64(cur.Col+1)*cellSize - from.X) / dx
		tDeltaX = cellSize / dx
	} else if dx < 0 {
		stepX = -1
		tMaxX = (float64(cur.Col)*cellSize - from.X) / dx
		tDeltaX = -cellSize / dx
	}
	if dy > 0 {
		stepY = 1
		tMaxY = (float64(cur.Row+1)*cellSize - from.Y) / dy
		tDeltaY = cellSize / dy
	} else if dy < 0 {
		stepY = -1
		tMaxY = (float64(cur.Row)*cellSize - from.Y) / dy
		tDeltaY = -cellSize / dy
	}

	// The walk visits at most the Manhattan distance in cells.
	guard := abs(end.Col-cur.Col) + abs(end.Row-cur.Row)
	for i := 0; i < guard; i++ {
		if tMaxX <= tMaxY {
			cur.Col += stepX
			tMaxX += tDeltaX
		} else {
			cur.Row += stepY
			tMaxY += tDeltaY
		}
		cells = append(cells, cur)
		if cur == end {
			break
		}
	}
	return cells, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
