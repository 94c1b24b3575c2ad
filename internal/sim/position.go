package sim

import "math"

// cellSize is the edge length of one grid cell in world metres.
const cellSize = 4.0

// Position is a continuous world-space location in metres. Continuous
// position is authoritative; the grid cell is always derived from it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CellIndex addresses one cell of the map grid.
type CellIndex struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// Cell returns the grid cell containing the position.
func (p Position) Cell() CellIndex {
	return CellIndex{
		Col: int(math.Floor(p.X / cellSize)),
		Row: int(math.Floor(p.Y / cellSize)),
	}
}

// Center returns the world position of the cell's centre.
func (ci CellIndex) Center() Position {
	return Position{
		X: float64(ci.Col)*cellSize + cellSize/2,
		Y: float64(ci.Row)*cellSize + cellSize/2,
	}
}

// DistanceTo returns the straight-line distance to q in metres.
func (p Position) DistanceTo(q Position) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// HeadingTo returns the angle in radians from p toward q.
// 0 = +X, pi/2 = +Y.
func (p Position) HeadingTo(q Position) float64 {
	return math.Atan2(q.Y-p.Y, q.X-p.X)
}

// normalizeAngle wraps an angle to [-pi, pi].
func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
