package sim

import (
	"fmt"
	"math"
)

// FormationKind identifies the shape a squad moves in.
type FormationKind uint8

const (
	FormationLine    FormationKind = iota // abreast, perpendicular to heading
	FormationWedge                        // V-shape, leader at point
	FormationColumn                       // single file behind leader
	FormationEchelon                      // diagonal line offset to one flank
)

func (f FormationKind) String() string {
	switch f {
	case FormationLine:
		return "line"
	case FormationWedge:
		return "wedge"
	case FormationColumn:
		return "column"
	case FormationEchelon:
		return "echelon"
	default:
		return "unknown"
	}
}

// ParseFormation maps a scenario-file formation name to a FormationKind.
func ParseFormation(name string) (FormationKind, error) {
	for f := FormationLine; f <= FormationEchelon; f++ {
		if f.String() == name {
			return f, nil
		}
	}
	return FormationLine, fmt.Errorf("unknown formation %q", name)
}

// formationOffsets returns the local (forward, right) offset for each slot
// in a formation of count members. Slot 0 is the leader and has no offset.
// Forward is along the leader's heading; right is 90 degrees clockwise.
func formationOffsets(f FormationKind, count int, spacing float64) [][2]float64 {
	offsets := make([][2]float64, count)
	if count == 0 {
		return offsets
	}
	offsets[0] = [2]float64{0, 0}

	switch f {
	case FormationLine:
		// Spread symmetrically: ...-2,-1,0,+1,+2,...
		for i := 1; i < count; i++ {
			side := float64((i+1)/2) * spacing
			if i%2 == 1 {
				side = -side
			}
			offsets[i] = [2]float64{0, side}
		}

	case FormationWedge:
		// Trail behind and spread outward from the point.
		for i := 1; i < count; i++ {
			depth := float64((i+1)/2) * spacing
			side := float64((i+1)/2) * spacing
			if i%2 == 1 {
				side = -side
			}
			offsets[i] = [2]float64{-depth, side}
		}

	case FormationColumn:
		for i := 1; i < count; i++ {
			offsets[i] = [2]float64{-float64(i) * spacing, 0}
		}

	case FormationEchelon:
		for i := 1; i < count; i++ {
			offsets[i] = [2]float64{-float64(i) * spacing * 0.7, float64(i) * spacing * 0.7}
		}
	}
	return offsets
}

// slotPosition converts a local (forward, right) offset into a world
// position anchored at the leader's position and heading.
func slotPosition(anchor Position, heading, fwd, right float64) Position {
	fx := math.Cos(heading)
	fy := math.Sin(heading)
	// Right unit vector, 90 degrees clockwise from forward.
	rx := -fy
	ry := fx
	return Position{
		X: anchor.X + fx*fwd + rx*right,
		Y: anchor.Y + fy*fwd + ry*right,
	}
}
