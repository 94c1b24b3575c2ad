package sim

import "fmt"

// Tunables are the named numeric knobs supplied at startup. Runtime changes
// travel as ChangeConfig messages so replays see the same values at the same
// ticks.
type Tunables struct {
	TickRate int // simulation steps per second

	// Visibility.
	VisionThreshold    float64 // accumulated opacity at which a target is hidden
	AlwaysVisibleCells int     // near-radius (in cells) exempt from accumulation
	MovingSpotModifier float64 // threshold bonus against a moving target
	AimingSpotModifier float64 // threshold bonus for an aiming observer

	// Orders.
	MaxChainDepth int // prerequisite recursion limit

	// Lifecycle.
	DespawnDelayTicks uint64 // ticks a corpse stays before despawning

	// Squads.
	CohesionRadius float64 // metres from leader at which cohesion decays
	SlotSpacing    float64 // metres between adjacent formation slots

	// Combat.
	BaseHitChance float64 // chance to hit an exposed standing target in range
}

// DefaultTunables returns the baseline configuration.
func DefaultTunables() Tunables {
	return Tunables{
		TickRate:           60,
		VisionThreshold:    0.5,
		AlwaysVisibleCells: 2,
		MovingSpotModifier: 0.25,
		AimingSpotModifier: 0.1,
		MaxChainDepth:      8,
		DespawnDelayTicks:  600,
		CohesionRadius:     60,
		SlotSpacing:        6,
		BaseHitChance:      0.4,
	}
}

// Set adjusts one tunable by name. Unknown names are an error so that a
// mistyped ChangeConfig message is surfaced rather than silently absorbed.
func (t *Tunables) Set(key string, value float64) error {
	switch key {
	case "tickRate":
		t.TickRate = int(value)
	case "visionThreshold":
		t.VisionThreshold = value
	case "alwaysVisibleCells":
		t.AlwaysVisibleCells = int(value)
	case "movingSpotModifier":
		t.MovingSpotModifier = value
	case "aimingSpotModifier":
		t.AimingSpotModifier = value
	case "maxChainDepth":
		t.MaxChainDepth = int(value)
	case "despawnDelayTicks":
		t.DespawnDelayTicks = uint64(value)
	case "cohesionRadius":
		t.CohesionRadius = value
	case "slotSpacing":
		t.SlotSpacing = value
	case "baseHitChance":
		t.BaseHitChance = value
	default:
		return fmt.Errorf("unknown tunable %q", key)
	}
	return nil
}

// hashFields returns the tunables in a fixed order for state hashing.
func (t *Tunables) hashFields() []float64 {
	return []float64{
		float64(t.TickRate),
		t.VisionThreshold,
		float64(t.AlwaysVisibleCells),
		t.MovingSpotModifier,
		t.AimingSpotModifier,
		float64(t.MaxChainDepth),
		float64(t.DespawnDelayTicks),
		t.CohesionRadius,
		t.SlotSpacing,
		t.BaseHitChance,
	}
}
