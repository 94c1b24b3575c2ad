package sim

// Stance is a unit's body posture. It is orthogonal to Behavior: a unit can
// be prone while idle, defending, or firing.
type Stance uint8

const (
	StanceStanding Stance = iota
	StanceCrouching
	StanceProne
)

// StanceProfile holds the gameplay modifiers for a stance.
type StanceProfile struct {
	SpeedMul        float64 // multiplier on base move speed
	CoverBonus      float64 // extra cover fraction from hugging the ground
	SpotModifier    float64 // additive visibility-threshold modifier as a target
	TransitionTicks int     // ticks to switch INTO this stance
}

var stanceProfiles = map[Stance]StanceProfile{
	StanceStanding:  {SpeedMul: 1.0, CoverBonus: 0.0, SpotModifier: 0.0, TransitionTicks: 0},
	StanceCrouching: {SpeedMul: 0.5, CoverBonus: 0.1, SpotModifier: -0.1, TransitionTicks: 5},
	StanceProne:     {SpeedMul: 0.15, CoverBonus: 0.25, SpotModifier: -0.25, TransitionTicks: 12},
}

// Profile returns the modifiers for the stance.
func (s Stance) Profile() StanceProfile {
	return stanceProfiles[s]
}

func (s Stance) String() string {
	switch s {
	case StanceStanding:
		return "standing"
	case StanceCrouching:
		return "crouching"
	case StanceProne:
		return "prone"
	default:
		return "unknown"
	}
}

// ParseStance maps a scenario-file stance name to a Stance.
// Unknown names default to standing.
func ParseStance(name string) Stance {
	switch name {
	case "crouching":
		return StanceCrouching
	case "prone":
		return StanceProne
	default:
		return StanceStanding
	}
}
