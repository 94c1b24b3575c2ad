package sim

// PhaseKind is the battle-wide lifecycle stage. Exactly one Phase value
// exists per simulation instance.
type PhaseKind uint8

const (
	PhasePlacement PhaseKind = iota
	PhaseBattle
	PhaseEnded
)

func (p PhaseKind) String() string {
	switch p {
	case PhasePlacement:
		return "placement"
	case PhaseBattle:
		return "battle"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Phase carries the battle stage and, once ended, the outcome.
type Phase struct {
	Kind   PhaseKind `json:"kind"`
	Winner Side      `json:"winner,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// BehaviorKind tags the mutually exclusive tactical-intent variants.
type BehaviorKind uint8

const (
	BehaviorIdle BehaviorKind = iota
	BehaviorMoveTo
	BehaviorDefend
	BehaviorEngage
	BehaviorHide
	BehaviorDead
)

func (b BehaviorKind) String() string {
	switch b {
	case BehaviorIdle:
		return "idle"
	case BehaviorMoveTo:
		return "move-to"
	case BehaviorDefend:
		return "defend"
	case BehaviorEngage:
		return "engage"
	case BehaviorHide:
		return "hide"
	case BehaviorDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Behavior is a unit's current tactical intent. The variant fields are only
// meaningful for the matching kind.
type Behavior struct {
	Kind BehaviorKind `json:"kind"`

	// MoveTo: waypoints in traversal order.
	Path []Position `json:"path,omitempty"`
	// Defend / Hide: the watch or concealment facing.
	Facing float64 `json:"facing,omitempty"`
	// Engage: the target unit.
	Target UnitID `json:"target,omitempty"`
	// Idle: the posture to hold.
	Stance Stance `json:"stance,omitempty"`
}

// IdleBehavior returns an Idle behavior holding the given posture.
func IdleBehavior(s Stance) Behavior {
	return Behavior{Kind: BehaviorIdle, Stance: s}
}

// DeadBehavior is the terminal behavior. Once set, no further Behavior or
// Gesture transition is legal for the unit.
func DeadBehavior() Behavior {
	return Behavior{Kind: BehaviorDead}
}

// Moving reports whether the behavior implies active locomotion, which makes
// the unit easier to spot.
func (b Behavior) Moving() bool {
	return b.Kind == BehaviorMoveTo
}

// GestureKind tags the mutually exclusive immediate-action variants.
type GestureKind uint8

const (
	GestureIdle GestureKind = iota
	GestureReloading
	GestureAiming
	GestureFiring
)

func (g GestureKind) String() string {
	switch g {
	case GestureIdle:
		return "idle"
	case GestureReloading:
		return "reloading"
	case GestureAiming:
		return "aiming"
	case GestureFiring:
		return "firing"
	default:
		return "unknown"
	}
}

// Gesture is a unit's current frame-accurate physical action. Idle is both
// the initial and a valid return state; the other variants carry the tick at
// which they complete.
type Gesture struct {
	Kind    GestureKind `json:"kind"`
	EndTick uint64      `json:"endTick,omitempty"`
}

// IdleGesture returns the resting gesture.
func IdleGesture() Gesture { return Gesture{Kind: GestureIdle} }

// Completed reports whether the gesture has finished by the given tick.
// Idle is always complete. The engine must transition a completed gesture
// before the end of the tick after completion; a completed gesture left in
// place longer is a defect.
func (g Gesture) Completed(tick uint64) bool {
	if g.Kind == GestureIdle {
		return true
	}
	return tick >= g.EndTick
}
