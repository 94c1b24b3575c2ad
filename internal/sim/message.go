package sim

// MessageKind identifies the single state change a message performs.
type MessageKind uint8

const (
	// Lifecycle messages.
	MsgSpawnUnit MessageKind = iota
	MsgDespawnUnit

	// State-change messages.
	MsgSetBehavior
	MsgSetGesture
	MsgSetStance
	MsgSetLoaded
	MsgApplyDamage
	MsgChangeTerrain
	MsgChangeConfig
	MsgSetPhase
	MsgLeaderReassigned
	MsgSquadDissolved

	// Cosmetic messages.
	MsgUnitMoved
	MsgSetFacing
)

func (k MessageKind) String() string {
	switch k {
	case MsgSpawnUnit:
		return "spawn-unit"
	case MsgDespawnUnit:
		return "despawn-unit"
	case MsgSetBehavior:
		return "set-behavior"
	case MsgSetGesture:
		return "set-gesture"
	case MsgSetStance:
		return "set-stance"
	case MsgSetLoaded:
		return "set-loaded"
	case MsgApplyDamage:
		return "apply-damage"
	case MsgChangeTerrain:
		return "change-terrain"
	case MsgChangeConfig:
		return "change-config"
	case MsgSetPhase:
		return "set-phase"
	case MsgLeaderReassigned:
		return "leader-reassigned"
	case MsgSquadDissolved:
		return "squad-dissolved"
	case MsgUnitMoved:
		return "unit-moved"
	case MsgSetFacing:
		return "set-facing"
	default:
		return "unknown"
	}
}

// Priority classes. Lower applies first within a tick.
const (
	PriorityLifecycle = iota
	PriorityStateChange
	PriorityCosmetic
)

// Priority returns the message's application class: lifecycle before
// state-change before cosmetic.
func (k MessageKind) Priority() int {
	switch k {
	case MsgSpawnUnit, MsgDespawnUnit:
		return PriorityLifecycle
	case MsgUnitMoved, MsgSetFacing:
		return PriorityCosmetic
	default:
		return PriorityStateChange
	}
}

// Message is an immutable, tick-numbered instruction describing exactly one
// state change. Messages are the only legal mutation path into the store.
// The variant fields are only meaningful for the matching kind.
type Message struct {
	Kind MessageKind `json:"kind"`
	Tick uint64      `json:"tick"` // tick the message was applied in
	Seq  uint64      `json:"seq"`  // total order within the tick

	// Internal marks messages the engine derived itself during Advancing.
	// Replay feeds only external messages; internal ones are re-derived.
	Internal bool `json:"internal,omitempty"`

	Unit UnitID `json:"unit,omitempty"`

	// SpawnUnit.
	Side   Side     `json:"side,omitempty"`
	UKind  UnitKind `json:"unitKind,omitempty"`
	Squad  SquadID  `json:"squad,omitempty"`
	Stance Stance   `json:"stance,omitempty"`

	Behavior Behavior `json:"behavior,omitempty"`
	Gesture  Gesture  `json:"gesture,omitempty"`

	// ApplyDamage / ChangeTerrain.
	Amount float64   `json:"amount,omitempty"`
	Cell   CellIndex `json:"cell,omitempty"`

	// SetLoaded.
	Loaded bool `json:"loaded,omitempty"`

	// UnitMoved / SetFacing / SpawnUnit.
	Pos    Position `json:"pos,omitempty"`
	Facing float64  `json:"facing,omitempty"`

	// ChangeConfig.
	ConfigKey   string  `json:"configKey,omitempty"`
	ConfigValue float64 `json:"configValue,omitempty"`

	// SetPhase.
	Phase Phase `json:"phase,omitempty"`
}

// SpawnUnitMessage creates a unit at a position.
func SpawnUnitMessage(side Side, kind UnitKind, pos Position, stance Stance, squad SquadID) Message {
	return Message{Kind: MsgSpawnUnit, Side: side, UKind: kind, Pos: pos, Stance: stance, Squad: squad}
}

// SetBehaviorMessage changes a unit's tactical intent.
func SetBehaviorMessage(id UnitID, b Behavior) Message {
	return Message{Kind: MsgSetBehavior, Unit: id, Behavior: b}
}

// SetGestureMessage changes a unit's immediate action.
func SetGestureMessage(id UnitID, g Gesture) Message {
	return Message{Kind: MsgSetGesture, Unit: id, Gesture: g}
}

// SetStanceMessage changes a unit's posture.
func SetStanceMessage(id UnitID, s Stance) Message {
	return Message{Kind: MsgSetStance, Unit: id, Stance: s}
}

// ApplyDamageMessage wounds a unit.
func ApplyDamageMessage(id UnitID, amount float64) Message {
	return Message{Kind: MsgApplyDamage, Unit: id, Amount: amount}
}

// ChangeTerrainMessage damages a destructible map cell.
func ChangeTerrainMessage(ci CellIndex, amount float64) Message {
	return Message{Kind: MsgChangeTerrain, Cell: ci, Amount: amount}
}

// ChangeConfigMessage adjusts one named tunable between ticks.
func ChangeConfigMessage(key string, value float64) Message {
	return Message{Kind: MsgChangeConfig, ConfigKey: key, ConfigValue: value}
}

// SetPhaseMessage advances the battle lifecycle.
func SetPhaseMessage(p Phase) Message {
	return Message{Kind: MsgSetPhase, Phase: p}
}

// DespawnMessage removes a unit after its cleanup delay.
func DespawnMessage(id UnitID) Message {
	return Message{Kind: MsgDespawnUnit, Unit: id}
}
