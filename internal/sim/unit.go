package sim

// Side distinguishes the opposing forces.
type Side uint8

const (
	SideRed Side = iota
	SideBlue
)

func (s Side) String() string {
	if s == SideBlue {
		return "blue"
	}
	return "red"
}

// ParseSide maps a scenario-file side name to a Side.
func ParseSide(name string) Side {
	if name == "blue" {
		return SideBlue
	}
	return SideRed
}

// UnitKind is the closed set of unit specialisations. Kind-specific numbers
// live in the kindSpecs table; anything orthogonal (suppression, mobility)
// is a capability flag instead.
type UnitKind uint8

const (
	KindRifleman UnitKind = iota
	KindMachineGunner
	KindAntiTank
	KindCrew
	kindCount // sentinel
)

func (k UnitKind) String() string {
	switch k {
	case KindRifleman:
		return "rifleman"
	case KindMachineGunner:
		return "machine-gunner"
	case KindAntiTank:
		return "anti-tank"
	case KindCrew:
		return "crew"
	default:
		return "unknown"
	}
}

// ParseKind maps a scenario-file kind name to a UnitKind.
func ParseKind(name string) UnitKind {
	for k := KindRifleman; k < kindCount; k++ {
		if k.String() == name {
			return k
		}
	}
	return KindRifleman
}

// KindSpec holds the per-kind combat numbers.
type KindSpec struct {
	BaseSpeed   float64 // metres per tick at standing walk
	Range       float64 // effective weapon range in metres
	ReloadTicks uint64
	AimTicks    uint64
	FireTicks   uint64
	Damage      float64
	MaxHealth   float64
}

var kindSpecs = map[UnitKind]KindSpec{
	KindRifleman:      {BaseSpeed: 0.35, Range: 180, ReloadTicks: 45, AimTicks: 20, FireTicks: 8, Damage: 35, MaxHealth: 100},
	KindMachineGunner: {BaseSpeed: 0.28, Range: 240, ReloadTicks: 90, AimTicks: 30, FireTicks: 15, Damage: 25, MaxHealth: 100},
	KindAntiTank:      {BaseSpeed: 0.25, Range: 150, ReloadTicks: 150, AimTicks: 40, FireTicks: 5, Damage: 90, MaxHealth: 100},
	KindCrew:          {BaseSpeed: 0.35, Range: 100, ReloadTicks: 40, AimTicks: 15, FireTicks: 6, Damage: 20, MaxHealth: 100},
}

// Spec returns the combat numbers for the kind.
func (k UnitKind) Spec() KindSpec { return kindSpecs[k] }

// Capability is a bitfield of orthogonal unit traits. Mutually exclusive
// state (Behavior, Gesture) stays as tagged variants, never bits.
type Capability uint64

const (
	CapCanMove Capability = 1 << iota
	CapCanFire
)

// Has reports whether all bits in c are set.
func (caps Capability) Has(c Capability) bool { return caps&c == c }

// UnitID is a stable unit reference: a slot index plus a generation counter
// so that messages about despawned units are detectable as stale.
type UnitID struct {
	Index uint32 `json:"index"`
	Gen   uint32 `json:"gen"`
}

// NoUnit is the zero UnitID; generation counters start at 1, so it never
// refers to a live unit.
var NoUnit = UnitID{}

// IsZero reports whether the id is the null reference.
func (id UnitID) IsZero() bool { return id == NoUnit }

// SquadID identifies a squad. 0 means "no squad".
type SquadID uint32

// Unit is one soldier record in the entity state store.
type Unit struct {
	ID     UnitID
	Side   Side
	Kind   UnitKind
	Caps   Capability
	Pos    Position
	Facing float64 // radians
	Stance Stance

	Health float64
	Morale float64 // 0..1
	Loaded bool    // weapon has a round/belt ready

	// Non-owning back-reference; the squad owns the member list.
	Squad SquadID

	Behavior Behavior
	Gesture  Gesture

	// DiedTick is the tick the unit went Dead; despawn happens after the
	// cleanup delay.
	DiedTick uint64
}

// Alive reports whether the unit can still act.
func (u Unit) Alive() bool { return u.Behavior.Kind != BehaviorDead }

// Speed returns the unit's movement rate in metres per tick on the given
// cell, accounting for kind, stance, and terrain.
func (u *Unit) Speed(c Cell) float64 {
	return u.Kind.Spec().BaseSpeed * c.MoveMul(u.Stance)
}
