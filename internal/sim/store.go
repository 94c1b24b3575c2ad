package sim

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a unit id does not resolve to a live unit.
var ErrNotFound = errors.New("unit not found")

// ErrStaleReference marks a message that targets a despawned or regenerated
// unit id. Late messages about dead units are expected under network jitter,
// so callers treat this as a logged no-op, never a fatal error.
var ErrStaleReference = fmt.Errorf("stale unit reference: %w", ErrNotFound)

// ErrInvariant marks a message whose application would violate a store
// invariant (e.g. any transition on a Dead unit). The offending message is
// dropped and the tick continues.
var ErrInvariant = errors.New("invariant violation")

type slot struct {
	unit Unit
	live bool
	gen  uint32
}

// Store is the entity state store: contiguous slot storage with generation
// counters, mutated exclusively through Apply.
type Store struct {
	slots []slot
	free  []uint32

	phase Phase
}

// NewStore creates an empty store in the Placement phase.
func NewStore() *Store {
	return &Store{phase: Phase{Kind: PhasePlacement}}
}

// Phase returns the battle-wide lifecycle value.
func (s *Store) Phase() Phase { return s.phase }

// Get returns a copy of the unit, or false when the id is stale or unknown.
func (s *Store) Get(id UnitID) (Unit, bool) {
	u, err := s.ref(id)
	if err != nil {
		return Unit{}, false
	}
	return *u, true
}

// ref resolves an id to the live slot, checking the generation counter.
func (s *Store) ref(id UnitID) (*Unit, error) {
	if int(id.Index) >= len(s.slots) {
		return nil, ErrStaleReference
	}
	sl := &s.slots[id.Index]
	if !sl.live || sl.gen != id.Gen {
		return nil, ErrStaleReference
	}
	return &sl.unit, nil
}

// Units returns copies of all live units in slot order. The slice is a
// snapshot: safe to hold across mutations.
func (s *Store) Units() []Unit {
	out := make([]Unit, 0, len(s.slots))
	for i := range s.slots {
		if s.slots[i].live {
			out = append(out, s.slots[i].unit)
		}
	}
	return out
}

// Len returns the number of live units.
func (s *Store) Len() int {
	n := 0
	for i := range s.slots {
		if s.slots[i].live {
			n++
		}
	}
	return n
}

// AliveCount returns the number of units on a side that are not Dead.
func (s *Store) AliveCount(side Side) int {
	n := 0
	for i := range s.slots {
		if s.slots[i].live && s.slots[i].unit.Side == side && s.slots[i].unit.Alive() {
			n++
		}
	}
	return n
}

// Apply performs the single state change a message describes. It is the only
// mutation path into the store. tick is the tick the message is applied in.
func (s *Store) Apply(msg Message, tick uint64) error {
	switch msg.Kind {
	case MsgSpawnUnit:
		s.spawn(msg)
		return nil

	case MsgDespawnUnit:
		u, err := s.ref(msg.Unit)
		if err != nil {
			return err
		}
		if u.Alive() {
			return fmt.Errorf("despawn of living unit %d: %w", msg.Unit.Index, ErrInvariant)
		}
		s.slots[msg.Unit.Index].live = false
		s.free = append(s.free, msg.Unit.Index)
		return nil

	case MsgSetBehavior:
		u, err := s.ref(msg.Unit)
		if err != nil {
			return err
		}
		if !u.Alive() {
			return fmt.Errorf("behavior transition on dead unit %d: %w", msg.Unit.Index, ErrInvariant)
		}
		u.Behavior = msg.Behavior
		if msg.Behavior.Kind == BehaviorDead {
			// Dead locks the unit: gesture drops to idle and no further
			// transition will be accepted.
			u.Gesture = IdleGesture()
			u.Caps &^= CapCanMove | CapCanFire
			u.DiedTick = tick
		}
		return nil

	case MsgSetGesture:
		u, err := s.ref(msg.Unit)
		if err != nil {
			return err
		}
		if !u.Alive() && msg.Gesture.Kind != GestureIdle {
			return fmt.Errorf("gesture on dead unit %d: %w", msg.Unit.Index, ErrInvariant)
		}
		u.Gesture = msg.Gesture
		return nil

	case MsgSetStance:
		u, err := s.ref(msg.Unit)
		if err != nil {
			return err
		}
		if !u.Alive() {
			return fmt.Errorf("stance change on dead unit %d: %w", msg.Unit.Index, ErrInvariant)
		}
		u.Stance = msg.Stance
		return nil

	case MsgSetLoaded:
		u, err := s.ref(msg.Unit)
		if err != nil {
			return err
		}
		if !u.Alive() {
			return fmt.Errorf("reload state on dead unit %d: %w", msg.Unit.Index, ErrInvariant)
		}
		u.Loaded = msg.Loaded
		return nil

	case MsgApplyDamage:
		u, err := s.ref(msg.Unit)
		if err != nil {
			return err
		}
		if !u.Alive() {
			// Shooting a corpse is not an invariant breach, just pointless.
			return nil
		}
		u.Health -= msg.Amount
		u.Morale = clamp01(u.Morale - msg.Amount/200)
		if u.Health <= 0 {
			u.Health = 0
			u.Behavior = DeadBehavior()
			u.Gesture = IdleGesture()
			u.Caps &^= CapCanMove | CapCanFire
			u.DiedTick = tick
		}
		return nil

	case MsgUnitMoved:
		u, err := s.ref(msg.Unit)
		if err != nil {
			return err
		}
		if !u.Alive() {
			return fmt.Errorf("movement of dead unit %d: %w", msg.Unit.Index, ErrInvariant)
		}
		u.Pos = msg.Pos
		return nil

	case MsgSetFacing:
		u, err := s.ref(msg.Unit)
		if err != nil {
			return err
		}
		if !u.Alive() {
			return fmt.Errorf("facing of dead unit %d: %w", msg.Unit.Index, ErrInvariant)
		}
		// Orders may carry any angle; stored facing stays in [-pi, pi] so
		// hashes of equivalent headings agree.
		u.Facing = normalizeAngle(msg.Facing)
		return nil

	case MsgSetPhase:
		s.phase = msg.Phase
		return nil

	default:
		// ChangeTerrain, ChangeConfig, and squad messages are routed by the
		// engine; they never reach the store.
		return fmt.Errorf("message kind %s not applicable to store: %w", msg.Kind, ErrInvariant)
	}
}

// spawn creates a unit, reusing a free slot if one exists. The generation
// counter bumps on reuse so references to the previous occupant go stale.
func (s *Store) spawn(msg Message) UnitID {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[idx].gen++
	} else {
		idx = uint32(len(s.slots))
		s.slots = append(s.slots, slot{gen: 1})
	}
	sl := &s.slots[idx]
	sl.live = true
	id := UnitID{Index: idx, Gen: sl.gen}
	sl.unit = Unit{
		ID:       id,
		Side:     msg.Side,
		Kind:     msg.UKind,
		Caps:     CapCanMove | CapCanFire,
		Pos:      msg.Pos,
		Facing:   msg.Facing,
		Stance:   msg.Stance,
		Health:   msg.UKind.Spec().MaxHealth,
		Morale:   0.7,
		Loaded:   true,
		Squad:    msg.Squad,
		Behavior: IdleBehavior(msg.Stance),
		Gesture:  IdleGesture(),
	}
	return id
}
