package sim

import (
	"errors"
	"fmt"
)

// ErrUnsatisfiable is returned when no declared action can establish a
// missing precondition. The caller must surface this as "order rejected",
// never silently drop it.
var ErrUnsatisfiable = errors.New("order unsatisfiable")

// ErrCircularPrerequisite is returned when prerequisite chaining exceeds
// the configured depth limit, which indicates a cycle in the action table.
var ErrCircularPrerequisite = errors.New("circular prerequisite chain")

// ActionKind is the closed set of orderable actions.
type ActionKind uint8

const (
	ActionFire ActionKind = iota
	ActionReload
	ActionAim
	ActionStandUp
	ActionCrouch
	ActionGoProne
	ActionMoveTo
	ActionRun
	ActionDefend
	ActionHide
	ActionEngage
)

func (a ActionKind) String() string {
	switch a {
	case ActionFire:
		return "fire"
	case ActionReload:
		return "reload"
	case ActionAim:
		return "aim"
	case ActionStandUp:
		return "stand-up"
	case ActionCrouch:
		return "crouch"
	case ActionGoProne:
		return "go-prone"
	case ActionMoveTo:
		return "move-to"
	case ActionRun:
		return "run"
	case ActionDefend:
		return "defend"
	case ActionHide:
		return "hide"
	case ActionEngage:
		return "engage"
	default:
		return "unknown"
	}
}

// ParseAction maps an order-intake action name to an ActionKind.
func ParseAction(name string) (ActionKind, error) {
	for a := ActionFire; a <= ActionEngage; a++ {
		if a.String() == name {
			return a, nil
		}
	}
	return ActionFire, fmt.Errorf("unknown action %q", name)
}

// Action is a requested action with its kind-specific parameters.
type Action struct {
	Kind   ActionKind
	Dest   Position // MoveTo / Run
	Facing float64  // Defend / Hide
	Target UnitID   // Engage
}

// condition is a precondition an action declares on the unit's current state.
type condition uint8

const (
	condLoaded condition = iota
	condStanding
	condUpright // standing or crouching
	condProne
)

func (c condition) String() string {
	switch c {
	case condLoaded:
		return "weapon loaded"
	case condStanding:
		return "standing"
	case condUpright:
		return "upright"
	case condProne:
		return "prone"
	default:
		return "unknown"
	}
}

func conditionMet(u *Unit, c condition) bool {
	switch c {
	case condLoaded:
		return u.Loaded
	case condStanding:
		return u.Stance == StanceStanding
	case condUpright:
		return u.Stance != StanceProne
	case condProne:
		return u.Stance == StanceProne
	default:
		return false
	}
}

// defaultRequirements declares each action's preconditions. Weapon-stance
// compatibility lives here: rifles fire from any stance, so Fire only needs
// a loaded weapon, while Run needs the unit on its feet.
func defaultRequirements() map[ActionKind][]condition {
	return map[ActionKind][]condition{
		ActionFire:    {condLoaded},
		ActionAim:     {condLoaded},
		ActionEngage:  {condLoaded},
		ActionMoveTo:  {condUpright},
		ActionRun:     {condStanding},
		ActionHide:    {condProne},
		ActionReload:  nil,
		ActionStandUp: nil,
		ActionCrouch:  nil,
		ActionGoProne: nil,
		ActionDefend:  nil,
	}
}

// defaultEstablishers maps each condition to the action that establishes it.
func defaultEstablishers() map[condition]ActionKind {
	return map[condition]ActionKind{
		condLoaded:   ActionReload,
		condStanding: ActionStandUp,
		condUpright:  ActionStandUp,
		condProne:    ActionGoProne,
	}
}

// Resolver translates a requested action into an ordered message sequence,
// automatically prepending whatever actions establish unmet preconditions.
type Resolver struct {
	requirements map[ActionKind][]condition
	establishers map[condition]ActionKind
	cfg          *Tunables
}

// NewResolver creates a resolver over the default action table.
func NewResolver(cfg *Tunables) *Resolver {
	return &Resolver{
		requirements: defaultRequirements(),
		establishers: defaultEstablishers(),
		cfg:          cfg,
	}
}

// newResolverWithTable is used by tests to inject degenerate action tables.
func newResolverWithTable(cfg *Tunables, reqs map[ActionKind][]condition, est map[condition]ActionKind) *Resolver {
	return &Resolver{requirements: reqs, establishers: est, cfg: cfg}
}

// Resolve returns the messages that perform the requested action for the
// unit, prerequisites first. Applying the sequence in order leaves every
// step's preconditions satisfied. tick is the current engine tick; gesture
// completion ticks are computed from it.
func (r *Resolver) Resolve(u Unit, act Action, tick uint64) ([]Message, error) {
	if !u.Alive() {
		return nil, fmt.Errorf("unit %d is dead: %w", u.ID.Index, ErrUnsatisfiable)
	}

	// virtual tracks the state the unit will be in after each chained step,
	// so later preconditions see the effect of earlier prerequisites.
	virtual := u
	var chain []Action

	var build func(a Action, depth int) error
	build = func(a Action, depth int) error {
		if depth > r.cfg.MaxChainDepth {
			return fmt.Errorf("resolving %s for unit %d: %w", a.Kind, u.ID.Index, ErrCircularPrerequisite)
		}
		for _, req := range r.requirements[a.Kind] {
			if conditionMet(&virtual, req) {
				continue
			}
			est, ok := r.establishers[req]
			if !ok {
				return fmt.Errorf("no action establishes %q for %s: %w", req, a.Kind, ErrUnsatisfiable)
			}
			if err := build(Action{Kind: est}, depth+1); err != nil {
				return err
			}
			if !conditionMet(&virtual, req) {
				return fmt.Errorf("%s did not establish %q: %w", est, req, ErrUnsatisfiable)
			}
		}
		chain = append(chain, a)
		applyPredicted(&virtual, a)
		return nil
	}

	if err := build(act, 0); err != nil {
		return nil, err
	}

	// Gesture end ticks are sequenced as if the steps run back to back.
	msgs := make([]Message, 0, len(chain))
	at := tick
	for _, a := range chain {
		step := r.actionMessages(u.Kind, u.ID, a, at)
		for _, m := range step {
			if m.Kind == MsgSetGesture && m.Gesture.Kind != GestureIdle {
				at = m.Gesture.EndTick
			}
		}
		msgs = append(msgs, step...)
	}
	return msgs, nil
}

// applyPredicted advances the virtual unit state past an action so the
// chain's later precondition checks are evaluated against it.
func applyPredicted(u *Unit, a Action) {
	switch a.Kind {
	case ActionReload:
		u.Loaded = true
	case ActionFire:
		u.Loaded = false
	case ActionStandUp:
		u.Stance = StanceStanding
	case ActionCrouch:
		u.Stance = StanceCrouching
	case ActionGoProne:
		u.Stance = StanceProne
	}
}

// actionMessages translates one chained action into store messages.
func (r *Resolver) actionMessages(kind UnitKind, id UnitID, a Action, tick uint64) []Message {
	spec := kind.Spec()
	switch a.Kind {
	case ActionReload:
		return []Message{SetGestureMessage(id, Gesture{Kind: GestureReloading, EndTick: tick + spec.ReloadTicks})}
	case ActionAim:
		return []Message{SetGestureMessage(id, Gesture{Kind: GestureAiming, EndTick: tick + spec.AimTicks})}
	case ActionFire:
		return []Message{SetGestureMessage(id, Gesture{Kind: GestureFiring, EndTick: tick + spec.FireTicks})}
	case ActionStandUp:
		return []Message{SetStanceMessage(id, StanceStanding)}
	case ActionCrouch:
		return []Message{SetStanceMessage(id, StanceCrouching)}
	case ActionGoProne:
		return []Message{SetStanceMessage(id, StanceProne)}
	case ActionMoveTo, ActionRun:
		return []Message{SetBehaviorMessage(id, Behavior{Kind: BehaviorMoveTo, Path: []Position{a.Dest}})}
	case ActionDefend:
		return []Message{SetBehaviorMessage(id, Behavior{Kind: BehaviorDefend, Facing: a.Facing})}
	case ActionHide:
		return []Message{SetBehaviorMessage(id, Behavior{Kind: BehaviorHide, Facing: a.Facing})}
	case ActionEngage:
		return []Message{SetBehaviorMessage(id, Behavior{Kind: BehaviorEngage, Target: a.Target})}
	default:
		return nil
	}
}
