package sim

import (
	"errors"
	"testing"
)

func testUnit(loaded bool, stance Stance) Unit {
	return Unit{
		ID:     UnitID{Index: 0, Gen: 1},
		Kind:   KindRifleman,
		Caps:   CapCanMove | CapCanFire,
		Pos:    Position{X: 10, Y: 10},
		Stance: stance,
		Health: 100,
		Loaded: loaded,
		Behavior: IdleBehavior(stance),
		Gesture:  IdleGesture(),
	}
}

func TestResolve_SatisfiedOrderIsDirect(t *testing.T) {
	cfg := DefaultTunables()
	r := NewResolver(&cfg)
	msgs, err := r.Resolve(testUnit(true, StanceStanding), Action{Kind: ActionFire}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Gesture.Kind != GestureFiring {
		t.Fatalf("loaded fire should be a single firing gesture, got %v", msgs)
	}
	spec := KindRifleman.Spec()
	if msgs[0].Gesture.EndTick != 100+spec.FireTicks {
		t.Fatalf("fire ends at %d, want %d", msgs[0].Gesture.EndTick, 100+spec.FireTicks)
	}
}

func TestResolve_FireUnloadedChainsReload(t *testing.T) {
	cfg := DefaultTunables()
	r := NewResolver(&cfg)
	// Prone and unloaded: firing needs no stance change, so the chain is
	// exactly reload then fire.
	msgs, err := r.Resolve(testUnit(false, StanceProne), Action{Kind: ActionFire}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected [reload, fire], got %d messages: %v", len(msgs), msgs)
	}
	if msgs[0].Gesture.Kind != GestureReloading || msgs[1].Gesture.Kind != GestureFiring {
		t.Fatalf("chain order wrong: %v then %v", msgs[0].Gesture.Kind, msgs[1].Gesture.Kind)
	}
	for _, m := range msgs {
		if m.Kind == MsgSetStance {
			t.Fatal("prone fire must not inject a stance change")
		}
	}
	// The fire is scheduled after the reload finishes.
	if msgs[1].Gesture.EndTick <= msgs[0].Gesture.EndTick {
		t.Fatalf("fire (%d) must end after reload (%d)", msgs[1].Gesture.EndTick, msgs[0].Gesture.EndTick)
	}
	spec := KindRifleman.Spec()
	if msgs[0].Gesture.EndTick != 100+spec.ReloadTicks {
		t.Fatalf("reload ends at %d, want %d", msgs[0].Gesture.EndTick, 100+spec.ReloadTicks)
	}
}

func TestResolve_RunProneChainsStandUp(t *testing.T) {
	cfg := DefaultTunables()
	r := NewResolver(&cfg)
	msgs, err := r.Resolve(testUnit(true, StanceProne), Action{Kind: ActionRun, Dest: Position{X: 50, Y: 50}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected [stand up, run], got %v", msgs)
	}
	if msgs[0].Kind != MsgSetStance || msgs[0].Stance != StanceStanding {
		t.Fatalf("first step should stand the unit up, got %v", msgs[0])
	}
	if msgs[1].Kind != MsgSetBehavior || msgs[1].Behavior.Kind != BehaviorMoveTo {
		t.Fatalf("second step should start the move, got %v", msgs[1])
	}
}

func TestResolve_DeadUnitUnsatisfiable(t *testing.T) {
	cfg := DefaultTunables()
	r := NewResolver(&cfg)
	u := testUnit(true, StanceStanding)
	u.Behavior = DeadBehavior()
	if _, err := r.Resolve(u, Action{Kind: ActionFire}, 0); !errors.Is(err, ErrUnsatisfiable) {
		t.Fatalf("expected ErrUnsatisfiable for a dead unit, got %v", err)
	}
}

func TestResolve_MissingEstablisherUnsatisfiable(t *testing.T) {
	cfg := DefaultTunables()
	reqs := map[ActionKind][]condition{ActionFire: {condLoaded}}
	r := newResolverWithTable(&cfg, reqs, map[condition]ActionKind{})
	if _, err := r.Resolve(testUnit(false, StanceStanding), Action{Kind: ActionFire}, 0); !errors.Is(err, ErrUnsatisfiable) {
		t.Fatalf("expected ErrUnsatisfiable, got %v", err)
	}
}

func TestResolve_CircularTableDetected(t *testing.T) {
	cfg := DefaultTunables()
	// Degenerate table: reload requires loaded, established by reload.
	reqs := map[ActionKind][]condition{
		ActionFire:   {condLoaded},
		ActionReload: {condLoaded},
	}
	est := map[condition]ActionKind{condLoaded: ActionReload}
	r := newResolverWithTable(&cfg, reqs, est)
	if _, err := r.Resolve(testUnit(false, StanceStanding), Action{Kind: ActionFire}, 0); !errors.Is(err, ErrCircularPrerequisite) {
		t.Fatalf("expected ErrCircularPrerequisite, got %v", err)
	}
}

func TestResolve_VirtualStateCarriesForward(t *testing.T) {
	// A prone unit ordered to run must stand up exactly once even when
	// several conditions in the chain check posture.
	cfg := DefaultTunables()
	r := NewResolver(&cfg)
	u := testUnit(false, StanceProne)
	msgs, err := r.Resolve(u, Action{Kind: ActionRun, Dest: Position{X: 40, Y: 40}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	stands := 0
	for _, m := range msgs {
		if m.Kind == MsgSetStance && m.Stance == StanceStanding {
			stands++
		}
	}
	if stands != 1 {
		t.Fatalf("expected exactly one stand-up in the chain, got %d: %v", stands, msgs)
	}
}

func TestParseAction_RoundTrip(t *testing.T) {
	for a := ActionFire; a <= ActionEngage; a++ {
		got, err := ParseAction(a.String())
		if err != nil || got != a {
			t.Fatalf("round trip %v: got %v, %v", a, got, err)
		}
	}
	if _, err := ParseAction("teleport"); err == nil {
		t.Fatal("unknown action must error")
	}
}
