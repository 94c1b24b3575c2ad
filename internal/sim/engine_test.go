package sim

import (
	"testing"
)

func TestEngine_TwoRunsSameHash(t *testing.T) {
	build := func() *TestBattle {
		return NewTestBattle(
			WithGrid(48, 48),
			WithSeed(1337),
			WithTunable("baseHitChance", 1),
			WithRedRifleman(20, 20),
			WithBlueRifleman(120, 20),
		)
	}
	run := func(tb *TestBattle) uint64 {
		tb.Send(SetBehaviorMessage(tb.IDs[0], Behavior{Kind: BehaviorEngage, Target: tb.IDs[1]}))
		tb.Step(300)
		return tb.E.StateHash()
	}

	h1 := run(build())
	h2 := run(build())
	if h1 != h2 {
		t.Fatalf("identical runs diverged: %016x vs %016x", h1, h2)
	}
}

func TestEngine_SeedChangesOutcomeHash(t *testing.T) {
	run := func(seed int64) uint64 {
		tb := NewTestBattle(
			WithGrid(48, 48),
			WithSeed(seed),
			WithRedRifleman(20, 20),
			WithBlueRifleman(120, 20),
		)
		tb.Send(SetBehaviorMessage(tb.IDs[0], Behavior{Kind: BehaviorEngage, Target: tb.IDs[1]}))
		tb.Step(300)
		return tb.E.StateHash()
	}
	if run(1) == run(2) {
		t.Fatal("different seeds should not produce identical state hashes")
	}
}

func TestEngine_LastBehaviorWinsWithinTick(t *testing.T) {
	tb := NewTestBattle(WithRedRifleman(20, 20))
	id := tb.IDs[0]

	tb.Send(
		SetBehaviorMessage(id, Behavior{Kind: BehaviorMoveTo, Path: []Position{{X: 100, Y: 100}}}),
		SetBehaviorMessage(id, Behavior{Kind: BehaviorDefend, Facing: 1.5}),
	)

	u := tb.Unit(0)
	if u.Behavior.Kind != BehaviorDefend {
		t.Fatalf("latest behavior should win, got %v", u.Behavior.Kind)
	}
}

func TestEngine_PriorityOrdersWithinTick(t *testing.T) {
	// A cosmetic move enqueued before a state-change death still applies
	// after it, so the move lands on a dead unit and is dropped.
	tb := NewTestBattle(WithRedRifleman(20, 20))
	id := tb.IDs[0]
	start := tb.Unit(0).Pos

	tb.Send(
		Message{Kind: MsgUnitMoved, Unit: id, Pos: Position{X: 90, Y: 90}},
		SetBehaviorMessage(id, DeadBehavior()),
	)

	u := tb.Unit(0)
	if u.Alive() {
		t.Fatal("unit should be dead")
	}
	if u.Pos != start {
		t.Fatalf("cosmetic move must be dropped after death, pos moved to %v", u.Pos)
	}
	if !tb.Log.Has("drop", "unit-moved", "") {
		t.Fatal("dropped move should be recorded in the battle log")
	}
}

func TestEngine_StaleMessageIsIsolated(t *testing.T) {
	tb := NewTestBattle(WithRedRifleman(20, 20))
	ghost := UnitID{Index: 40, Gen: 3}

	applied := tb.Send(
		ApplyDamageMessage(ghost, 50),
		SetStanceMessage(tb.IDs[0], StanceProne),
	)

	// The stale message vanished; the valid one went through.
	for _, m := range applied {
		if m.Unit == ghost {
			t.Fatal("stale message should not be in the applied list")
		}
	}
	if tb.Unit(0).Stance != StanceProne {
		t.Fatal("valid message in the same tick must still apply")
	}
}

func TestEngine_MovementFollowsPathThenIdles(t *testing.T) {
	tb := NewTestBattle(WithGrid(48, 48), WithRedRifleman(10, 10))
	id := tb.IDs[0]

	tb.Send(SetBehaviorMessage(id, Behavior{
		Kind: BehaviorMoveTo,
		Path: []Position{{X: 30, Y: 10}, {X: 30, Y: 30}},
	}))
	tb.Step(200)

	u := tb.Unit(0)
	if u.Behavior.Kind != BehaviorIdle {
		t.Fatalf("unit should idle at the end of its path, got %v", u.Behavior.Kind)
	}
	if u.Pos.DistanceTo(Position{X: 30, Y: 30}) > 0.01 {
		t.Fatalf("unit stopped at %v, want (30,30)", u.Pos)
	}
}

func TestEngine_MovementBlockedByWall(t *testing.T) {
	tb := NewTestBattle(
		WithGrid(48, 48),
		WithTerrainRect(TerrainWall, 5, 0, 1, 48),
		WithRedRifleman(10, 10),
	)
	tb.Send(SetBehaviorMessage(tb.IDs[0], Behavior{
		Kind: BehaviorMoveTo,
		Path: []Position{{X: 40, Y: 10}},
	}))
	tb.Step(100)

	u := tb.Unit(0)
	if u.Behavior.Kind == BehaviorMoveTo {
		t.Fatal("blocked unit should have abandoned the move")
	}
	if u.Pos.X >= 20 {
		t.Fatalf("unit walked through a wall to %v", u.Pos)
	}
	if !tb.Log.Has("move", "blocked", "") {
		t.Fatal("expected a blocked-move event")
	}
}

func TestEngine_CapabilityBitsGateMovementAndFire(t *testing.T) {
	tb := NewTestBattle(
		WithGrid(48, 48),
		WithTunable("baseHitChance", 1),
		WithRedRifleman(10, 10),
		WithBlueRifleman(60, 10),
	)
	// Strip the bits directly; the unit is otherwise alive and ordered.
	tb.E.store.slots[tb.IDs[0].Index].unit.Caps &^= CapCanMove | CapCanFire

	tb.Send(SetBehaviorMessage(tb.IDs[0], Behavior{
		Kind: BehaviorMoveTo,
		Path: []Position{{X: 40, Y: 10}},
	}))
	tb.Step(100)
	if u := tb.Unit(0); u.Pos.DistanceTo(Position{X: 10, Y: 10}) > 0.01 {
		t.Fatalf("unit without CapCanMove moved to %v", u.Pos)
	}

	tb.Send(SetBehaviorMessage(tb.IDs[0], Behavior{Kind: BehaviorEngage, Target: tb.IDs[1]}))
	tb.Step(300)
	if n := tb.Log.Count("combat", "hit"); n != 0 {
		t.Fatalf("unit without CapCanFire landed %d hits", n)
	}
	if !tb.Unit(1).Alive() {
		t.Fatal("target of a fire-incapable unit should survive")
	}
}

func TestEngine_EngageCycleKillsAndEndsBattle(t *testing.T) {
	tb := NewTestBattle(
		WithGrid(48, 48),
		WithSeed(11),
		WithTunable("baseHitChance", 1),
		WithTunable("despawnDelayTicks", 50),
		WithRedRifleman(20, 20),
		WithBlueRifleman(120, 20),
	)
	tb.Send(SetBehaviorMessage(tb.IDs[0], Behavior{Kind: BehaviorEngage, Target: tb.IDs[1]}))
	tb.Step(400)

	tgt := tb.Unit(1)
	if tgt.Alive() {
		t.Fatalf("guaranteed hits should have killed the target, health %f", tgt.Health)
	}
	phase := tb.E.Phase()
	if phase.Kind != PhaseEnded || phase.Winner != SideRed {
		t.Fatalf("battle should have ended with a red win, got %+v", phase)
	}
	if tb.Log.Count("combat", "hit") < 3 {
		t.Fatalf("expected at least 3 hits, got %d", tb.Log.Count("combat", "hit"))
	}

	// After the cleanup delay the corpse despawns and its id goes stale.
	tb.Step(100)
	if _, ok := tb.E.Unit(tb.IDs[1]); ok {
		t.Fatal("corpse should have despawned")
	}
	if n := len(tb.E.Units()); n != 1 {
		t.Fatalf("expected one remaining unit, got %d", n)
	}
}

func TestEngine_ChangeConfigMidBattle(t *testing.T) {
	tb := NewTestBattle(WithRedRifleman(20, 20), WithBlueRifleman(120, 20))
	tb.Send(ChangeConfigMessage("visionThreshold", 0.9))
	snap := tb.E.Snapshot()
	if snap.Tunables.VisionThreshold != 0.9 {
		t.Fatalf("tunable not applied: %f", snap.Tunables.VisionThreshold)
	}

	// An unknown key is rejected and logged, not fatal.
	tb.Send(ChangeConfigMessage("gravity", 9.8))
	if !tb.Log.Has("drop", "change-config", "") {
		t.Fatal("unknown tunable should be dropped with a log entry")
	}
}

func TestEngine_TerrainDestructionRevealsTarget(t *testing.T) {
	tb := NewTestBattle(
		WithGrid(48, 48),
		WithTerrainRect(TerrainBuilding, 10, 0, 1, 48),
		WithRedRifleman(20, 20),
		WithBlueRifleman(120, 20),
	)
	obs, tgt := tb.IDs[0], tb.IDs[1]

	if level, err := tb.E.Visibility(obs, tgt); err != nil || level != VisHidden {
		t.Fatalf("building should hide the target, got %v, %v", level, err)
	}

	// Demolish the wall cell on the sight line.
	tb.Send(ChangeTerrainMessage(CellIndex{Col: 10, Row: 5}, 1000))

	level, err := tb.E.Visibility(obs, tgt)
	if err != nil {
		t.Fatal(err)
	}
	if level == VisHidden {
		t.Fatalf("destroyed cover should reveal the target, got %v", level)
	}
}
