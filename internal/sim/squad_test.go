package sim

import (
	"errors"
	"testing"
)

func squadBattle() *TestBattle {
	return NewTestBattle(
		WithGrid(64, 64),
		WithRedRifleman(40, 40),
		WithRedRifleman(44, 40),
		WithRedRifleman(48, 40),
		WithBlueRifleman(200, 200),
		WithSquad(SideRed, FormationWedge, 0, 1, 2),
	)
}

func TestSquad_OrderFansOutWithFormationOffsets(t *testing.T) {
	tb := squadBattle()

	msgs, err := tb.E.SubmitSquadOrder(1, Action{Kind: ActionMoveTo, Dest: Position{X: 100, Y: 40}})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("three members should yield three move messages, got %d", len(msgs))
	}
	tb.Step(1)

	dests := map[Position]bool{}
	for i := 0; i < 3; i++ {
		u := tb.Unit(i)
		if u.Behavior.Kind != BehaviorMoveTo {
			t.Fatalf("member %d not moving: %v", i, u.Behavior.Kind)
		}
		dests[u.Behavior.Path[len(u.Behavior.Path)-1]] = true
	}
	if len(dests) != 3 {
		t.Fatalf("formation offsets should give distinct destinations, got %d unique", len(dests))
	}
}

func TestSquad_LeaderDeathReassignsSameTick(t *testing.T) {
	tb := squadBattle()
	leader := tb.IDs[0]

	tb.Send(ApplyDamageMessage(leader, 1000))

	states := tb.E.Squads()
	if len(states) != 1 {
		t.Fatalf("expected one squad, got %d", len(states))
	}
	if states[0].Leader != tb.IDs[1] {
		t.Fatalf("leadership should pass to the next senior member, got %v", states[0].Leader)
	}
	if !tb.Log.Has("squad", "leader_reassigned", "") {
		t.Fatal("reassignment should be logged")
	}
}

func TestSquad_DeadMemberSkippedNotFatal(t *testing.T) {
	tb := squadBattle()
	tb.Send(ApplyDamageMessage(tb.IDs[1], 1000))

	msgs, err := tb.E.SubmitSquadOrder(1, Action{Kind: ActionMoveTo, Dest: Position{X: 100, Y: 40}})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("two living members should yield two messages, got %d", len(msgs))
	}
}

func TestSquad_AllDeadYieldsEmptyOrder(t *testing.T) {
	tb := squadBattle()
	tb.Send(
		ApplyDamageMessage(tb.IDs[0], 1000),
		ApplyDamageMessage(tb.IDs[1], 1000),
		ApplyDamageMessage(tb.IDs[2], 1000),
	)

	msgs, err := tb.E.SubmitSquadOrder(1, Action{Kind: ActionMoveTo, Dest: Position{X: 100, Y: 40}})
	if err != nil {
		t.Fatalf("fully dead squad order should not error: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}

func TestSquad_DissolvesAfterMembersDespawn(t *testing.T) {
	tb := NewTestBattle(
		WithGrid(64, 64),
		WithTunable("despawnDelayTicks", 5),
		WithRedRifleman(40, 40),
		WithRedRifleman(44, 40),
		WithBlueRifleman(200, 200),
		WithSquad(SideRed, FormationLine, 0, 1),
	)
	tb.Send(
		ApplyDamageMessage(tb.IDs[0], 1000),
		ApplyDamageMessage(tb.IDs[1], 1000),
	)
	tb.Step(20)

	states := tb.E.Squads()
	if !states[0].Dissolved {
		t.Fatal("squad should dissolve once every member reference is stale")
	}
	if _, err := tb.E.SubmitSquadOrder(1, Action{Kind: ActionDefend}); !errors.Is(err, ErrSquadNotFound) {
		t.Fatalf("orders to a dissolved squad: got %v, want ErrSquadNotFound", err)
	}
}

func TestSquad_UnknownSquadRejected(t *testing.T) {
	tb := squadBattle()
	if _, err := tb.E.SubmitSquadOrder(99, Action{Kind: ActionDefend}); !errors.Is(err, ErrSquadNotFound) {
		t.Fatalf("got %v, want ErrSquadNotFound", err)
	}
}

func TestSquad_CohesionTracksProximityAndMorale(t *testing.T) {
	tb := squadBattle()
	tb.Step(1)
	close0 := tb.E.Squads()[0].Cohesion
	if close0 <= 0 || close0 > 1 {
		t.Fatalf("cohesion out of range: %f", close0)
	}

	// Drag one member far from the leader; cohesion must fall.
	tb.Send(Message{Kind: MsgUnitMoved, Unit: tb.IDs[2], Pos: Position{X: 240, Y: 40}})
	far := tb.E.Squads()[0].Cohesion
	if far >= close0 {
		t.Fatalf("cohesion should fall with dispersion: %f -> %f", close0, far)
	}
}

func TestFormationOffsets_Shapes(t *testing.T) {
	for _, f := range []FormationKind{FormationLine, FormationWedge, FormationColumn, FormationEchelon} {
		offs := formationOffsets(f, 5, 6)
		if len(offs) != 5 {
			t.Fatalf("%v: expected 5 offsets, got %d", f, len(offs))
		}
		if offs[0] != [2]float64{0, 0} {
			t.Fatalf("%v: leader slot must be the anchor, got %v", f, offs[0])
		}
		seen := map[[2]float64]bool{}
		for _, o := range offs {
			if seen[o] {
				t.Fatalf("%v: duplicate slot offset %v", f, o)
			}
			seen[o] = true
		}
	}
}
