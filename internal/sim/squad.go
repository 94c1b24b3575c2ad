package sim

import (
	"errors"
	"fmt"
)

// ErrSquadNotFound is returned for orders naming an unknown or dissolved
// squad.
var ErrSquadNotFound = errors.New("squad not found")

// Squad groups units under a leader. A squad never owns unit lifetime: the
// store despawns units and the squad drops stale references lazily. Member
// order is seniority order and decides leader succession.
type Squad struct {
	ID        SquadID
	Side      Side
	Members   []UnitID
	Leader    UnitID
	Formation FormationKind

	// Cohesion blends average member morale with proximity to the leader.
	Cohesion float64

	dissolved bool
}

// Dissolved reports whether the squad has been emptied and dissolved.
// Dissolved squads are never resurrected.
func (sq *Squad) Dissolved() bool { return sq.dissolved }

// pruneStale drops member references that no longer resolve to live units.
func (sq *Squad) pruneStale(store *Store) {
	kept := sq.Members[:0]
	for _, id := range sq.Members {
		if _, ok := store.Get(id); ok {
			kept = append(kept, id)
		}
	}
	sq.Members = kept
}

// aliveMembers returns the members whose behavior is not Dead, in seniority
// order.
func (sq *Squad) aliveMembers(store *Store) []UnitID {
	var alive []UnitID
	for _, id := range sq.Members {
		if u, ok := store.Get(id); ok && u.Alive() {
			alive = append(alive, id)
		}
	}
	return alive
}

// nextLeader returns the most senior living member, or NoUnit.
func (sq *Squad) nextLeader(store *Store) UnitID {
	alive := sq.aliveMembers(store)
	if len(alive) == 0 {
		return NoUnit
	}
	return alive[0]
}

// leaderAlive reports whether the current leader still resolves and lives.
func (sq *Squad) leaderAlive(store *Store) bool {
	if sq.Leader.IsZero() {
		return false
	}
	u, ok := store.Get(sq.Leader)
	return ok && u.Alive()
}

// recomputeCohesion refreshes the cohesion scalar from average member
// morale and spread around the leader.
func (sq *Squad) recomputeCohesion(store *Store, cfg *Tunables) {
	alive := sq.aliveMembers(store)
	if len(alive) == 0 {
		sq.Cohesion = 0
		return
	}
	leader, ok := store.Get(sq.Leader)
	if !ok {
		sq.Cohesion = 0
		return
	}

	moraleSum := 0.0
	distSum := 0.0
	for _, id := range alive {
		u, _ := store.Get(id)
		moraleSum += u.Morale
		distSum += u.Pos.DistanceTo(leader.Pos)
	}
	n := float64(len(alive))
	avgMorale := moraleSum / n
	avgDist := distSum / n

	proximity := 1.0 - avgDist/cfg.CohesionRadius
	if proximity < 0 {
		proximity = 0
	}
	sq.Cohesion = clamp01(avgMorale * (0.5 + 0.5*proximity))
}

// issueOrderLocked adapts an order for every living member of the squad and
// returns the combined message sequence. Movement destinations are offset
// by each member's formation slot relative to the leader's heading toward
// the destination. An empty or fully dead squad yields an empty sequence
// and no error.
func (e *Engine) issueOrderLocked(squadID SquadID, act Action) ([]Message, error) {
	sq := e.squad(squadID)
	if sq == nil || sq.dissolved {
		return nil, fmt.Errorf("squad %d: %w", squadID, ErrSquadNotFound)
	}
	sq.pruneStale(e.store)
	alive := sq.aliveMembers(e.store)
	if len(alive) == 0 {
		return nil, nil
	}

	leader, _ := e.store.Get(sq.Leader)
	heading := leader.Facing
	if act.Kind == ActionMoveTo || act.Kind == ActionRun {
		heading = leader.Pos.HeadingTo(act.Dest)
	}
	offsets := formationOffsets(sq.Formation, len(alive), e.cfg.SlotSpacing)

	var msgs []Message
	for i, id := range alive {
		u, _ := e.store.Get(id)
		adapted := act
		if act.Kind == ActionMoveTo || act.Kind == ActionRun {
			adapted.Dest = slotPosition(act.Dest, heading, offsets[i][0], offsets[i][1])
			if !e.m.Contains(adapted.Dest) {
				adapted.Dest = act.Dest
			}
		}
		step, err := e.resolver.Resolve(u, adapted, e.tick)
		if err != nil {
			// One member failing its chain does not reject the squad order;
			// the member is skipped and the rejection recorded.
			e.battleLog.Add(e.tick, unitLabel(u), "order", "member_rejected", err.Error(), 0)
			continue
		}
		msgs = append(msgs, step...)
	}
	return msgs, nil
}
