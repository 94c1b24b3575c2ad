package sim

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// StateHash folds the full simulation state into a 64-bit FNV-1a digest.
// Field order is fixed; two engines that processed the same external
// messages from the same snapshot produce the same digest, and a divergence
// anywhere in units, map, squads, tunables, or RNG position changes it.
func (e *Engine) StateHash() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateHashLocked()
}

func (e *Engine) stateHashLocked() uint64 {
	h := fnv.New64a()
	var buf [8]byte

	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	f64 := func(v float64) { u64(math.Float64bits(v)) }
	str := func(s string) {
		u64(uint64(len(s)))
		h.Write([]byte(s))
	}

	u64(e.tick)
	u64(uint64(e.rngSeed))
	u64(e.rngDraws)

	u64(uint64(e.store.phase.Kind))
	u64(uint64(e.store.phase.Winner))
	str(e.store.phase.Reason)

	for _, v := range e.cfg.hashFields() {
		f64(v)
	}

	u64(uint64(e.m.Cols))
	u64(uint64(e.m.Rows))
	for _, c := range e.m.cells {
		u64(uint64(c.Terrain))
		u64(uint64(int64(c.Elevation)))
		u64(uint64(int64(c.Durability)))
		if c.Damaged {
			u64(1)
		} else {
			u64(0)
		}
	}

	u64(uint64(len(e.store.slots)))
	for _, sl := range e.store.slots {
		u64(uint64(sl.gen))
		if !sl.live {
			u64(0)
			continue
		}
		u64(1)
		hashUnit(u64, f64, sl.unit)
	}
	u64(uint64(len(e.store.free)))
	for _, idx := range e.store.free {
		u64(uint64(idx))
	}

	u64(uint64(len(e.squads)))
	for _, sq := range e.squads {
		u64(uint64(sq.ID))
		u64(uint64(sq.Side))
		u64(uint64(sq.Leader.Index))
		u64(uint64(sq.Leader.Gen))
		u64(uint64(sq.Formation))
		f64(sq.Cohesion)
		if sq.dissolved {
			u64(1)
		} else {
			u64(0)
		}
		u64(uint64(len(sq.Members)))
		for _, id := range sq.Members {
			u64(uint64(id.Index))
			u64(uint64(id.Gen))
		}
	}

	return h.Sum64()
}

func hashUnit(u64 func(uint64), f64 func(float64), u Unit) {
	u64(uint64(u.ID.Index))
	u64(uint64(u.ID.Gen))
	u64(uint64(u.Side))
	u64(uint64(u.Kind))
	u64(uint64(u.Caps))
	f64(u.Pos.X)
	f64(u.Pos.Y)
	f64(u.Facing)
	u64(uint64(u.Stance))
	f64(u.Health)
	f64(u.Morale)
	if u.Loaded {
		u64(1)
	} else {
		u64(0)
	}
	u64(uint64(u.Squad))

	u64(uint64(u.Behavior.Kind))
	f64(u.Behavior.Facing)
	u64(uint64(u.Behavior.Target.Index))
	u64(uint64(u.Behavior.Target.Gen))
	u64(uint64(u.Behavior.Stance))
	u64(uint64(len(u.Behavior.Path)))
	for _, p := range u.Behavior.Path {
		f64(p.X)
		f64(p.Y)
	}

	u64(uint64(u.Gesture.Kind))
	u64(u.Gesture.EndTick)
	u64(u.DiedTick)
}
