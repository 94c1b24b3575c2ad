package sim

import (
	"math/rand"

	"github.com/rs/zerolog"
)

// SlotState is the serialized form of one store slot, including freed slots
// so generation counters survive a restore.
type SlotState struct {
	Live bool   `json:"live"`
	Gen  uint32 `json:"gen"`
	Unit Unit   `json:"unit"`
}

// SquadState is the serialized form of one squad.
type SquadState struct {
	ID        SquadID       `json:"id"`
	Side      Side          `json:"side"`
	Members   []UnitID      `json:"members"`
	Leader    UnitID        `json:"leader"`
	Formation FormationKind `json:"formation"`
	Cohesion  float64       `json:"cohesion"`
	Dissolved bool          `json:"dissolved"`
}

// Snapshot is a complete, deep copy of engine state at a tick boundary.
// Restoring it and replaying the same external messages reproduces the same
// state hashes tick for tick.
type Snapshot struct {
	Tick     uint64   `json:"tick"`
	Hash     uint64   `json:"hash"` // state hash at Tick, for independent verification
	Seed     int64    `json:"seed"`
	RNGDraws uint64   `json:"rngDraws"`
	Phase    Phase    `json:"phase"`
	Tunables Tunables `json:"tunables"`

	MapCols int    `json:"mapCols"`
	MapRows int    `json:"mapRows"`
	Cells   []Cell `json:"cells"`

	Slots  []SlotState  `json:"slots"`
	Free   []uint32     `json:"free,omitempty"` // free-slot order matters for spawn determinism
	Squads []SquadState `json:"squads"`
}

// Snapshot returns the most recently published tick-boundary snapshot, or a
// freshly built one before the first tick. Readers get it without touching
// the engine lock.
func (e *Engine) Snapshot() *Snapshot {
	if s := e.snap.Load(); s != nil {
		return s
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Tick:     e.tick,
		Hash:     e.stateHashLocked(),
		Seed:     e.rngSeed,
		RNGDraws: e.rngDraws,
		Phase:    e.store.phase,
		Tunables: *e.cfg,
		MapCols:  e.m.Cols,
		MapRows:  e.m.Rows,
		Cells:    make([]Cell, len(e.m.cells)),
		Slots:    make([]SlotState, len(e.store.slots)),
		Free:     append([]uint32(nil), e.store.free...),
		Squads:   e.squadStatesLocked(),
	}
	copy(snap.Cells, e.m.cells)
	for i, sl := range e.store.slots {
		st := SlotState{Live: sl.live, Gen: sl.gen, Unit: sl.unit}
		if sl.live && len(sl.unit.Behavior.Path) > 0 {
			st.Unit.Behavior.Path = append([]Position(nil), sl.unit.Behavior.Path...)
		}
		snap.Slots[i] = st
	}
	return snap
}

func (e *Engine) squadStatesLocked() []SquadState {
	out := make([]SquadState, len(e.squads))
	for i, sq := range e.squads {
		out[i] = SquadState{
			ID:        sq.ID,
			Side:      sq.Side,
			Members:   append([]UnitID(nil), sq.Members...),
			Leader:    sq.Leader,
			Formation: sq.Formation,
			Cohesion:  sq.Cohesion,
			Dissolved: sq.dissolved,
		}
	}
	return out
}

// RestoreEngine rebuilds an engine from a snapshot, including the RNG
// position, so derived rolls continue from where the snapshot was taken.
func RestoreEngine(snap *Snapshot, logger zerolog.Logger) *Engine {
	m := &Map{Cols: snap.MapCols, Rows: snap.MapRows, cells: make([]Cell, len(snap.Cells))}
	copy(m.cells, snap.Cells)

	e := NewEngine(m, snap.Tunables, snap.Seed, logger)
	e.tick = snap.Tick
	e.store.phase = snap.Phase

	e.store.slots = make([]slot, len(snap.Slots))
	e.store.free = append([]uint32(nil), snap.Free...)
	for i, st := range snap.Slots {
		u := st.Unit
		if len(u.Behavior.Path) > 0 {
			u.Behavior.Path = append([]Position(nil), u.Behavior.Path...)
		}
		e.store.slots[i] = slot{unit: u, live: st.Live, gen: st.Gen}
	}

	e.squads = make([]*Squad, len(snap.Squads))
	for i, ss := range snap.Squads {
		e.squads[i] = &Squad{
			ID:        ss.ID,
			Side:      ss.Side,
			Members:   append([]UnitID(nil), ss.Members...),
			Leader:    ss.Leader,
			Formation: ss.Formation,
			Cohesion:  ss.Cohesion,
			dissolved: ss.Dissolved,
		}
	}

	// Wind the generator forward to the recorded draw count.
	e.rng = rand.New(rand.NewSource(snap.Seed)) // #nosec G404
	for i := uint64(0); i < snap.RNGDraws; i++ {
		e.rng.Float64()
	}
	e.rngDraws = snap.RNGDraws

	return e
}
