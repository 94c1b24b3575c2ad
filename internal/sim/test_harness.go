package sim

import "github.com/rs/zerolog"

// TestBattle is a headless engine harness used exclusively by tests. It
// wraps construction of a map, engine, units, and squads behind ordered
// functional options and exposes the pieces tests poke at.
type TestBattle struct {
	E   *Engine
	IDs []UnitID // in the order units were added
	Log *BattleLog
}

// battleOptionKind controls the pass in which an option is applied.
type battleOptionKind int

const (
	battleOptInfra battleOptionKind = iota // grid size, seed, tunables, terrain
	battleOptUnit                          // spawn units
	battleOptSquad                         // form squads over spawned units
)

// BattleOption is a builder function applied during construction.
type BattleOption struct {
	kind battleOptionKind
	fn   func(*battleBuilder)
}

type pendingUnit struct {
	side   Side
	kind   UnitKind
	pos    Position
	stance Stance
}

type pendingSquad struct {
	side      Side
	formation FormationKind
	ordinals  []int
}

type battleBuilder struct {
	cols, rows int
	seed       int64
	verbose    bool
	tunables   map[string]float64
	terrain    []func(*Map)
	units      []pendingUnit
	squads     []pendingSquad
}

// WithGrid sets the map dimensions in cells.
func WithGrid(cols, rows int) BattleOption {
	return BattleOption{battleOptInfra, func(b *battleBuilder) {
		b.cols, b.rows = cols, rows
	}}
}

// WithSeed sets the RNG seed for deterministic runs.
func WithSeed(seed int64) BattleOption {
	return BattleOption{battleOptInfra, func(b *battleBuilder) { b.seed = seed }}
}

// WithVerboseLog records cosmetic events too.
func WithVerboseLog() BattleOption {
	return BattleOption{battleOptInfra, func(b *battleBuilder) { b.verbose = true }}
}

// WithTunable overrides one named tunable.
func WithTunable(key string, value float64) BattleOption {
	return BattleOption{battleOptInfra, func(b *battleBuilder) {
		if b.tunables == nil {
			b.tunables = map[string]float64{}
		}
		b.tunables[key] = value
	}}
}

// WithTerrainRect paints a rectangle of cells.
func WithTerrainRect(t Terrain, col, row, cols, rows int) BattleOption {
	return BattleOption{battleOptInfra, func(b *battleBuilder) {
		b.terrain = append(b.terrain, func(m *Map) {
			for r := row; r < row+rows; r++ {
				for c := col; c < col+cols; c++ {
					_ = m.SetTerrain(CellIndex{Col: c, Row: r}, t)
				}
			}
		})
	}}
}

// WithUnit spawns a unit. Units get harness ordinals in option order.
func WithUnit(side Side, kind UnitKind, x, y float64, stance Stance) BattleOption {
	return BattleOption{battleOptUnit, func(b *battleBuilder) {
		b.units = append(b.units, pendingUnit{side: side, kind: kind, pos: Position{X: x, Y: y}, stance: stance})
	}}
}

// WithRedRifleman spawns a standing red rifleman.
func WithRedRifleman(x, y float64) BattleOption {
	return WithUnit(SideRed, KindRifleman, x, y, StanceStanding)
}

// WithBlueRifleman spawns a standing blue rifleman.
func WithBlueRifleman(x, y float64) BattleOption {
	return WithUnit(SideBlue, KindRifleman, x, y, StanceStanding)
}

// WithSquad groups previously added units (by harness ordinal) into a
// squad. The first ordinal is the leader.
func WithSquad(side Side, formation FormationKind, ordinals ...int) BattleOption {
	return BattleOption{battleOptSquad, func(b *battleBuilder) {
		b.squads = append(b.squads, pendingSquad{side: side, formation: formation, ordinals: ordinals})
	}}
}

// NewTestBattle builds a battle-phase engine from the options in three
// ordered passes: infrastructure, units, squads.
func NewTestBattle(opts ...BattleOption) *TestBattle {
	b := &battleBuilder{cols: 64, rows: 64, seed: 1}
	for _, o := range opts {
		if o.kind == battleOptInfra {
			o.fn(b)
		}
	}

	m := NewMap(b.cols, b.rows)
	for _, paint := range b.terrain {
		paint(m)
	}

	cfg := DefaultTunables()
	for _, k := range sortedKeys(b.tunables) {
		if err := cfg.Set(k, b.tunables[k]); err != nil {
			panic(err)
		}
	}

	e := NewEngine(m, cfg, b.seed, zerolog.Nop())
	e.SetBattleLog(NewBattleLog(b.verbose))

	for _, o := range opts {
		if o.kind == battleOptUnit {
			o.fn(b)
		}
	}
	var spawns []Message
	for _, pu := range b.units {
		spawns = append(spawns, SpawnUnitMessage(pu.side, pu.kind, pu.pos, pu.stance, 0))
	}
	e.Tick(spawns)

	tb := &TestBattle{E: e, Log: e.BattleLog()}
	for _, u := range e.Units() {
		tb.IDs = append(tb.IDs, u.ID)
	}

	for _, o := range opts {
		if o.kind == battleOptSquad {
			o.fn(b)
		}
	}
	for i, ps := range b.squads {
		sq := &Squad{ID: SquadID(i + 1), Side: ps.side, Formation: ps.formation}
		for _, ord := range ps.ordinals {
			sq.Members = append(sq.Members, tb.IDs[ord])
		}
		sq.Leader = sq.Members[0]
		e.AddSquad(sq)
		// Stamp the back-reference the scenario loader sets at spawn.
		for _, id := range sq.Members {
			if sl := &e.store.slots[id.Index]; sl.live && sl.gen == id.Gen {
				sl.unit.Squad = sq.ID
			}
		}
	}

	e.Tick([]Message{SetPhaseMessage(Phase{Kind: PhaseBattle})})
	return tb
}

// Step advances n ticks with no external input.
func (tb *TestBattle) Step(n int) {
	for i := 0; i < n; i++ {
		tb.E.Step()
	}
}

// Unit returns the current copy of the unit added as ordinal i.
func (tb *TestBattle) Unit(i int) Unit {
	u, _ := tb.E.Unit(tb.IDs[i])
	return u
}

// Send enqueues messages and advances one tick.
func (tb *TestBattle) Send(msgs ...Message) []Message {
	return tb.E.Tick(msgs)
}
