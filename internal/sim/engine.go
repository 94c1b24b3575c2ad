package sim

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TickStage is the engine's position in the per-tick state machine.
type TickStage uint8

const (
	StageIdle TickStage = iota
	StageCollecting
	StageApplying
	StageAdvancing
)

// Recorder receives every applied message with its tick number. The replay
// store implements it; tests use an in-memory one.
type Recorder interface {
	Record(tick uint64, applied []Message) error
}

// BehaviorProvider plugs AI or scripting layers into the Advancing phase.
// Implementations read simulation state and return messages; they never
// mutate the store directly. The core depends on this interface only, never
// on a scripting technology.
type BehaviorProvider interface {
	Plan(e *Engine, u Unit) []Message
}

// Engine is the deterministic fixed-timestep simulation core. A single
// logical goroutine advances it; producers feed the message queue from
// anywhere. All mutation happens inside the Applying and Advancing stages
// of Tick.
type Engine struct {
	mu sync.Mutex

	m         *Map
	store     *Store
	vis       *Vision
	cfg       *Tunables
	resolver  *Resolver
	queue     *MessageQueue
	squads    []*Squad
	providers []BehaviorProvider

	rng      *rand.Rand
	rngSeed  int64
	rngDraws uint64

	tick  uint64
	stage TickStage

	log       zerolog.Logger
	battleLog *BattleLog
	recorder  Recorder

	snap atomic.Pointer[Snapshot]
}

// NewEngine creates an engine over a loaded map. All randomness is drawn
// from the seed; identical (map, seed, message streams) produce identical
// state hashes.
func NewEngine(m *Map, cfg Tunables, seed int64, logger zerolog.Logger) *Engine {
	e := &Engine{
		m:        m,
		store:    NewStore(),
		cfg:      &cfg,
		queue:    NewMessageQueue(4096),
		rng:      rand.New(rand.NewSource(seed)), // #nosec G404 -- simulation RNG, determinism is the point
		rngSeed:  seed,
		log:      logger,
		battleLog: NewBattleLog(false),
	}
	e.vis = NewVision(m, e.store, e.cfg)
	e.resolver = NewResolver(e.cfg)
	e.providers = []BehaviorProvider{engageProvider{}}
	return e
}

// SetRecorder attaches an applied-message recorder (e.g. the replay store).
func (e *Engine) SetRecorder(r Recorder) { e.recorder = r }

// AddProvider registers an additional behavior provider.
func (e *Engine) AddProvider(p BehaviorProvider) { e.providers = append(e.providers, p) }

// BattleLog returns the structured event log.
func (e *Engine) BattleLog() *BattleLog { return e.battleLog }

// SetBattleLog replaces the event log (headless runs use a verbose one).
func (e *Engine) SetBattleLog(bl *BattleLog) { e.battleLog = bl }

// CurrentTick returns the tick number the next Tick call will apply.
func (e *Engine) CurrentTick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Phase returns the battle-wide lifecycle value.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Phase()
}

// Units returns a snapshot of all live units.
func (e *Engine) Units() []Unit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Units()
}

// Unit returns a copy of one unit.
func (e *Engine) Unit(id UnitID) (Unit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Get(id)
}

// Visibility answers a read-only visibility query at the current tick.
func (e *Engine) Visibility(observer, target UnitID) (VisLevel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vis.Query(observer, target, e.tick)
}

// Squads returns copies of the squad states.
func (e *Engine) Squads() []SquadState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.squadStatesLocked()
}

// AddSquad registers a squad at scenario load. Squads are created at load
// and only ever dissolved afterwards.
func (e *Engine) AddSquad(sq *Squad) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.squads = append(e.squads, sq)
}

func (e *Engine) squad(id SquadID) *Squad {
	for _, sq := range e.squads {
		if sq.ID == id {
			return sq
		}
	}
	return nil
}

// Enqueue stages an external message for the next tick.
func (e *Engine) Enqueue(msg Message) bool {
	return e.queue.Push(msg)
}

// SubmitOrder resolves a requested action for one unit and stages the
// resulting messages. A resolution failure is returned to the submitter as
// a rejection; nothing is staged.
func (e *Engine) SubmitOrder(id UnitID, act Action) ([]Message, error) {
	e.mu.Lock()
	u, ok := e.store.Get(id)
	tick := e.tick
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unit %d/%d: %w", id.Index, id.Gen, ErrNotFound)
	}
	msgs, err := e.resolver.Resolve(u, act, tick)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if !e.queue.Push(m) {
			return nil, fmt.Errorf("message queue full, order for unit %d dropped", id.Index)
		}
	}
	return msgs, nil
}

// SubmitSquadOrder adapts an action across a squad and stages the result.
func (e *Engine) SubmitSquadOrder(id SquadID, act Action) ([]Message, error) {
	e.mu.Lock()
	msgs, err := e.issueOrderLocked(id, act)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if !e.queue.Push(m) {
			return nil, fmt.Errorf("message queue full, order for squad %d dropped", id)
		}
	}
	return msgs, nil
}

// Step drains the staged queue and advances one tick.
func (e *Engine) Step() []Message {
	return e.Tick(e.queue.Drain())
}

// Run drives the fixed-timestep loop until the stop channel closes. The
// wall clock only schedules ticks; it never leaks into simulation state.
func (e *Engine) Run(stop <-chan struct{}) {
	rate := e.cfg.TickRate
	if rate <= 0 {
		rate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.Step()
		}
	}
}

// Tick applies the input messages in the fixed total order, runs the
// derived systems, and returns every message applied this tick (inputs
// that survived plus engine-derived ones). It is a pure function of the
// store snapshot, the inputs, the tick number, and the seeded RNG state.
func (e *Engine) Tick(inputs []Message) []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickLocked(inputs)
}

func (e *Engine) tickLocked(inputs []Message) []Message {
	e.stage = StageCollecting
	msgs := make([]Message, len(inputs))
	copy(msgs, inputs)
	for i := range msgs {
		msgs[i].Tick = e.tick
		if msgs[i].Seq == 0 {
			msgs[i].Seq = e.queue.NextSeq()
		}
	}
	orderMessages(msgs)
	msgs = dropSuperseded(msgs)

	e.stage = StageApplying
	applied := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if err := e.dispatch(m); err != nil {
			e.dropMessage(m, err)
			continue
		}
		applied = append(applied, m)
	}

	e.stage = StageAdvancing
	applied = append(applied, e.advance()...)

	if e.recorder != nil {
		if err := e.recorder.Record(e.tick, applied); err != nil {
			e.log.Error().Err(err).Uint64("tick", e.tick).Msg("recording applied messages failed")
		}
	}

	e.tick++
	e.snap.Store(e.snapshotLocked())
	e.stage = StageIdle
	return applied
}

// orderMessages sorts into the fixed total order: priority class first,
// insertion sequence second. The sort is stable so equal keys keep their
// arrival order.
func orderMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		pi, pj := msgs[i].Kind.Priority(), msgs[j].Kind.Priority()
		if pi != pj {
			return pi < pj
		}
		return msgs[i].Seq < msgs[j].Seq
	})
}

// dropSuperseded keeps only the last SetBehavior per unit within the tick:
// a newer order supersedes an older one without explicit cancellation.
func dropSuperseded(msgs []Message) []Message {
	last := make(map[UnitID]int)
	for i, m := range msgs {
		if m.Kind == MsgSetBehavior {
			last[m.Unit] = i
		}
	}
	if len(last) == 0 {
		return msgs
	}
	out := msgs[:0]
	for i, m := range msgs {
		if m.Kind == MsgSetBehavior && last[m.Unit] != i {
			continue
		}
		out = append(out, m)
	}
	return out
}

// dispatch routes one message to its owner: store, map, config, or squads.
func (e *Engine) dispatch(m Message) error {
	switch m.Kind {
	case MsgChangeTerrain:
		changed, err := e.m.ApplyDamage(m.Cell, int(m.Amount))
		if err != nil {
			return err
		}
		if changed {
			// Terrain mutation invalidates every cached ray through the cell,
			// synchronously, before any later message can query stale results.
			e.vis.InvalidateCell(m.Cell)
			e.battleLog.Add(m.Tick, "--", "terrain", "destroyed",
				fmt.Sprintf("(%d,%d)", m.Cell.Col, m.Cell.Row), 0)
		}
		return nil

	case MsgChangeConfig:
		return e.cfg.Set(m.ConfigKey, m.ConfigValue)

	case MsgLeaderReassigned:
		sq := e.squad(m.Squad)
		if sq == nil {
			return fmt.Errorf("squad %d: %w", m.Squad, ErrSquadNotFound)
		}
		sq.Leader = m.Unit
		e.battleLog.Add(m.Tick, "--", "squad", "leader_reassigned",
			fmt.Sprintf("squad %d -> unit %d", m.Squad, m.Unit.Index), 0)
		return nil

	case MsgSquadDissolved:
		sq := e.squad(m.Squad)
		if sq == nil {
			return fmt.Errorf("squad %d: %w", m.Squad, ErrSquadNotFound)
		}
		sq.dissolved = true
		sq.Members = nil
		e.battleLog.Add(m.Tick, "--", "squad", "dissolved", fmt.Sprintf("squad %d", m.Squad), 0)
		return nil

	case MsgDespawnUnit:
		if err := e.store.Apply(m, e.tick); err != nil {
			return err
		}
		e.vis.InvalidateUnit(m.Unit)
		return nil

	case MsgSetBehavior:
		old, _ := e.store.Get(m.Unit)
		if err := e.store.Apply(m, e.tick); err != nil {
			return err
		}
		e.battleLog.Add(m.Tick, unitLabel(old), "behavior", "change",
			fmt.Sprintf("%s -> %s", old.Behavior.Kind, m.Behavior.Kind), 0)
		return nil

	case MsgSetPhase:
		if err := e.store.Apply(m, e.tick); err != nil {
			return err
		}
		e.battleLog.Add(m.Tick, "--", "phase", "change", m.Phase.Kind.String(), 0)
		return nil

	case MsgApplyDamage:
		before, _ := e.store.Get(m.Unit)
		if err := e.store.Apply(m, e.tick); err != nil {
			return err
		}
		if after, ok := e.store.Get(m.Unit); ok && before.Alive() && !after.Alive() {
			e.battleLog.Add(m.Tick, unitLabel(before), "combat", "kill", "", 0)
		}
		return nil

	default:
		return e.store.Apply(m, e.tick)
	}
}

// dropMessage logs a dropped message. Stale references and invariant
// violations are isolated per message; the tick always continues.
func (e *Engine) dropMessage(m Message, err error) {
	e.log.Debug().
		Uint64("tick", e.tick).
		Str("kind", m.Kind.String()).
		Uint32("unit", m.Unit.Index).
		Err(err).
		Msg("message dropped")
	e.battleLog.Add(e.tick, "--", "drop", m.Kind.String(), err.Error(), 0)
}

// emit applies an engine-derived message immediately and collects it into
// the applied list. Derived messages are marked Internal so replay knows to
// re-derive rather than re-apply them.
func (e *Engine) emit(derived *[]Message, m Message) {
	m.Internal = true
	m.Tick = e.tick
	m.Seq = e.queue.NextSeq()
	if err := e.dispatch(m); err != nil {
		e.dropMessage(m, err)
		return
	}
	*derived = append(*derived, m)
}

// advance runs the derived systems for the tick: gesture completion,
// movement, despawn, providers, squad upkeep, and phase end detection.
// Everything iterates in slot/registration order so two runs with the same
// inputs derive the same messages.
func (e *Engine) advance() []Message {
	var derived []Message

	for _, u := range e.store.Units() {
		if !u.Alive() {
			if e.tick >= u.DiedTick+e.cfg.DespawnDelayTicks {
				e.emit(&derived, DespawnMessage(u.ID))
			}
			continue
		}

		if u.Gesture.Kind != GestureIdle && u.Gesture.Completed(e.tick) {
			e.completeGesture(&derived, u)
			// Refresh the copy; completion may have changed gesture and
			// loaded state.
			if fresh, ok := e.store.Get(u.ID); ok {
				u = fresh
			} else {
				continue
			}
		}

		if u.Behavior.Kind == BehaviorMoveTo {
			e.advanceMovement(&derived, u)
		}
	}

	for _, p := range e.providers {
		for _, u := range e.store.Units() {
			if !u.Alive() {
				continue
			}
			for _, m := range p.Plan(e, u) {
				e.emit(&derived, m)
			}
		}
	}

	for _, sq := range e.squads {
		if sq.dissolved {
			continue
		}
		sq.pruneStale(e.store)
		if len(sq.Members) == 0 {
			e.emit(&derived, Message{Kind: MsgSquadDissolved, Squad: sq.ID})
			continue
		}
		if !sq.leaderAlive(e.store) {
			if next := sq.nextLeader(e.store); !next.IsZero() && next != sq.Leader {
				e.emit(&derived, Message{Kind: MsgLeaderReassigned, Squad: sq.ID, Unit: next})
			}
		}
		sq.recomputeCohesion(e.store, e.cfg)
	}

	if e.store.Phase().Kind == PhaseBattle {
		red := e.store.AliveCount(SideRed)
		blue := e.store.AliveCount(SideBlue)
		if red == 0 || blue == 0 {
			end := Phase{Kind: PhaseEnded, Reason: "side eliminated"}
			switch {
			case red == 0 && blue == 0:
				end.Reason = "mutual destruction"
			case red == 0:
				end.Winner = SideBlue
			default:
				end.Winner = SideRed
			}
			e.emit(&derived, SetPhaseMessage(end))
		}
	}

	return derived
}

// completeGesture emits the follow-up transition for a finished gesture.
// A completed gesture must never sit in place past this tick.
func (e *Engine) completeGesture(derived *[]Message, u Unit) {
	switch u.Gesture.Kind {
	case GestureReloading:
		e.emit(derived, Message{Kind: MsgSetLoaded, Unit: u.ID, Loaded: true})
		e.emit(derived, SetGestureMessage(u.ID, IdleGesture()))

	case GestureAiming:
		if u.Behavior.Kind == BehaviorEngage && u.Loaded {
			spec := u.Kind.Spec()
			e.emit(derived, SetGestureMessage(u.ID, Gesture{Kind: GestureFiring, EndTick: e.tick + spec.FireTicks}))
		} else {
			e.emit(derived, SetGestureMessage(u.ID, IdleGesture()))
		}

	case GestureFiring:
		e.resolveShot(derived, u)
		e.emit(derived, Message{Kind: MsgSetLoaded, Unit: u.ID, Loaded: false})
		e.emit(derived, SetGestureMessage(u.ID, IdleGesture()))
	}
	e.battleLog.AddVerbose(e.tick, unitLabel(u), "gesture", "complete", u.Gesture.Kind.String(), 0)
}

// resolveShot rolls the outcome of a completed firing gesture against the
// engaged target, honouring cover, stance, and partial visibility.
func (e *Engine) resolveShot(derived *[]Message, u Unit) {
	if u.Behavior.Kind != BehaviorEngage || !u.Caps.Has(CapCanFire) {
		return
	}
	tgt, ok := e.store.Get(u.Behavior.Target)
	if !ok || !tgt.Alive() {
		return
	}
	spec := u.Kind.Spec()
	if u.Pos.DistanceTo(tgt.Pos) > spec.Range {
		return
	}
	level, err := e.vis.Query(u.ID, tgt.ID, e.tick)
	if err != nil || level == VisHidden {
		return
	}

	chance := e.cfg.BaseHitChance
	if cell, cerr := e.m.CellAt(tgt.Pos); cerr == nil {
		chance *= 1 - cell.Cover(tgt.Stance)
	}
	if level == VisPartial {
		chance *= 0.5
	}
	if e.randFloat() < chance {
		e.emit(derived, ApplyDamageMessage(tgt.ID, spec.Damage))
		e.battleLog.Add(e.tick, unitLabel(u), "combat", "hit", unitLabel(tgt), spec.Damage)
	} else {
		e.battleLog.AddVerbose(e.tick, unitLabel(u), "combat", "miss", unitLabel(tgt), 0)
	}
}

// advanceMovement walks a MoveTo unit along its waypoints for one tick.
// Consumed waypoints and the new position travel as messages like every
// other mutation.
func (e *Engine) advanceMovement(derived *[]Message, u Unit) {
	if !u.Caps.Has(CapCanMove) {
		return
	}
	cell, err := e.m.CellAt(u.Pos)
	if err != nil {
		return
	}
	speed := u.Speed(cell)
	if speed <= 0 {
		return
	}

	pos := u.Pos
	path := u.Behavior.Path
	remaining := speed
	for remaining > 0 && len(path) > 0 {
		wp := path[0]
		d := pos.DistanceTo(wp)
		if d <= remaining {
			pos = wp
			remaining -= d
			path = path[1:]
		} else {
			pos.X += (wp.X - pos.X) / d * remaining
			pos.Y += (wp.Y - pos.Y) / d * remaining
			remaining = 0
		}
	}

	if next, cerr := e.m.CellAt(pos); cerr != nil || !next.Passable() {
		// Blocked: hold position and drop to idle rather than clip through.
		e.battleLog.Add(e.tick, unitLabel(u), "move", "blocked",
			fmt.Sprintf("(%.1f,%.1f)", pos.X, pos.Y), 0)
		e.emit(derived, SetBehaviorMessage(u.ID, IdleBehavior(u.Stance)))
		return
	}

	if pos != u.Pos {
		e.emit(derived, Message{Kind: MsgSetFacing, Unit: u.ID, Facing: u.Pos.HeadingTo(pos)})
		e.emit(derived, Message{Kind: MsgUnitMoved, Unit: u.ID, Pos: pos})
		e.battleLog.AddVerbose(e.tick, unitLabel(u), "move", "position",
			fmt.Sprintf("(%.1f,%.1f)", pos.X, pos.Y), 0)
	}

	if len(path) == 0 {
		e.emit(derived, SetBehaviorMessage(u.ID, IdleBehavior(u.Stance)))
	} else if len(path) != len(u.Behavior.Path) {
		e.emit(derived, SetBehaviorMessage(u.ID, Behavior{Kind: BehaviorMoveTo, Path: path}))
	}
}

// randFloat draws from the simulation RNG, counting draws so a snapshot can
// restore the generator to the same point.
func (e *Engine) randFloat() float64 {
	e.rngDraws++
	return e.rng.Float64()
}

// engageProvider is the built-in behavior provider driving the
// reload-aim-fire cycle for units with an EngageTarget behavior.
type engageProvider struct{}

func (engageProvider) Plan(e *Engine, u Unit) []Message {
	if u.Behavior.Kind != BehaviorEngage || u.Gesture.Kind != GestureIdle {
		return nil
	}
	if !u.Caps.Has(CapCanFire) {
		return nil
	}
	tgt, ok := e.store.Get(u.Behavior.Target)
	if !ok || !tgt.Alive() {
		// Target gone: stand down.
		return []Message{SetBehaviorMessage(u.ID, IdleBehavior(u.Stance))}
	}
	if !u.Loaded {
		spec := u.Kind.Spec()
		return []Message{SetGestureMessage(u.ID, Gesture{Kind: GestureReloading, EndTick: e.tick + spec.ReloadTicks})}
	}
	if u.Pos.DistanceTo(tgt.Pos) > u.Kind.Spec().Range {
		return nil
	}
	level, err := e.vis.Query(u.ID, tgt.ID, e.tick)
	if err != nil || level == VisHidden {
		return nil
	}
	spec := u.Kind.Spec()
	return []Message{SetGestureMessage(u.ID, Gesture{Kind: GestureAiming, EndTick: e.tick + spec.AimTicks})}
}
