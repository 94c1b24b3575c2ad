package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"skirmish/engine/internal/sim"
)

type runStats struct {
	runIndex int
	seed     int64

	firstHitTick   int64
	firstKillTick  int64
	battleEndTick  int64
	winner         string
	endReason      string

	hits                int
	kills               int
	behaviorChanges     int
	droppedMessages     int
	leaderReassignments int
	squadsDissolved     int
	blockedMoves        int

	redTotal      int
	blueTotal     int
	redSurvivors  int
	blueSurvivors int

	stateHash     uint64
	rerunHash     uint64
	deterministic bool
}

func main() {
	var runs int
	var ticks int
	var seedBase int64
	var seedStep int64
	var scenarioPath string
	var verbose bool

	flag.IntVar(&runs, "runs", 5, "number of headless battle runs")
	flag.IntVar(&ticks, "ticks", 3600, "ticks per run")
	flag.Int64Var(&seedBase, "seed-base", 42, "base RNG seed for run 1")
	flag.Int64Var(&seedStep, "seed-step", 1, "seed increment between runs")
	flag.StringVar(&scenarioPath, "scenario", "", "scenario JSON file (default: built-in meeting engagement)")
	flag.BoolVar(&verbose, "verbose", false, "record cosmetic events too")
	flag.Parse()

	if runs <= 0 {
		fmt.Println("error: -runs must be > 0")
		return
	}
	if ticks <= 0 {
		fmt.Println("error: -ticks must be > 0")
		return
	}

	sc := builtinScenario()
	if scenarioPath != "" {
		loaded, err := sim.LoadScenario(scenarioPath)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			os.Exit(1)
		}
		sc = loaded
	}

	fmt.Printf("=== Headless Battle Report ===\n")
	fmt.Printf("scenario=%s runs=%d ticks=%d seed_base=%d seed_step=%d\n\n",
		sc.Name, runs, ticks, seedBase, seedStep)

	all := make([]runStats, 0, runs)
	for i := 0; i < runs; i++ {
		seed := seedBase + int64(i)*seedStep
		stats, err := runBattle(i+1, sc, seed, ticks, verbose)
		if err != nil {
			fmt.Printf("error: run %d: %v\n", i+1, err)
			os.Exit(1)
		}
		all = append(all, stats)
		printRun(stats)
	}

	printAggregate(all)
}

// builtinScenario is a symmetric meeting engagement with both squads inside
// mutual weapon range and a clear firing lane between two cover belts, so
// battles resolve from the opening engage orders alone.
func builtinScenario() *sim.Scenario {
	return &sim.Scenario{
		Name: "meeting-engagement",
		Cols: 64,
		Rows: 64,
		Patches: []sim.TerrainPatch{
			{Terrain: "forest", Col: 30, Row: 0, Cols: 2, Rows: 26},
			{Terrain: "brush", Col: 30, Row: 38, Cols: 2, Rows: 26},
		},
		Squads: []sim.ScenarioSquad{
			{
				ID: 1, Side: "red", Formation: "wedge",
				Units: []sim.ScenarioUnit{
					{Kind: "rifleman", X: 60, Y: 120},
					{Kind: "rifleman", X: 60, Y: 128},
					{Kind: "machine-gunner", X: 60, Y: 136},
				},
			},
			{
				ID: 2, Side: "blue", Formation: "wedge",
				Units: []sim.ScenarioUnit{
					{Kind: "rifleman", X: 180, Y: 120, Facing: 3.14159},
					{Kind: "rifleman", X: 180, Y: 128, Facing: 3.14159},
					{Kind: "machine-gunner", X: 180, Y: 136, Facing: 3.14159},
				},
			},
		},
	}
}

// runBattle executes one seed twice and cross-checks the final state hashes,
// so every report doubles as a determinism audit.
func runBattle(runIndex int, sc *sim.Scenario, seed int64, ticks int, verbose bool) (runStats, error) {
	hash, log, eng, err := runOnce(sc, seed, ticks, verbose)
	if err != nil {
		return runStats{}, err
	}
	rerun, _, _, err := runOnce(sc, seed, ticks, verbose)
	if err != nil {
		return runStats{}, err
	}

	stats := runStats{
		runIndex:      runIndex,
		seed:          seed,
		stateHash:     hash,
		rerunHash:     rerun,
		deterministic: hash == rerun,

		firstHitTick:  firstTick(log, "combat", "hit", ""),
		firstKillTick: firstTick(log, "combat", "kill", ""),
		battleEndTick: firstTick(log, "phase", "change", "ended"),

		hits:                log.Count("combat", "hit"),
		kills:               log.Count("combat", "kill"),
		behaviorChanges:     log.Count("behavior", "change"),
		droppedMessages:     log.Count("drop", ""),
		leaderReassignments: log.Count("squad", "leader_reassigned"),
		squadsDissolved:     log.Count("squad", "dissolved"),
		blockedMoves:        log.Count("move", "blocked"),
	}

	// Despawned casualties no longer appear in the unit listing, so totals
	// come from the scenario roster rather than the final state.
	stats.redTotal, stats.blueTotal = rosterTotals(sc)
	for _, u := range eng.Units() {
		if !u.Alive() {
			continue
		}
		switch u.Side {
		case sim.SideRed:
			stats.redSurvivors++
		case sim.SideBlue:
			stats.blueSurvivors++
		}
	}

	phase := eng.Phase()
	if phase.Kind == sim.PhaseEnded {
		stats.winner = phase.Winner.String()
		stats.endReason = phase.Reason
	} else {
		stats.winner = "none"
		stats.endReason = "tick budget exhausted"
	}
	return stats, nil
}

func rosterTotals(sc *sim.Scenario) (red, blue int) {
	for _, sq := range sc.Squads {
		if sq.Side == "red" {
			red += len(sq.Units)
		} else {
			blue += len(sq.Units)
		}
	}
	return red, blue
}

func runOnce(sc *sim.Scenario, seed int64, ticks int, verbose bool) (uint64, *sim.BattleLog, *sim.Engine, error) {
	scc := *sc
	scc.Seed = seed
	eng, err := scc.BuildEngine(zerolog.Nop())
	if err != nil {
		return 0, nil, nil, err
	}
	log := sim.NewBattleLog(verbose)
	eng.SetBattleLog(log)

	// A minimal commander drives the battle: before every tick, each idle
	// unit is ordered to engage the nearest living enemy. Unit listing order
	// is deterministic, so identical seeds issue identical orders.
	for i := 0; i < ticks; i++ {
		if err := issueEngagements(eng); err != nil {
			return 0, nil, nil, err
		}
		eng.Step()
		if eng.Phase().Kind == sim.PhaseEnded {
			break
		}
	}
	return eng.StateHash(), log, eng, nil
}

func issueEngagements(eng *sim.Engine) error {
	units := eng.Units()
	for _, u := range units {
		if !u.Alive() || u.Behavior.Kind != sim.BehaviorIdle {
			continue
		}
		target := nearestEnemy(units, u)
		if target.IsZero() {
			continue
		}
		if _, err := eng.SubmitOrder(u.ID, sim.Action{Kind: sim.ActionEngage, Target: target}); err != nil {
			return fmt.Errorf("engage order for unit %d: %w", u.ID.Index, err)
		}
	}
	return nil
}

func nearestEnemy(units []sim.Unit, u sim.Unit) sim.UnitID {
	best := sim.NoUnit
	bestDist := 0.0
	for _, o := range units {
		if o.Side == u.Side || !o.Alive() {
			continue
		}
		d := u.Pos.DistanceTo(o.Pos)
		if best.IsZero() || d < bestDist {
			best = o.ID
			bestDist = d
		}
	}
	return best
}

// firstTick returns the tick of the earliest event matching category, key,
// and an optional value substring, or -1 if none matched.
func firstTick(log *sim.BattleLog, category, key, valueSubstr string) int64 {
	for _, e := range log.Entries() {
		if category != "" && e.Category != category {
			continue
		}
		if key != "" && e.Key != key {
			continue
		}
		if valueSubstr != "" && !strings.Contains(e.Value, valueSubstr) {
			continue
		}
		return int64(e.Tick)
	}
	return -1
}

// classifyOutcome buckets a finished run for the aggregate table.
func classifyOutcome(rs runStats) string {
	switch rs.winner {
	case "red", "blue":
		return rs.winner
	}
	if rs.redSurvivors > 0 && rs.blueSurvivors > 0 && rs.hits == 0 {
		return "no-contact"
	}
	return "unresolved"
}

func printRun(rs runStats) {
	fmt.Printf("--- Run %d (seed=%d) ---\n", rs.runIndex, rs.seed)
	fmt.Printf("markers: first_hit=%d first_kill=%d battle_end=%d winner=%s reason=%q\n",
		rs.firstHitTick, rs.firstKillTick, rs.battleEndTick, rs.winner, rs.endReason)
	fmt.Printf("events: hits=%d kills=%d behavior_changes=%d drops=%d leader_reassignments=%d squads_dissolved=%d blocked_moves=%d\n",
		rs.hits, rs.kills, rs.behaviorChanges, rs.droppedMessages,
		rs.leaderReassignments, rs.squadsDissolved, rs.blockedMoves)
	fmt.Printf("survivors: red=%d/%d blue=%d/%d\n",
		rs.redSurvivors, rs.redTotal, rs.blueSurvivors, rs.blueTotal)
	fmt.Printf("state_hash=%016x rerun_match=%v\n\n", rs.stateHash, rs.deterministic)
}

func printAggregate(all []runStats) {
	fmt.Printf("=== Aggregate (%d runs) ===\n", len(all))
	outcomes := map[string]int{}
	totalHits, totalKills := 0, 0
	nondeterministic := 0
	for _, rs := range all {
		outcomes[classifyOutcome(rs)]++
		totalHits += rs.hits
		totalKills += rs.kills
		if !rs.deterministic {
			nondeterministic++
		}
	}
	fmt.Printf("outcomes: red=%d blue=%d unresolved=%d no_contact=%d\n",
		outcomes["red"], outcomes["blue"], outcomes["unresolved"], outcomes["no-contact"])
	fmt.Printf("avg_hits=%.1f avg_kills=%.1f\n",
		float64(totalHits)/float64(len(all)), float64(totalKills)/float64(len(all)))
	if nondeterministic > 0 {
		fmt.Printf("WARNING: %d run(s) failed the same-seed rerun check\n", nondeterministic)
	} else {
		fmt.Printf("all runs reproduced identical state hashes on rerun\n")
	}
}
