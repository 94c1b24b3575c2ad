package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
)

// Scenario is the JSON description of a battle: map dimensions, terrain
// patches, tunable overrides, and the squads on each side. The schema
// command emits a JSON Schema generated from these structs.
type Scenario struct {
	Name string `json:"name" jsonschema:"required,description=Human-readable scenario name"`
	Seed int64  `json:"seed" jsonschema:"description=Simulation RNG seed; same seed and inputs give the same battle"`

	Cols int `json:"cols" jsonschema:"required,minimum=1,description=Map width in 4m cells"`
	Rows int `json:"rows" jsonschema:"required,minimum=1,description=Map height in 4m cells"`

	Tunables map[string]float64 `json:"tunables,omitempty" jsonschema:"description=Named tunable overrides applied before the first tick"`

	Patches []TerrainPatch  `json:"patches,omitempty"`
	Squads  []ScenarioSquad `json:"squads" jsonschema:"required"`
}

// TerrainPatch paints a rectangle of cells with one terrain and elevation.
type TerrainPatch struct {
	Terrain   string `json:"terrain" jsonschema:"required,example=forest"`
	Col       int    `json:"col"`
	Row       int    `json:"row"`
	Cols      int    `json:"cols" jsonschema:"minimum=1"`
	Rows      int    `json:"rows" jsonschema:"minimum=1"`
	Elevation int16  `json:"elevation,omitempty" jsonschema:"description=Metres above the map datum"`
}

// ScenarioSquad places one squad. The first unit listed is the leader;
// listing order is seniority order for leader succession.
type ScenarioSquad struct {
	ID        SquadID        `json:"id" jsonschema:"required"`
	Side      string         `json:"side" jsonschema:"required,enum=red,enum=blue"`
	Formation string         `json:"formation,omitempty" jsonschema:"enum=line,enum=wedge,enum=column,enum=echelon"`
	Units     []ScenarioUnit `json:"units" jsonschema:"required"`
}

// ScenarioUnit places one unit at battle start.
type ScenarioUnit struct {
	Kind   string  `json:"kind" jsonschema:"required,enum=rifleman,enum=machine-gunner,enum=anti-tank,enum=crew"`
	X      float64 `json:"x" jsonschema:"required"`
	Y      float64 `json:"y" jsonschema:"required"`
	Facing float64 `json:"facing,omitempty" jsonschema:"description=Radians, 0 = east"`
	Stance string  `json:"stance,omitempty" jsonschema:"enum=standing,enum=crouching,enum=prone"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var sc Scenario
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks the parts JSON decoding cannot: dimensions, terrain and
// formation names, and unit placement bounds.
func (sc *Scenario) Validate() error {
	if sc.Cols <= 0 || sc.Rows <= 0 {
		return fmt.Errorf("map dimensions %dx%d invalid", sc.Cols, sc.Rows)
	}
	for _, p := range sc.Patches {
		if _, err := ParseTerrain(p.Terrain); err != nil {
			return err
		}
	}
	if len(sc.Squads) == 0 {
		return fmt.Errorf("no squads defined")
	}
	w := float64(sc.Cols) * cellSize
	h := float64(sc.Rows) * cellSize
	for _, sq := range sc.Squads {
		if len(sq.Units) == 0 {
			return fmt.Errorf("squad %d has no units", sq.ID)
		}
		if sq.Formation != "" {
			if _, err := ParseFormation(sq.Formation); err != nil {
				return err
			}
		}
		for i, u := range sq.Units {
			if u.X < 0 || u.X >= w || u.Y < 0 || u.Y >= h {
				return fmt.Errorf("squad %d unit %d at (%.1f,%.1f) outside %gx%gm map",
					sq.ID, i, u.X, u.Y, w, h)
			}
		}
	}
	return nil
}

// BuildMap materialises the map with every patch applied.
func (sc *Scenario) BuildMap() (*Map, error) {
	m := NewMap(sc.Cols, sc.Rows)
	for _, p := range sc.Patches {
		t, err := ParseTerrain(p.Terrain)
		if err != nil {
			return nil, err
		}
		for r := p.Row; r < p.Row+p.Rows; r++ {
			for c := p.Col; c < p.Col+p.Cols; c++ {
				ci := CellIndex{Col: c, Row: r}
				if err := m.SetTerrain(ci, t); err != nil {
					return nil, fmt.Errorf("patch at (%d,%d): %w", c, r, err)
				}
				if p.Elevation != 0 {
					if err := m.SetElevation(ci, p.Elevation); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return m, nil
}

// BuildEngine constructs a battle-ready engine: map built, tunables
// overridden, units spawned in listing order, squads registered with the
// first listed unit as leader, and the phase advanced to Battle.
func (sc *Scenario) BuildEngine(logger zerolog.Logger) (*Engine, error) {
	m, err := sc.BuildMap()
	if err != nil {
		return nil, err
	}

	cfg := DefaultTunables()
	for _, k := range sortedKeys(sc.Tunables) {
		if err := cfg.Set(k, sc.Tunables[k]); err != nil {
			return nil, err
		}
	}

	e := NewEngine(m, cfg, sc.Seed, logger)

	var spawns []Message
	for _, sq := range sc.Squads {
		side := ParseSide(sq.Side)
		for _, u := range sq.Units {
			msg := SpawnUnitMessage(side, ParseKind(u.Kind), Position{X: u.X, Y: u.Y}, ParseStance(u.Stance), sq.ID)
			msg.Facing = u.Facing
			spawns = append(spawns, msg)
		}
	}
	e.Tick(spawns)

	// Spawn order equals slot order on a fresh store, so members can be
	// assigned back to squads by walking the same listing order.
	units := e.Units()
	idx := 0
	for _, sq := range sc.Squads {
		formation := FormationLine
		if sq.Formation != "" {
			formation, _ = ParseFormation(sq.Formation)
		}
		squad := &Squad{
			ID:        sq.ID,
			Side:      ParseSide(sq.Side),
			Formation: formation,
		}
		for range sq.Units {
			squad.Members = append(squad.Members, units[idx].ID)
			idx++
		}
		squad.Leader = squad.Members[0]
		e.AddSquad(squad)
	}

	e.Tick([]Message{SetPhaseMessage(Phase{Kind: PhaseBattle})})
	return e, nil
}

// sortedKeys fixes the iteration order of the tunable override map so two
// loads of the same scenario configure identically.
func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
