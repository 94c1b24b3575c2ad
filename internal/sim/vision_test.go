package sim

import (
	"errors"
	"testing"
)

// visionFixture spawns an observer and a target on a map and returns the
// pieces a visibility test needs.
func visionFixture(t *testing.T, paint func(*Map)) (*Vision, *Store, *Tunables, UnitID, UnitID) {
	t.Helper()
	m := NewMap(32, 32)
	if paint != nil {
		paint(m)
	}
	store := NewStore()
	cfg := DefaultTunables()
	vis := NewVision(m, store, &cfg)

	mustApply := func(msg Message) {
		if err := store.Apply(msg, 0); err != nil {
			t.Fatal(err)
		}
	}
	mustApply(SpawnUnitMessage(SideRed, KindRifleman, Position{X: 6, Y: 6}, StanceStanding, 0))
	mustApply(SpawnUnitMessage(SideBlue, KindRifleman, Position{X: 100, Y: 6}, StanceStanding, 0))

	units := store.Units()
	return vis, store, &cfg, units[0].ID, units[1].ID
}

func wallColumn(col, fromRow, toRow int) func(*Map) {
	return func(m *Map) {
		for r := fromRow; r <= toRow; r++ {
			if err := m.SetTerrain(CellIndex{Col: col, Row: r}, TerrainWall); err != nil {
				panic(err)
			}
		}
	}
}

func TestVision_OpenGround(t *testing.T) {
	vis, _, _, obs, tgt := visionFixture(t, nil)
	level, err := vis.Query(obs, tgt, 1)
	if err != nil {
		t.Fatal(err)
	}
	if level != VisVisible {
		t.Fatalf("open ground should be fully visible, got %v", level)
	}
}

func TestVision_WallBlocks(t *testing.T) {
	vis, _, _, obs, tgt := visionFixture(t, wallColumn(12, 0, 31))
	level, err := vis.Query(obs, tgt, 1)
	if err != nil {
		t.Fatal(err)
	}
	if level != VisHidden {
		t.Fatalf("wall should hide the target, got %v", level)
	}
}

func TestVision_ForestAccumulates(t *testing.T) {
	// One forest cell (0.25) is partial against the 0.5 threshold; two
	// cross the half mark too, four cross the full threshold.
	paint := func(m *Map) {
		for col := 10; col <= 13; col++ {
			if err := m.SetTerrain(CellIndex{Col: col, Row: 1}, TerrainForest); err != nil {
				panic(err)
			}
		}
	}
	vis, _, _, obs, tgt := visionFixture(t, paint)
	level, err := vis.Query(obs, tgt, 1)
	if err != nil {
		t.Fatal(err)
	}
	if level != VisHidden {
		t.Fatalf("four forest cells should accumulate past the threshold, got %v", level)
	}
}

func TestVision_NearRadiusAlwaysVisible(t *testing.T) {
	// Brush directly in front of the observer sits inside the
	// always-visible radius and must not contribute.
	m := NewMap(32, 32)
	for col := 1; col <= 2; col++ {
		if err := m.SetTerrain(CellIndex{Col: col, Row: 1}, TerrainBuilding); err != nil {
			t.Fatal(err)
		}
	}
	store := NewStore()
	cfg := DefaultTunables()
	vis := NewVision(m, store, &cfg)
	if err := store.Apply(SpawnUnitMessage(SideRed, KindRifleman, Position{X: 2, Y: 6}, StanceStanding, 0), 0); err != nil {
		t.Fatal(err)
	}
	if err := store.Apply(SpawnUnitMessage(SideBlue, KindRifleman, Position{X: 14, Y: 6}, StanceStanding, 0), 0); err != nil {
		t.Fatal(err)
	}
	units := store.Units()
	level, err := vis.Query(units[0].ID, units[1].ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if level == VisHidden {
		t.Fatal("target inside the near radius must never be fully hidden")
	}
}

func TestVision_ProneTargetHarderToSpot(t *testing.T) {
	// Two brush cells (0.3 total) hide a prone target (threshold drops to
	// 0.25) but only degrade a standing one.
	paint := func(m *Map) {
		for col := 10; col <= 11; col++ {
			if err := m.SetTerrain(CellIndex{Col: col, Row: 1}, TerrainBrush); err != nil {
				panic(err)
			}
		}
	}
	vis, store, _, obs, tgt := visionFixture(t, paint)

	standing, err := vis.Query(obs, tgt, 1)
	if err != nil {
		t.Fatal(err)
	}
	if standing == VisHidden {
		t.Fatalf("standing target behind two forest cells should not be hidden, got %v", standing)
	}

	if err := store.Apply(SetStanceMessage(tgt, StanceProne), 1); err != nil {
		t.Fatal(err)
	}
	prone, err := vis.Query(obs, tgt, 2)
	if err != nil {
		t.Fatal(err)
	}
	if prone != VisHidden {
		t.Fatalf("prone target behind the same cover should be hidden, got %v", prone)
	}
}

func TestVision_MovingTargetEasierToSpot(t *testing.T) {
	paint := func(m *Map) {
		for col := 10; col <= 11; col++ {
			if err := m.SetTerrain(CellIndex{Col: col, Row: 1}, TerrainForest); err != nil {
				panic(err)
			}
		}
	}
	vis, store, _, obs, tgt := visionFixture(t, paint)

	// Stationary behind two forest cells: accumulated 0.5 meets the 0.5
	// threshold, hidden.
	still, err := vis.Query(obs, tgt, 1)
	if err != nil {
		t.Fatal(err)
	}
	if still != VisHidden {
		t.Fatalf("stationary target should be hidden, got %v", still)
	}

	// Moving raises the threshold to 0.75: the same cover no longer hides.
	if err := store.Apply(SetBehaviorMessage(tgt, Behavior{Kind: BehaviorMoveTo, Path: []Position{{X: 110, Y: 6}}}), 1); err != nil {
		t.Fatal(err)
	}
	level, err := vis.Query(obs, tgt, 2)
	if err != nil {
		t.Fatal(err)
	}
	if level == VisHidden {
		t.Fatalf("moving target should be easier to spot, got %v", level)
	}
}

func TestVision_SelfAndDeadObserver(t *testing.T) {
	vis, store, _, obs, tgt := visionFixture(t, nil)

	if level, err := vis.Query(obs, obs, 1); err != nil || level != VisVisible {
		t.Fatalf("self query = (%v, %v), want visible", level, err)
	}

	if err := store.Apply(SetBehaviorMessage(obs, DeadBehavior()), 1); err != nil {
		t.Fatal(err)
	}
	if _, err := vis.Query(obs, tgt, 2); !errors.Is(err, ErrInvalidObserver) {
		t.Fatalf("dead observer should error, got %v", err)
	}
}

func TestVision_StaleTargetHiddenNotError(t *testing.T) {
	vis, _, _, obs, _ := visionFixture(t, nil)
	ghost := UnitID{Index: 99, Gen: 7}
	level, err := vis.Query(obs, ghost, 1)
	if err != nil {
		t.Fatalf("unresolvable target must be hidden, not an error: %v", err)
	}
	if level != VisHidden {
		t.Fatalf("got %v, want hidden", level)
	}
}

func TestVision_CacheHitAndTerrainInvalidation(t *testing.T) {
	vis, _, _, obs, tgt := visionFixture(t, wallColumn(12, 0, 31))

	if level, _ := vis.Query(obs, tgt, 5); level != VisHidden {
		t.Fatal("precondition: wall hides target")
	}
	if vis.CacheLen() != 1 {
		t.Fatalf("expected one cached entry, got %d", vis.CacheLen())
	}

	// Same tick: answered from cache even after the world changes.
	vis.m.cells[1*vis.m.Cols+12] = Cell{Terrain: TerrainOpen}
	if level, _ := vis.Query(obs, tgt, 5); level != VisHidden {
		t.Fatal("same-tick query must come from the cache")
	}

	// Invalidation drops the entry; the next query sees the opened wall.
	vis.InvalidateCell(CellIndex{Col: 12, Row: 1})
	if vis.CacheLen() != 0 {
		t.Fatalf("cache should be empty after invalidation, has %d", vis.CacheLen())
	}
	level, err := vis.Query(obs, tgt, 5)
	if err != nil {
		t.Fatal(err)
	}
	if level == VisHidden {
		t.Fatalf("breached wall should reveal the target, got %v", level)
	}
}
