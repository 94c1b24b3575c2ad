package sim

import (
	"fmt"
	"strings"
)

// BattleEvent is one recorded simulation event.
type BattleEvent struct {
	Tick     uint64
	Unit     string  // label e.g. "R0", "B3", or "--" for global events
	Category string  // phase, behavior, gesture, squad, vision, drop, order
	Key      string  // event name within the category
	Value    string  // human-readable detail
	Num      float64 // optional numeric value for threshold checks
}

// String formats the event as a fixed-width log line.
//
//	[T=00042] R0   behavior  change          idle -> move-to
func (e BattleEvent) String() string {
	return fmt.Sprintf("[T=%05d] %-4s %-9s %-18s %s",
		e.Tick, e.Unit, e.Category, e.Key, e.Value)
}

// BattleLog collects structured events during a simulation run. It is
// unbounded and machine-readable; tests and the headless report consume it.
type BattleLog struct {
	entries []BattleEvent
	verbose bool
}

// NewBattleLog creates a log. Verbose mode also records per-tick movement
// events, useful when debugging a single run.
func NewBattleLog(verbose bool) *BattleLog {
	return &BattleLog{verbose: verbose}
}

// Add records an event.
func (bl *BattleLog) Add(tick uint64, unit, category, key, value string, num float64) {
	bl.entries = append(bl.entries, BattleEvent{
		Tick:     tick,
		Unit:     unit,
		Category: category,
		Key:      key,
		Value:    value,
		Num:      num,
	})
}

// AddVerbose records an event only when verbose mode is on.
func (bl *BattleLog) AddVerbose(tick uint64, unit, category, key, value string, num float64) {
	if !bl.verbose {
		return
	}
	bl.Add(tick, unit, category, key, value, num)
}

// Entries returns all recorded events.
func (bl *BattleLog) Entries() []BattleEvent { return bl.entries }

// Filter returns events matching category and/or key; empty matches any.
func (bl *BattleLog) Filter(category, key string) []BattleEvent {
	var out []BattleEvent
	for _, e := range bl.entries {
		if category != "" && e.Category != category {
			continue
		}
		if key != "" && e.Key != key {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Count returns how many events match category and key.
func (bl *BattleLog) Count(category, key string) int {
	return len(bl.Filter(category, key))
}

// Has reports whether at least one event matches category, key, and a value
// substring.
func (bl *BattleLog) Has(category, key, valueSubstr string) bool {
	for _, e := range bl.entries {
		if category != "" && e.Category != category {
			continue
		}
		if key != "" && e.Key != key {
			continue
		}
		if valueSubstr != "" && !strings.Contains(e.Value, valueSubstr) {
			continue
		}
		return true
	}
	return false
}

// LastOf returns the most recent event matching category+key.
func (bl *BattleLog) LastOf(category, key string) (BattleEvent, bool) {
	matches := bl.Filter(category, key)
	if len(matches) == 0 {
		return BattleEvent{}, false
	}
	return matches[len(matches)-1], true
}

// Format returns the full log as one string for t.Log output.
func (bl *BattleLog) Format() string {
	var sb strings.Builder
	for _, e := range bl.entries {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// unitLabel renders a short per-unit label like "R3" or "B12".
func unitLabel(u Unit) string {
	prefix := "R"
	if u.Side == SideBlue {
		prefix = "B"
	}
	return fmt.Sprintf("%s%d", prefix, u.ID.Index)
}
