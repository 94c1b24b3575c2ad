package sim

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrDeterminismBreach means a replayed session diverged from the recorded
// state hash. The session is unrecoverable; callers must not resume from a
// breached replay.
var ErrDeterminismBreach = errors.New("determinism breach")

// RecordedTick is one tick's applied messages as captured by a Recorder.
type RecordedTick struct {
	Tick     uint64    `json:"tick"`
	Messages []Message `json:"messages"`
}

// LogRecorder keeps applied messages in memory. The headless runner and
// tests use it; durable recording goes through the replay store.
type LogRecorder struct {
	Ticks []RecordedTick
}

func (r *LogRecorder) Record(tick uint64, applied []Message) error {
	msgs := make([]Message, len(applied))
	copy(msgs, applied)
	r.Ticks = append(r.Ticks, RecordedTick{Tick: tick, Messages: msgs})
	return nil
}

// External filters a recorded tick down to the messages replay must feed
// back in. Internal messages were derived by the engine and will be derived
// again.
func (rt RecordedTick) External() []Message {
	var out []Message
	for _, m := range rt.Messages {
		if !m.Internal {
			out = append(out, m)
		}
	}
	return out
}

// Replay rebuilds an engine from the snapshot, feeds every recorded tick's
// external messages at its original tick number, advances input-free to
// finalTick, and verifies the final state hash. The trailing advance matters
// because the tick counter is hashed: a session whose last ticks applied no
// messages still moved the clock. A mismatch returns ErrDeterminismBreach.
func Replay(snap *Snapshot, ticks []RecordedTick, finalTick uint64, wantHash uint64, logger zerolog.Logger) (*Engine, error) {
	e := RestoreEngine(snap, logger)
	for _, rt := range ticks {
		if rt.Tick < snap.Tick {
			continue
		}
		for e.CurrentTick() < rt.Tick {
			e.Tick(nil)
		}
		e.Tick(rt.External())
	}
	for e.CurrentTick() < finalTick {
		e.Tick(nil)
	}
	if got := e.StateHash(); got != wantHash {
		return e, fmt.Errorf("state hash %016x, recorded %016x: %w", got, wantHash, ErrDeterminismBreach)
	}
	return e, nil
}
