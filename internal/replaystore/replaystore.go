package replaystore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"skirmish/engine/internal/sim"
)

// Session is one recorded battle.
type Session struct {
	gorm.Model
	Name      string `json:"name" gorm:"size:200"`
	Seed      int64  `json:"seed"`
	FinalTick uint64 `json:"finalTick"`
	FinalHash string `json:"finalHash" gorm:"size:16"` // hex; empty until finished
}

// RecordedMessage is one applied message row. Internal rows are kept for
// audit but excluded when feeding a replay.
type RecordedMessage struct {
	ID        uint   `gorm:"primarykey"`
	SessionID uint   `gorm:"index:idx_msg_session_tick"`
	Tick      uint64 `gorm:"index:idx_msg_session_tick"`
	Seq       uint64
	Internal  bool
	Payload   []byte // JSON-encoded sim.Message
}

// Keyframe is a periodic full-state snapshot enabling replay from the
// nearest frame instead of tick zero.
type Keyframe struct {
	ID        uint   `gorm:"primarykey"`
	SessionID uint   `gorm:"index:idx_key_session_tick"`
	Tick      uint64 `gorm:"index:idx_key_session_tick"`
	StateHash string `gorm:"size:16"`
	Snapshot  []byte // JSON-encoded sim.Snapshot
}

var databaseModels = []interface{}{
	&Session{},
	&RecordedMessage{},
	&Keyframe{},
}

// Store is the durable replay backend over SQLite.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open opens (or creates) the replay database and migrates the schema.
// Pass ":memory:" for an ephemeral store.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("opening replay db %s: %w", path, err)
	}
	if err := db.AutoMigrate(databaseModels...); err != nil {
		return nil, fmt.Errorf("migrating replay schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Sessions lists every recorded session, newest first.
func (s *Store) Sessions() ([]Session, error) {
	var out []Session
	if err := s.db.Order("id desc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SessionRecorder streams one engine's applied messages into the store.
// It implements sim.Recorder.
type SessionRecorder struct {
	store    *Store
	eng      *sim.Engine
	session  Session
	interval uint64
	lastKey  uint64
}

// NewRecorder opens a session and stores the engine's current state as the
// first keyframe. interval is the tick spacing between later keyframes;
// zero disables periodic frames.
func (s *Store) NewRecorder(eng *sim.Engine, name string, interval uint64) (*SessionRecorder, error) {
	snap := eng.Snapshot()
	sess := Session{Name: name, Seed: snap.Seed}
	if err := s.db.Create(&sess).Error; err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	r := &SessionRecorder{store: s, eng: eng, session: sess, interval: interval, lastKey: snap.Tick}
	if err := r.writeKeyframe(snap); err != nil {
		return nil, err
	}
	s.log.Info().Uint("session", sess.ID).Str("name", name).Msg("replay session opened")
	return r, nil
}

// SessionID returns the database id of the open session.
func (r *SessionRecorder) SessionID() uint { return r.session.ID }

// Record persists one tick's applied messages and, on the keyframe
// interval, the pre-tick snapshot the engine last published.
func (r *SessionRecorder) Record(tick uint64, applied []sim.Message) error {
	if len(applied) > 0 {
		rows := make([]RecordedMessage, 0, len(applied))
		for _, m := range applied {
			payload, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("encoding message: %w", err)
			}
			rows = append(rows, RecordedMessage{
				SessionID: r.session.ID,
				Tick:      tick,
				Seq:       m.Seq,
				Internal:  m.Internal,
				Payload:   payload,
			})
		}
		if err := r.store.db.Create(&rows).Error; err != nil {
			return fmt.Errorf("persisting %d messages: %w", len(rows), err)
		}
	}

	if r.interval > 0 && tick >= r.lastKey+r.interval {
		// Snapshot() here is the published end-of-previous-tick state, the
		// right base for replaying from this tick onward.
		snap := r.eng.Snapshot()
		if err := r.writeKeyframe(snap); err != nil {
			return err
		}
		r.lastKey = snap.Tick
	}
	return nil
}

// Finish seals the session with the engine's final state hash and tick.
// Quiescent ticks persist no message rows, so the tick count must be sealed
// too; the hash covers the tick counter and verification has to advance the
// replayed engine all the way.
func (r *SessionRecorder) Finish() error {
	tick := r.eng.CurrentTick()
	hash := hashHex(r.eng.StateHash())
	err := r.store.db.Model(&Session{}).Where("id = ?", r.session.ID).
		Updates(map[string]interface{}{"final_tick": tick, "final_hash": hash}).Error
	if err != nil {
		return fmt.Errorf("sealing session %d: %w", r.session.ID, err)
	}
	r.store.log.Info().Uint("session", r.session.ID).Uint64("tick", tick).Str("hash", hash).Msg("replay session sealed")
	return nil
}

func (r *SessionRecorder) writeKeyframe(snap *sim.Snapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding keyframe: %w", err)
	}
	frame := Keyframe{
		SessionID: r.session.ID,
		Tick:      snap.Tick,
		StateHash: hashHex(snap.Hash),
		Snapshot:  blob,
	}
	if err := r.store.db.Create(&frame).Error; err != nil {
		return fmt.Errorf("persisting keyframe at tick %d: %w", snap.Tick, err)
	}
	return nil
}

// LoadSession returns the earliest keyframe and the full message record of
// a session, ready to hand to sim.Replay.
func (s *Store) LoadSession(sessionID uint) (*sim.Snapshot, []sim.RecordedTick, error) {
	var frame Keyframe
	err := s.db.Where("session_id = ?", sessionID).Order("tick asc").First(&frame).Error
	if err != nil {
		return nil, nil, fmt.Errorf("loading keyframe for session %d: %w", sessionID, err)
	}
	var snap sim.Snapshot
	if err := json.Unmarshal(frame.Snapshot, &snap); err != nil {
		return nil, nil, fmt.Errorf("decoding keyframe: %w", err)
	}

	var rows []RecordedMessage
	err = s.db.Where("session_id = ?", sessionID).Order("tick asc, seq asc").Find(&rows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("loading messages for session %d: %w", sessionID, err)
	}

	var ticks []sim.RecordedTick
	for _, row := range rows {
		var m sim.Message
		if err := json.Unmarshal(row.Payload, &m); err != nil {
			return nil, nil, fmt.Errorf("decoding message %d: %w", row.ID, err)
		}
		if n := len(ticks); n > 0 && ticks[n-1].Tick == row.Tick {
			ticks[n-1].Messages = append(ticks[n-1].Messages, m)
		} else {
			ticks = append(ticks, sim.RecordedTick{Tick: row.Tick, Messages: []sim.Message{m}})
		}
	}
	return &snap, ticks, nil
}

// Verify replays a sealed session against its recorded final hash.
func (s *Store) Verify(sessionID uint, logger zerolog.Logger) error {
	var sess Session
	if err := s.db.First(&sess, sessionID).Error; err != nil {
		return fmt.Errorf("loading session %d: %w", sessionID, err)
	}
	if sess.FinalHash == "" {
		return fmt.Errorf("session %d was never sealed", sessionID)
	}
	want, err := strconv.ParseUint(sess.FinalHash, 16, 64)
	if err != nil {
		return fmt.Errorf("corrupt final hash %q: %w", sess.FinalHash, err)
	}

	snap, ticks, err := s.LoadSession(sessionID)
	if err != nil {
		return err
	}
	_, err = sim.Replay(snap, ticks, sess.FinalTick, want, logger)
	return err
}

func hashHex(h uint64) string {
	return fmt.Sprintf("%016x", h)
}
