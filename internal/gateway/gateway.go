package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"skirmish/engine/internal/sim"
)

// Server exposes a running engine over HTTP: REST reads of simulation
// state, and a websocket for order submission and state push. It never
// mutates the engine directly; orders go through the message queue like
// every other input.
type Server struct {
	eng      *sim.Engine
	log      zerolog.Logger
	upgrader websocket.Upgrader

	// pushInterval is how often connected sockets receive a state frame.
	pushInterval time.Duration
}

// NewServer wraps an engine for network access.
func NewServer(eng *sim.Engine, log zerolog.Logger) *Server {
	return &Server{
		eng: eng,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pushInterval: 500 * time.Millisecond,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/phase", s.handlePhase).Methods(http.MethodGet)
	api.HandleFunc("/units", s.handleUnits).Methods(http.MethodGet)
	api.HandleFunc("/units/{index}/{gen}", s.handleUnit).Methods(http.MethodGet)
	api.HandleFunc("/squads", s.handleSquads).Methods(http.MethodGet)
	api.HandleFunc("/visibility", s.handleVisibility).Methods(http.MethodGet)
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.handleOrder).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWS)
	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encoding response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handlePhase(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, struct {
		Tick  uint64    `json:"tick"`
		Phase sim.Phase `json:"phase"`
	}{s.eng.CurrentTick(), s.eng.Phase()})
}

func (s *Server) handleUnits(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.eng.Units())
}

func (s *Server) handleUnit(w http.ResponseWriter, r *http.Request) {
	id, err := unitIDFromVars(mux.Vars(r))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	u, ok := s.eng.Unit(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unit %d/%d not found", id.Index, id.Gen))
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleSquads(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.eng.Squads())
}

// handleVisibility answers /api/visibility?observer=idx:gen&target=idx:gen.
func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	obs, err := parseUnitRef(r.URL.Query().Get("observer"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("observer: %w", err))
		return
	}
	tgt, err := parseUnitRef(r.URL.Query().Get("target"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("target: %w", err))
		return
	}
	level, err := s.eng.Visibility(obs, tgt)
	if err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"level": level.String()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.eng.Snapshot())
}

// OrderRequest is the wire form of a unit or squad order. Exactly one of
// Unit and Squad must be set.
type OrderRequest struct {
	Unit   *sim.UnitID   `json:"unit,omitempty"`
	Squad  sim.SquadID   `json:"squad,omitempty"`
	Action string        `json:"action"`
	Dest   *sim.Position `json:"dest,omitempty"`
	Facing float64       `json:"facing,omitempty"`
	Target *sim.UnitID   `json:"target,omitempty"`
}

// OrderResponse acknowledges an order: either the number of staged
// messages or the rejection reason.
type OrderResponse struct {
	Accepted bool   `json:"accepted"`
	Staged   int    `json:"staged,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (o *OrderRequest) action() (sim.Action, error) {
	kind, err := sim.ParseAction(o.Action)
	if err != nil {
		return sim.Action{}, err
	}
	act := sim.Action{Kind: kind, Facing: o.Facing}
	if o.Dest != nil {
		act.Dest = *o.Dest
	}
	if o.Target != nil {
		act.Target = *o.Target
	}
	return act, nil
}

func (s *Server) submit(req *OrderRequest) OrderResponse {
	act, err := req.action()
	if err != nil {
		return OrderResponse{Error: err.Error()}
	}
	var msgs []sim.Message
	switch {
	case req.Unit != nil:
		msgs, err = s.eng.SubmitOrder(*req.Unit, act)
	case req.Squad != 0:
		msgs, err = s.eng.SubmitSquadOrder(req.Squad, act)
	default:
		err = fmt.Errorf("order names neither unit nor squad")
	}
	if err != nil {
		return OrderResponse{Error: err.Error()}
	}
	return OrderResponse{Accepted: true, Staged: len(msgs)}
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding order: %w", err))
		return
	}
	resp := s.submit(&req)
	status := http.StatusAccepted
	if !resp.Accepted {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, resp)
}

// StateFrame is the periodic push sent to websocket clients.
type StateFrame struct {
	Type   string           `json:"type"`
	Tick   uint64           `json:"tick"`
	Phase  sim.Phase        `json:"phase"`
	Units  []sim.Unit       `json:"units"`
	Squads []sim.SquadState `json:"squads"`
}

// handleWS upgrades to a websocket that accepts OrderRequest frames and
// pushes StateFrame updates until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("websocket client connected")

	var writeMu sync.Mutex
	writeFrame := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.pushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				frame := StateFrame{
					Type:   "state",
					Tick:   s.eng.CurrentTick(),
					Phase:  s.eng.Phase(),
					Units:  s.eng.Units(),
					Squads: s.eng.Squads(),
				}
				if err := writeFrame(frame); err != nil {
					return
				}
			}
		}
	}()
	defer close(done)

	for {
		var req OrderRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
		if err := writeFrame(s.submit(&req)); err != nil {
			return
		}
	}
}

func unitIDFromVars(vars map[string]string) (sim.UnitID, error) {
	idx, err := strconv.ParseUint(vars["index"], 10, 32)
	if err != nil {
		return sim.UnitID{}, fmt.Errorf("bad index %q", vars["index"])
	}
	gen, err := strconv.ParseUint(vars["gen"], 10, 32)
	if err != nil {
		return sim.UnitID{}, fmt.Errorf("bad generation %q", vars["gen"])
	}
	return sim.UnitID{Index: uint32(idx), Gen: uint32(gen)}, nil
}

// parseUnitRef parses "index:gen".
func parseUnitRef(ref string) (sim.UnitID, error) {
	var idx, gen uint32
	if _, err := fmt.Sscanf(ref, "%d:%d", &idx, &gen); err != nil {
		return sim.UnitID{}, fmt.Errorf("bad unit ref %q, want index:gen", ref)
	}
	return sim.UnitID{Index: idx, Gen: gen}, nil
}
