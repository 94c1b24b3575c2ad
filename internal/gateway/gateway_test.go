package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skirmish/engine/internal/sim"
)

func testServer(t *testing.T) (*httptest.Server, *sim.TestBattle) {
	t.Helper()
	tb := sim.NewTestBattle(
		sim.WithGrid(48, 48),
		sim.WithRedRifleman(20, 20),
		sim.WithRedRifleman(24, 20),
		sim.WithBlueRifleman(120, 20),
		sim.WithSquad(sim.SideRed, sim.FormationLine, 0, 1),
	)
	srv := httptest.NewServer(NewServer(tb.E, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv, tb
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestGateway_PhaseAndUnits(t *testing.T) {
	srv, tb := testServer(t)

	var phase struct {
		Tick  uint64    `json:"tick"`
		Phase sim.Phase `json:"phase"`
	}
	code := getJSON(t, srv.URL+"/api/phase", &phase)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, sim.PhaseBattle, phase.Phase.Kind)

	var units []sim.Unit
	code = getJSON(t, srv.URL+"/api/units", &units)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, units, 3)

	var one sim.Unit
	id := tb.IDs[0]
	code = getJSON(t, fmt.Sprintf("%s/api/units/%d/%d", srv.URL, id.Index, id.Gen), &one)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, one.ID)

	var missing map[string]string
	code = getJSON(t, srv.URL+"/api/units/99/1", &missing)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, missing["error"], "not found")
}

func TestGateway_Visibility(t *testing.T) {
	srv, tb := testServer(t)

	obs, tgt := tb.IDs[0], tb.IDs[2]
	var vis map[string]string
	url := fmt.Sprintf("%s/api/visibility?observer=%d:%d&target=%d:%d",
		srv.URL, obs.Index, obs.Gen, tgt.Index, tgt.Gen)
	code := getJSON(t, url, &vis)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "visible", vis["level"])

	var bad map[string]string
	code = getJSON(t, srv.URL+"/api/visibility?observer=junk&target=0:1", &bad)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGateway_OrderAcceptedAndApplied(t *testing.T) {
	srv, tb := testServer(t)

	id := tb.IDs[0]
	body, _ := json.Marshal(OrderRequest{
		Unit:   &id,
		Action: "move-to",
		Dest:   &sim.Position{X: 60, Y: 20},
	})
	resp, err := http.Post(srv.URL+"/api/orders", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var ack OrderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.True(t, ack.Accepted)
	assert.Equal(t, 1, ack.Staged)

	// The staged order lands on the next tick.
	tb.Step(1)
	assert.Equal(t, sim.BehaviorMoveTo, tb.Unit(0).Behavior.Kind)
}

func TestGateway_OrderRejections(t *testing.T) {
	srv, tb := testServer(t)

	post := func(req OrderRequest) (int, OrderResponse) {
		body, _ := json.Marshal(req)
		resp, err := http.Post(srv.URL+"/api/orders", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var ack OrderResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
		return resp.StatusCode, ack
	}

	// Unknown action verb.
	id := tb.IDs[0]
	code, ack := post(OrderRequest{Unit: &id, Action: "teleport"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, ack.Accepted)

	// Neither unit nor squad named.
	code, _ = post(OrderRequest{Action: "defend"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	// Stale unit reference.
	ghost := sim.UnitID{Index: 50, Gen: 9}
	code, ack = post(OrderRequest{Unit: &ghost, Action: "defend"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, ack.Error, "not found")
}

func TestGateway_SquadOrderFansOut(t *testing.T) {
	srv, tb := testServer(t)

	body, _ := json.Marshal(OrderRequest{
		Squad:  1,
		Action: "move-to",
		Dest:   &sim.Position{X: 80, Y: 40},
	})
	resp, err := http.Post(srv.URL+"/api/orders", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var ack OrderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.True(t, ack.Accepted)
	assert.Equal(t, 2, ack.Staged)

	tb.Step(1)
	for i := 0; i < 2; i++ {
		assert.Equal(t, sim.BehaviorMoveTo, tb.Unit(i).Behavior.Kind, "member %d", i)
	}
}

func TestGateway_WebsocketOrderAndStatePush(t *testing.T) {
	srv, tb := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	id := tb.IDs[0]
	require.NoError(t, conn.WriteJSON(OrderRequest{Unit: &id, Action: "defend", Facing: 1.2}))

	// Frames arrive interleaved: the ack plus periodic state pushes.
	deadline := time.Now().Add(3 * time.Second)
	sawAck := false
	for time.Now().Before(deadline) && !sawAck {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var raw json.RawMessage
		require.NoError(t, conn.ReadJSON(&raw))

		var ack OrderResponse
		if json.Unmarshal(raw, &ack) == nil && ack.Accepted {
			sawAck = true
		}
	}
	require.True(t, sawAck, "no order ack received")

	tb.Step(1)
	assert.Equal(t, sim.BehaviorDefend, tb.Unit(0).Behavior.Kind)
}
