package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rallypoint/server/internal/nav"
	"rallypoint/server/internal/sim"
	"rallypoint/server/internal/world"
	"rallypoint/server/logging"
)

func newHandlerFixture(t *testing.T) (http.Handler, *sim.Engine) {
	t.Helper()
	agents := world.NewAgentTable()
	agents.Add(world.Agent{ID: "u1", Speed: 5})
	engine := sim.NewEngine(sim.DefaultConfig(), sim.Deps{
		Nav: nav.QueryFunc(func(start, target world.Vec3) ([]world.Vec3, bool) {
			return []world.Vec3{target}, true
		}),
		Agents: agents,
	})
	handler := NewHTTPHandler(engine, HTTPHandlerConfig{
		Metrics:  logging.NewMetrics(),
		TickRate: 15,
	})
	return handler, engine
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newHandlerFixture(t)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "ok", recorder.Body.String())
}

func TestDiagnosticsEndpoint(t *testing.T) {
	handler, _ := newHandlerFixture(t)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	var payload struct {
		Status   string `json:"status"`
		TickRate int    `json:"tickRate"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload.Status)
	assert.Equal(t, 15, payload.TickRate)
}

func TestPathEndpoint(t *testing.T) {
	handler, engine := newHandlerFixture(t)

	body := `{"agentId":"u1","start":{"x":0,"y":0,"z":0},"target":{"x":5,"y":0,"z":5}}`
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/path", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, recorder.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.NotEmpty(t, payload["requestId"])
	assert.Equal(t, 1, engine.Statistics().QueuedRequests)
}

func TestPathEndpointRejectsUnknownAgent(t *testing.T) {
	handler, _ := newHandlerFixture(t)
	body := `{"agentId":"ghost","target":{"x":5}}`
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/path", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestPathEndpointRejectsGet(t *testing.T) {
	handler, _ := newHandlerFixture(t)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/path", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestPathEndpointRejectsMalformedBody(t *testing.T) {
	handler, _ := newHandlerFixture(t)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/path", strings.NewReader("{broken")))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestStopEndpoint(t *testing.T) {
	handler, engine := newHandlerFixture(t)

	_, err := engine.RequestPath("u1", world.Vec3{}, world.Vec3{X: 5}, nil)
	require.NoError(t, err)
	engine.Advance(1, 1.0/15)
	require.True(t, engine.IsUnitMoving("u1"))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/stop", strings.NewReader(`{"agentId":"u1"}`)))
	require.Equal(t, http.StatusNoContent, recorder.Code)
	assert.False(t, engine.IsUnitMoving("u1"))
}

func TestUnitEndpoint(t *testing.T) {
	handler, engine := newHandlerFixture(t)

	_, err := engine.RequestPath("u1", world.Vec3{}, world.Vec3{X: 5}, nil)
	require.NoError(t, err)
	engine.Advance(1, 1.0/15)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/unit?id=u1", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		AgentID     string       `json:"agentId"`
		State       string       `json:"state"`
		Moving      bool         `json:"moving"`
		Path        []world.Vec3 `json:"path"`
		Destination *world.Vec3  `json:"destination"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Equal(t, "u1", payload.AgentID)
	assert.Equal(t, "following_path", payload.State)
	assert.True(t, payload.Moving)
	require.NotNil(t, payload.Destination)
	assert.Equal(t, world.Vec3{X: 5}, *payload.Destination)
}

func TestUnitEndpointRequiresID(t *testing.T) {
	handler, _ := newHandlerFixture(t)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/unit", nil))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
