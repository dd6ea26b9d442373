package net

import (
	"encoding/json"
	"io"
	nethttp "net/http"
	"time"

	"rallypoint/server/internal/sim"
	"rallypoint/server/internal/telemetry"
	"rallypoint/server/internal/world"
	"rallypoint/server/logging"
)

// HTTPHandlerConfig wires the diagnostics and command surface.
type HTTPHandlerConfig struct {
	Logger   telemetry.Logger
	Metrics  *logging.Metrics
	WSFeed   nethttp.Handler
	TickRate int
}

type pointPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (p pointPayload) vec() world.Vec3 {
	return world.Vec3{X: p.X, Y: p.Y, Z: p.Z}
}

type pathRequestMessage struct {
	AgentID string       `json:"agentId"`
	Start   pointPayload `json:"start"`
	Target  pointPayload `json:"target"`
}

type formationRequestMessage struct {
	FormationID string       `json:"formationId"`
	Target      pointPayload `json:"target"`
}

type stopRequestMessage struct {
	AgentID string `json:"agentId"`
}

// NewHTTPHandler builds the server mux: health, diagnostics, unit queries,
// path commands, and the websocket event feed.
func NewHTTPHandler(engine *sim.Engine, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string            `json:"status"`
			ServerTime int64             `json:"serverTime"`
			TickRate   int               `json:"tickRate"`
			Stats      sim.Statistics    `json:"stats"`
			Telemetry  map[string]uint64 `json:"telemetry,omitempty"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			TickRate:   cfg.TickRate,
			Stats:      engine.Statistics(),
			Telemetry:  cfg.Metrics.Snapshot(),
		}
		writeJSON(w, payload)
	})

	mux.HandleFunc("/path", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var msg pathRequestMessage
		if !decodeBody(w, r.Body, &msg, logger) {
			return
		}
		requestID, err := engine.RequestPath(msg.AgentID, msg.Start.vec(), msg.Target.vec(), nil)
		if err != nil {
			httpError(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]string{"requestId": requestID})
	})

	mux.HandleFunc("/formation-path", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var msg formationRequestMessage
		if !decodeBody(w, r.Body, &msg, logger) {
			return
		}
		requestID, err := engine.RequestFormationPath(msg.FormationID, msg.Target.vec())
		if err != nil {
			httpError(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]string{"requestId": requestID})
	})

	mux.HandleFunc("/stop", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var msg stopRequestMessage
		if !decodeBody(w, r.Body, &msg, logger) {
			return
		}
		engine.StopUnitMovement(msg.AgentID)
		w.WriteHeader(nethttp.StatusNoContent)
	})

	mux.HandleFunc("/unit", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		agentID := r.URL.Query().Get("id")
		if agentID == "" {
			httpError(w, "missing id", nethttp.StatusBadRequest)
			return
		}
		path, _ := engine.UnitPath(agentID)
		destination, hasDestination := engine.UnitDestination(agentID)
		payload := struct {
			AgentID     string       `json:"agentId"`
			State       string       `json:"state"`
			Moving      bool         `json:"moving"`
			Path        []world.Vec3 `json:"path,omitempty"`
			Destination *world.Vec3  `json:"destination,omitempty"`
		}{
			AgentID: agentID,
			State:   engine.UnitMovementState(agentID).String(),
			Moving:  engine.IsUnitMoving(agentID),
			Path:    path,
		}
		if hasDestination {
			payload.Destination = &destination
		}
		writeJSON(w, payload)
	})

	if cfg.WSFeed != nil {
		mux.Handle("/ws", cfg.WSFeed)
	}

	return mux
}

func decodeBody(w nethttp.ResponseWriter, body io.Reader, out any, logger telemetry.Logger) bool {
	if err := json.NewDecoder(body).Decode(out); err != nil {
		logger.Printf("discarding malformed request body: %v", err)
		httpError(w, "malformed body", nethttp.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w nethttp.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, message string, code int) {
	nethttp.Error(w, message, code)
}
