package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/novassure/graph-fraud-engine/internal/orchestrator"
)

// envelope is the response shape every control API handler returns:
// a success flag plus either data or an error, never both.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, envelope{Success: false, Error: err.Error()})
}

// windowMinutes parses the ?window= query param, defaulting to 1
// minute; out-of-range values are coerced downstream by the
// orchestrator and reported back via WindowCoerced.
func windowMinutes(r *http.Request) int {
	v := r.URL.Query().Get("window")
	if v == "" {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 1
	}
	return n
}

// newControlServer builds the HTTP surface over the orchestrator's
// control API: generator lifecycle, rule toggles, stats, and index
// inspection, plus health and Prometheus scrape endpoints.
func newControlServer(addr string, orch *orchestrator.Orchestrator, logger *zap.Logger) *http.Server {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeOK(w, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/v1/generator/start", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			TargetTps int `json:"target_tps"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		result := orch.StartGenerator(req.Context(), body.TargetTps)
		status := http.StatusOK
		if result == "invalid" {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, envelope{Success: result == "started", Data: result})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/generator/stop", func(w http.ResponseWriter, req *http.Request) {
		result := orch.StopGenerator()
		writeJSON(w, http.StatusOK, envelope{Success: result == "stopped", Data: result})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/status", func(w http.ResponseWriter, req *http.Request) {
		writeOK(w, orch.Status())
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/rules", func(w http.ResponseWriter, req *http.Request) {
		writeOK(w, orch.ListRules())
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/rules/{name}/toggle", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		name := mux.Vars(req)["name"]
		if err := orch.ToggleRule(name, body.Enabled); err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeOK(w, map[string]interface{}{"name": name, "enabled": body.Enabled})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/stats", func(w http.ResponseWriter, req *http.Request) {
		writeOK(w, orch.Stats(windowMinutes(req)))
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/stats/rules/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["name"]
		stats, coerced, known := orch.RuleStats(windowMinutes(req), name)
		if !known {
			writeErr(w, http.StatusNotFound, errUnknownRule(name))
			return
		}
		writeOK(w, map[string]interface{}{"stats": stats, "window_coerced": coerced})
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/indexes", func(w http.ResponseWriter, req *http.Request) {
		report := orch.InspectIndexes(req.Context())
		writeOK(w, map[string]interface{}{"report": report.String(), "reachable": report.Reachable})
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/indexes/fraud", func(w http.ResponseWriter, req *http.Request) {
		if err := orch.CreateFraudIndex(req.Context()); err != nil {
			writeErr(w, http.StatusServiceUnavailable, err)
			return
		}
		writeOK(w, map[string]string{"status": "probed"})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/seed", func(w http.ResponseWriter, req *http.Request) {
		ids, err := orch.SeedSampleData(req.Context())
		if err != nil {
			writeErr(w, http.StatusServiceUnavailable, err)
			return
		}
		writeOK(w, map[string]interface{}{"account_ids": ids})
	}).Methods(http.MethodPost)

	r.Use(loggingMiddleware(logger))

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("control API request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type ruleError string

func (e ruleError) Error() string { return string(e) }

func errUnknownRule(name string) error {
	return ruleError("unknown rule: " + name)
}
