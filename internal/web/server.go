package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/axiom-fi/sae/internal/logger"
	"github.com/axiom-fi/sae/internal/registry"
	"github.com/axiom-fi/sae/internal/scheduler"
	"github.com/axiom-fi/sae/internal/state"
	"github.com/axiom-fi/sae/internal/types"
	"github.com/gorilla/mux"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the engine over HTTP: context registration and
// inspection, manual cycle execution, persisted cycles and performance.
type WebServer struct {
	router    *mux.Router
	port      string
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
}

// NewWebServer creates a new web server instance.
func NewWebServer(port string, reg *registry.Registry, sched *scheduler.Scheduler) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:    mux.NewRouter(),
		port:      port,
		registry:  reg,
		scheduler: sched,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/contexts", ws.handleRegisterContext).Methods("POST")
	api.HandleFunc("/contexts/{owner}", ws.handleGetContext).Methods("GET")
	api.HandleFunc("/contexts/{owner}/scenarios", ws.handleUpdateScenarios).Methods("PUT")
	api.HandleFunc("/contexts/{owner}/config", ws.handleUpdateConfig).Methods("PUT")
	api.HandleFunc("/contexts/{owner}/emergency-stop", ws.handleEmergencyStop).Methods("POST")
	api.HandleFunc("/contexts/{owner}/execute", ws.handleExecute).Methods("POST")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/performance", ws.handleGetPerformance).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server and engine health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := state.TestDBConnection() == nil

	status := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		status = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "sae-scenario-automation-engine",
			"version": "1.0.0",
		},
		"engine_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"owners":           len(ws.registry.Owners()),
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

type registerRequest struct {
	Owner     string                     `json:"owner"`
	ChainID   string                     `json:"chain_id"`
	Scenarios []types.AutomationScenario `json:"scenarios"`
	Config    types.GlobalConfig         `json:"config"`
}

// handleRegisterContext creates or replaces an owner's automation context
func (ws *WebServer) handleRegisterContext(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	actx, err := ws.registry.Register(req.Owner, req.ChainID, req.Scenarios, req.Config)
	if err != nil {
		webLogger.Error().Err(err).Str("owner", req.Owner).Msg("Context registration failed")
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusCreated, actx)
}

// handleGetContext returns an owner's automation context
func (ws *WebServer) handleGetContext(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]

	actx, err := ws.registry.Get(owner)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Context not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, actx)
}

// handleUpdateScenarios replaces an owner's scenario list
func (ws *WebServer) handleUpdateScenarios(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]

	var scenarios []types.AutomationScenario
	if err := json.NewDecoder(r.Body).Decode(&scenarios); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := ws.registry.UpdateScenarios(owner, scenarios); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"owner":     owner,
		"scenarios": len(scenarios),
	})
}

// handleUpdateConfig replaces an owner's global configuration
func (ws *WebServer) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]

	var cfg types.GlobalConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := ws.registry.UpdateConfig(owner, cfg); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"owner": owner})
}

type emergencyStopRequest struct {
	Stopped bool `json:"stopped"`
}

// handleEmergencyStop toggles the owner's emergency stop flag
func (ws *WebServer) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]

	var req emergencyStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := ws.registry.SetEmergencyStop(owner, req.Stopped); err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"owner":   owner,
		"stopped": req.Stopped,
	})
}

// handleExecute runs one automation cycle for the owner immediately
func (ws *WebServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]

	res, err := ws.scheduler.ExecuteAutomationTasks(r.Context(), owner)
	if err != nil {
		webLogger.Error().Err(err).Str("owner", owner).Msg("Manual cycle failed")
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, res)
}

// handleGetCycles returns recent persisted cycles, optionally per owner
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	owner := r.URL.Query().Get("owner")

	cycles, err := state.GetRecentCycles(owner, limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
		"limit":  limit,
	})
}

// handleGetPerformance returns the persisted performance aggregate
func (ws *WebServer) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	summary, err := state.GetPerformanceSummary(owner)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get performance summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve performance summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
