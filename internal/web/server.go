package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/elys-network/lpfarm/internal/logger"
	"github.com/elys-network/lpfarm/internal/manager"
	"github.com/elys-network/lpfarm/internal/state"
	"github.com/elys-network/lpfarm/internal/types"
	"github.com/elys-network/lpfarm/internal/wallet"
)

// maxBodyBytes bounds POST /api/tx bodies.
const maxBodyBytes = 1 << 20

// Engine is the part of the manager the HTTP surface needs.
type Engine interface {
	Execute(ctx context.Context, msg types.Msg) (*types.Receipt, error)
	Params(ctx context.Context) (types.Params, error)
	CurrentEpoch(ctx context.Context) (types.Epoch, error)
	LastEpoch() uint64
	Farm(ctx context.Context, identifier string) (types.Farm, error)
	Farms(ctx context.Context, filter manager.FarmsFilter, startAfter string, limit int) ([]types.Farm, error)
	Position(ctx context.Context, identifier string) (types.Position, error)
	Positions(ctx context.Context, filter manager.PositionsFilter, startAfter string, limit int) ([]types.Position, error)
	Rewards(ctx context.Context, address string) (types.RewardsResponse, error)
	LpWeight(ctx context.Context, address, lpDenom string, epochID uint64) (types.LpWeight, error)
}

// ReceiptSource serves journaled receipts. Optional.
type ReceiptSource interface {
	RecentReceipts(ctx context.Context, filter state.ReceiptFilter, limit int) ([]types.ReceiptRecord, error)
	ActionSummaries(ctx context.Context) ([]state.ActionSummary, error)
}

// Options configures a WebServer.
type Options struct {
	Port string
	// EnableTx exposes POST /api/tx.
	EnableTx bool
	// SettlementAddress, when set, makes POST /api/tx also return the bank messages settling the receipt.
	SettlementAddress string
	Receipts          ReceiptSource
	// DBHealth reports the journal database health. Optional.
	DBHealth func() error
}

// WebServer serves the engine's queries over HTTP.
type WebServer struct {
	logger  zerolog.Logger
	router  *mux.Router
	engine  Engine
	opts    Options
	started time.Time
	server  *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(engine Engine, opts Options) *WebServer {
	if opts.Port == "" {
		opts.Port = "8080"
	}

	ws := &WebServer{
		logger:  logger.GetForComponent("web_server"),
		router:  mux.NewRouter(),
		engine:  engine,
		opts:    opts,
		started: time.Now(),
	}
	ws.setupRoutes()
	return ws
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/params", ws.handleGetParams).Methods("GET")
	api.HandleFunc("/epoch", ws.handleGetEpoch).Methods("GET")
	api.HandleFunc("/farms", ws.handleGetFarms).Methods("GET")
	api.HandleFunc("/farms/{id}", ws.handleGetFarm).Methods("GET")
	api.HandleFunc("/positions", ws.handleGetPositions).Methods("GET")
	api.HandleFunc("/positions/{id}", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/rewards/{address}", ws.handleGetRewards).Methods("GET")
	api.HandleFunc("/lp-weight/{address}", ws.handleGetLpWeight).Methods("GET")
	api.HandleFunc("/receipts", ws.handleGetReceipts).Methods("GET")
	api.HandleFunc("/receipts/summary", ws.handleGetReceiptSummary).Methods("GET")
	if ws.opts.EnableTx {
		api.HandleFunc("/tx", ws.handlePostTx).Methods("POST")
	}

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.requestIDMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, for tests and embedding.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server. It returns http.ErrServerClosed after Shutdown.
func (ws *WebServer) Start() error {
	ws.logger.Info().Str("port", ws.opts.Port).Bool("tx_endpoint", ws.opts.EnableTx).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.opts.Port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return ws.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	current, err := ws.engine.CurrentEpoch(r.Context())
	if err != nil {
		hasErrors = true
	}

	dbStatus := "not_configured"
	if ws.opts.DBHealth != nil {
		dbStatus = "healthy"
		if err := ws.opts.DBHealth(); err != nil {
			dbStatus = "unhealthy"
			hasErrors = true
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"engine": map[string]interface{}{
			"current_epoch": current.ID,
			"last_epoch":    ws.engine.LastEpoch(),
			"database":      dbStatus,
		},
	}
	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleGetParams(w http.ResponseWriter, r *http.Request) {
	params, err := ws.engine.Params(r.Context())
	if err != nil {
		ws.writeEngineError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, params)
}

func (ws *WebServer) handleGetEpoch(w http.ResponseWriter, r *http.Request) {
	current, err := ws.engine.CurrentEpoch(r.Context())
	if err != nil {
		ws.writeEngineError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, current)
}

// handleGetFarms lists farms, filtered by lp_denom or farm_asset.
func (ws *WebServer) handleGetFarms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := manager.FarmsFilter{LpDenom: q.Get("lp_denom"), FarmAsset: q.Get("farm_asset")}
	if filter.LpDenom != "" && filter.FarmAsset != "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "filter by lp_denom or farm_asset, not both")
		return
	}

	farms, err := ws.engine.Farms(r.Context(), filter, q.Get("start_after"), limit)
	if err != nil {
		ws.writeEngineError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"farms": farms,
		"count": len(farms),
	})
}

func (ws *WebServer) handleGetFarm(w http.ResponseWriter, r *http.Request) {
	farm, err := ws.engine.Farm(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		ws.writeEngineError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, farm)
}

// handleGetPositions lists positions, optionally for one receiver and open state.
func (ws *WebServer) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := manager.PositionsFilter{Receiver: q.Get("receiver")}
	if raw := q.Get("open"); raw != "" {
		open, err := strconv.ParseBool(raw)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "open must be true or false")
			return
		}
		filter.Open = &open
	}

	positions, err := ws.engine.Positions(r.Context(), filter, q.Get("start_after"), limit)
	if err != nil {
		ws.writeEngineError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
}

func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	position, err := ws.engine.Position(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		ws.writeEngineError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, position)
}

func (ws *WebServer) handleGetRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := ws.engine.Rewards(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		ws.writeEngineError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, rewards)
}

// handleGetLpWeight returns one ledger snapshot. The epoch defaults to the current one.
func (ws *WebServer) handleGetLpWeight(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	denom := q.Get("denom")
	if denom == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "denom is required")
		return
	}

	var epochID uint64
	if raw := q.Get("epoch"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid epoch")
			return
		}
		epochID = parsed
	} else {
		current, err := ws.engine.CurrentEpoch(r.Context())
		if err != nil {
			ws.writeEngineError(w, r, err)
			return
		}
		epochID = current.ID
	}

	weight, err := ws.engine.LpWeight(r.Context(), mux.Vars(r)["address"], denom, epochID)
	if err != nil {
		ws.writeEngineError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, weight)
}

// handleGetReceipts returns journaled receipts, newest first.
func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	if ws.opts.Receipts == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Receipt journal is not configured")
		return
	}
	q := r.URL.Query()
	limit := 20
	if limitStr := q.Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	filter := state.ReceiptFilter{Action: q.Get("action"), Address: q.Get("address")}
	receipts, err := ws.opts.Receipts.RecentReceipts(r.Context(), filter, limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	})
}

func (ws *WebServer) handleGetReceiptSummary(w http.ResponseWriter, r *http.Request) {
	if ws.opts.Receipts == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Receipt journal is not configured")
		return
	}
	summaries, err := ws.opts.Receipts.ActionSummaries(r.Context())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get action summaries")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve action summaries")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"actions": summaries})
}

// handlePostTx executes one action. The body is a Msg envelope: {sender, funds, action: {type, body}}.
func (ws *WebServer) handlePostTx(w http.ResponseWriter, r *http.Request) {
	var msg types.Msg
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&msg); err != nil {
		if errors.Is(err, types.ErrUnknownAction) {
			ws.writeEngineError(w, r, err)
			return
		}
		ws.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	receipt, err := ws.engine.Execute(r.Context(), msg)
	if err != nil {
		ws.writeEngineError(w, r, err)
		return
	}

	response := map[string]interface{}{"receipt": receipt}
	if ws.opts.SettlementAddress != "" {
		msgs, err := wallet.IntentsToMessages(ws.opts.SettlementAddress, receipt.Transfers)
		if err != nil {
			// the action is committed; report the settlement problem alongside the receipt
			ws.logger.Error().Err(err).Str("action", receipt.Action).Msg("Failed to build settlement messages")
			response["settlement_error"] = err.Error()
		} else {
			response["messages"] = msgs
		}
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return limit, nil
}

// statusForCategory maps engine error categories to HTTP status codes.
func statusForCategory(c types.Category) int {
	switch c {
	case types.CategoryValidation:
		return http.StatusBadRequest
	case types.CategoryAuthorization:
		return http.StatusForbidden
	case types.CategoryNotFound:
		return http.StatusNotFound
	case types.CategoryResourceLimit, types.CategoryLifecycle:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (ws *WebServer) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	category := types.ErrorCategory(err)
	status := statusForCategory(category)
	message := err.Error()
	if status == http.StatusInternalServerError {
		ws.logger.Error().Err(err).Str("path", r.URL.Path).Str("request_id", requestID(r)).Msg("Request failed")
		message = "Internal error"
	}
	ws.writeJSONResponse(w, status, map[string]interface{}{
		"error":     true,
		"category":  category,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
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
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

// requestIDMiddleware propagates X-Request-ID, generating one when absent.
func (ws *WebServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Str("request_id", requestID(r)).
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
