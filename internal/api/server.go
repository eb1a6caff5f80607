// Package api provides the HTTP server for Trail.
// Reads are public; every mutating route runs as the bearer token's subject.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/trail/internal/domain"
	"github.com/tutu-network/trail/internal/infra/events"
	"github.com/tutu-network/trail/internal/infra/governance"
	"github.com/tutu-network/trail/internal/infra/observability"
)

// Version is reported by /api/version.
const Version = "0.1.0"

// maxBody caps request bodies.
const maxBody = 1 << 20

// Server is the Trail HTTP API server.
type Server struct {
	engine         *governance.Engine
	auth           *Authenticator
	tracer         *observability.Tracer
	recorder       *events.Recorder
	metricsEnabled bool
	timeout        time.Duration
}

// NewServer creates a new API server.
func NewServer(engine *governance.Engine, auth *Authenticator) *Server {
	return &Server{engine: engine, auth: auth, timeout: 30 * time.Second}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetTracer exposes recent spans at /v1/traces.
func (s *Server) SetTracer(t *observability.Tracer) { s.tracer = t }

// SetRecorder exposes recent events at /v1/events.
func (s *Server) SetRecorder(r *events.Recorder) { s.recorder = r }

// SetTimeout sets the per-request timeout.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": Version,
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		// Public reads
		r.Get("/config", s.handleGetConfig)
		r.Get("/stats", s.handleStats)
		r.Get("/events", s.handleEvents)
		r.Get("/traces", s.handleTraces)
		r.Get("/registries", s.handleListRegistries)
		r.Get("/registries/{code}", s.handleGetRegistry)
		r.Get("/registries/{code}/accounts/{voter}", s.handleGetAccount)
		r.Get("/ballots", s.handleListBallots)
		r.Get("/ballots/{name}", s.handleGetBallot)
		r.Get("/ballots/{name}/results", s.handleResults)
		r.Get("/voters/{voter}/receipts", s.handleListReceipts)
		r.Get("/voters/{voter}/receipts/{name}", s.handleGetReceipt)
		r.Get("/workers/{name}", s.handleGetWorker)

		// Authenticated writes
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)

			r.Post("/registries", s.handleNewRegistry)
			r.Post("/registries/{code}/toggle", s.handleToggleRegistry)
			r.Post("/registries/{code}/max", s.handleMutateMax)
			r.Post("/registries/{code}/lock", s.handleLockRegistry)
			r.Post("/registries/{code}/unlock", s.handleUnlockRegistry)
			r.Post("/registries/{code}/unlocker", s.handleSetUnlocker)
			r.Post("/registries/{code}/mint", s.handleMint)
			r.Post("/registries/{code}/transfer", s.handleTransfer)
			r.Post("/registries/{code}/burn", s.handleBurn)
			r.Post("/registries/{code}/reclaim", s.handleReclaim)
			r.Post("/registries/{code}/stake", s.handleStake)
			r.Post("/registries/{code}/unstake", s.handleUnstake)
			r.Post("/registries/{code}/voters", s.handleRegisterVoter)
			r.Delete("/registries/{code}/voters", s.handleUnregisterVoter)
			r.Post("/registries/{code}/rebalance", s.handleRebalance)
			r.Post("/registries/{code}/claim", s.handleClaim)

			r.Post("/ballots", s.handleNewBallot)
			r.Put("/ballots/{name}/details", s.handleEditDetails)
			r.Post("/ballots/{name}/toggle", s.handleToggleBallot)
			r.Put("/ballots/{name}/max-options", s.handleEditMaxOptions)
			r.Post("/ballots/{name}/options", s.handleAddOption)
			r.Delete("/ballots/{name}/options/{option}", s.handleRemoveOption)
			r.Post("/ballots/{name}/ready", s.handleReadyBallot)
			r.Post("/ballots/{name}/cancel", s.handleCancelBallot)
			r.Post("/ballots/{name}/close", s.handleCloseBallot)
			r.Post("/ballots/{name}/archive", s.handleArchiveBallot)
			r.Post("/ballots/{name}/unarchive", s.handleUnarchiveBallot)
			r.Delete("/ballots/{name}", s.handleDeleteBallot)
			r.Post("/ballots/{name}/votes", s.handleCastVote)
			r.Delete("/ballots/{name}/votes", s.handleUnvote)

			r.Post("/voters/{voter}/cleanup", s.handleCleanup)

			r.Post("/workers", s.handleRegisterWorker)
			r.Delete("/workers", s.handleUnregisterWorker)

			// Admin
			r.Group(func(r chi.Router) {
				r.Use(s.auth.RequireAdmin)
				r.Put("/config", s.handleSetConfig)
				r.Post("/registries/{code}/fund", s.handleFundReserve)
				r.Post("/workers/{name}/suspend", s.handleSuspendWorker)
				r.Post("/workers/{name}/reinstate", s.handleReinstateWorker)
			})
		})
	})

	return r
}

// ─── Shared helpers ─────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorKind(w, status, msg, "request")
}

func writeErrorKind(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"kind":    kind,
		},
	})
}

// writeEngineError maps a ledger error onto an HTTP status by its kind.
func writeEngineError(w http.ResponseWriter, err error) {
	kind := domain.Kind(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		msg = "internal error"
	}
	writeErrorKind(w, statusFor(kind), msg, string(kind))
}

// statusFor returns the HTTP status for an error kind.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindPolicyViolation:
		return http.StatusForbidden
	case domain.KindExpired:
		return http.StatusGone
	case domain.KindArithmetic:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// queryInt returns the integer query parameter name, or def.
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
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
