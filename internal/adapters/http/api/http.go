// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/trustledger/internal/domain/model"
	"github.com/okian/trustledger/internal/domain/scoring"
	"github.com/okian/trustledger/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	TrustScoreDependencies
	StatusDependencies
	MatchDependencies
}

// TrustScoreDependencies covers the reputation write and read paths.
type TrustScoreDependencies interface {
	// RecordInteraction applies an interaction and queues its ledger write.
	RecordInteraction(ctx context.Context, identity, interactionType string, quality int) (types.InteractionResult, error)

	// GetReputation returns the reconciled reputation of identity.
	GetReputation(ctx context.Context, identity string) (types.DisplayRecord, error)
}

// StatusDependencies exposes the write-behind pipeline.
type StatusDependencies interface {
	// GetTaskState returns the task's state and, once committed, its
	// ledger signature.
	GetTaskState(taskID string) (model.TaskState, string)
	GetQueueStatus(ctx context.Context) types.QueueStatus
}

// MatchDependencies exposes compatibility scoring.
type MatchDependencies interface {
	Compatibility(a, b scoring.Profile) int
	RankCandidates(current scoring.Profile, candidates []scoring.Candidate, minMatchScore, minReputation int) []scoring.Candidate
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	trustScoreHandler *TrustScoreHandler
	statusHandler     *StatusHandler
	matchHandler      *MatchHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		trustScoreHandler: NewTrustScoreHandler(deps),
		statusHandler:     NewStatusHandler(deps),
		matchHandler:      NewMatchHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/trust-score", MetricsMiddleware(s.trustScoreHandler.HandleTrustScore, "trust_score"))
	mux.HandleFunc("/blockchain-status", MetricsMiddleware(s.statusHandler.HandleStatus, "blockchain_status"))
	mux.HandleFunc("/match/score", MetricsMiddleware(s.matchHandler.HandleScore, "match_score"))
	mux.HandleFunc("/match/rank", MetricsMiddleware(s.matchHandler.HandleRank, "match_rank"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// envelope is the success wrapper used by the trust score routes.
type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}
