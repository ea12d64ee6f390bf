package api

import (
	"fmt"
	"net/http"

	"github.com/okian/trustledger/internal/domain/scoring"
)

const maxRankCandidates = 500

type profileRequest struct {
	RiskCategory string   `json:"riskCategory"`
	Keywords     []string `json:"keywords"`
	Reputation   int      `json:"reputation"`
}

func (p profileRequest) toProfile() (scoring.Profile, error) {
	risk, err := scoring.ParseRiskCategory(p.RiskCategory)
	if err != nil {
		return scoring.Profile{}, err
	}
	return scoring.Profile{RiskCategory: risk, Keywords: p.Keywords, Reputation: p.Reputation}, nil
}

type scoreRequest struct {
	A profileRequest `json:"a"`
	B profileRequest `json:"b"`
}

type scoreResponse struct {
	Score int `json:"score"`
}

type candidateRequest struct {
	ID string `json:"id"`
	profileRequest
}

type rankRequest struct {
	Current       profileRequest     `json:"current"`
	Candidates    []candidateRequest `json:"candidates"`
	MinMatchScore *int               `json:"minMatchScore"`
	MinReputation *int               `json:"minReputation"`
}

type rankedCandidate struct {
	ID           string   `json:"id"`
	RiskCategory string   `json:"riskCategory"`
	Keywords     []string `json:"keywords"`
	Reputation   int      `json:"reputation"`
	MatchScore   int      `json:"matchScore"`
}

type rankResponse struct {
	Candidates []rankedCandidate `json:"candidates"`
}

// MatchHandler handles compatibility scoring requests.
type MatchHandler struct {
	deps MatchDependencies
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(deps MatchDependencies) *MatchHandler {
	return &MatchHandler{deps: deps}
}

// HandleScore handles POST /match/score.
func (h *MatchHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.match_score"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req scoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	a, err := req.A.toProfile()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("a: %w", err)))
		return
	}
	b, err := req.B.toProfile()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("b: %w", err)))
		return
	}

	writeJSON(w, http.StatusOK, scoreResponse{Score: h.deps.Compatibility(a, b)})
}

// HandleRank handles POST /match/rank. Omitted thresholds use the
// configured defaults.
func (h *MatchHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.match_rank"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req rankRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Candidates) > maxRankCandidates {
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, fmt.Errorf("at most %d candidates", maxRankCandidates)))
		return
	}

	current, err := req.Current.toProfile()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("current: %w", err)))
		return
	}
	candidates := make([]scoring.Candidate, 0, len(req.Candidates))
	for i, c := range req.Candidates {
		if c.ID == "" {
			writeError(w, http.StatusBadRequest, "bad_request",
				WrapKind(op, ErrBadRequest, fmt.Errorf("candidates[%d]: missing id", i)))
			return
		}
		p, err := c.toProfile()
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("candidates[%d]: %w", i, err)))
			return
		}
		candidates = append(candidates, scoring.Candidate{ID: c.ID, Profile: p})
	}

	minMatch, minRep := -1, -1
	if req.MinMatchScore != nil {
		minMatch = *req.MinMatchScore
	}
	if req.MinReputation != nil {
		minRep = *req.MinReputation
	}

	ranked := h.deps.RankCandidates(current, candidates, minMatch, minRep)
	resp := rankResponse{Candidates: make([]rankedCandidate, 0, len(ranked))}
	for _, c := range ranked {
		resp.Candidates = append(resp.Candidates, rankedCandidate{
			ID:           c.ID,
			RiskCategory: c.Profile.RiskCategory.String(),
			Keywords:     c.Profile.Keywords,
			Reputation:   c.Profile.Reputation,
			MatchScore:   c.MatchScore,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
