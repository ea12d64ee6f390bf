package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/trustledger/internal/domain/types"
)

// Write modes reported by POST /trust-score.
const (
	modeBlockchain = "blockchain"
	modeCached     = "cached"
)

// interactionRequest mirrors the OpenAPI schema for POST /trust-score.
type interactionRequest struct {
	WalletAddress   string `json:"walletAddress"`
	InteractionType string `json:"interactionType"`
	QualityScore    *int   `json:"qualityScore"`
}

func (r interactionRequest) validate() error {
	switch {
	case strings.TrimSpace(r.WalletAddress) == "":
		return errors.New("missing walletAddress")
	case strings.TrimSpace(r.InteractionType) == "":
		return errors.New("missing interactionType")
	case r.QualityScore == nil:
		return errors.New("missing qualityScore")
	}
	return nil
}

type interactionResponse struct {
	WalletAddress   string `json:"walletAddress"`
	InteractionType string `json:"interactionType"`
	QualityScore    int    `json:"qualityScore"`
	Recorded        bool   `json:"recorded"`
	TaskID          string `json:"taskId"`
	Signature       string `json:"signature"`
	NewScore        int    `json:"newScore"`
	Confirmed       bool   `json:"confirmed"`
	OnChain         bool   `json:"onChain"`
	Mode            string `json:"mode"`
}

// TrustScoreHandler handles reputation writes and reads.
type TrustScoreHandler struct {
	deps TrustScoreDependencies
}

// NewTrustScoreHandler creates a new trust score handler.
func NewTrustScoreHandler(deps TrustScoreDependencies) *TrustScoreHandler {
	return &TrustScoreHandler{deps: deps}
}

// HandleTrustScore dispatches POST and GET /trust-score.
func (h *TrustScoreHandler) HandleTrustScore(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *TrustScoreHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	const op = "api.record_interaction"

	var req interactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.RecordInteraction(r.Context(), req.WalletAddress, req.InteractionType, *req.QualityScore)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}

	mode := modeCached
	if res.OnChain {
		mode = modeBlockchain
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: interactionResponse{
		WalletAddress:   req.WalletAddress,
		InteractionType: req.InteractionType,
		QualityScore:    *req.QualityScore,
		Recorded:        true,
		TaskID:          res.TaskID,
		Signature:       res.Signature,
		NewScore:        res.NewScore,
		Confirmed:       false,
		OnChain:         res.OnChain,
		Mode:            mode,
	}})
}

func (h *TrustScoreHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_reputation"

	wallet := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("wallet address required")))
		return
	}

	rec, err := h.deps.GetReputation(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: rec})
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, types.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "invalid_input", WrapKind(op, ErrBadRequest, err))
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
}
