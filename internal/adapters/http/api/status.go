package api

import (
	"net/http"
	"strings"

	"github.com/okian/trustledger/internal/domain/model"
)

// taskStatusResponse answers GET /blockchain-status?taskId=. Signature is
// null until the task is committed.
type taskStatusResponse struct {
	TaskID    string  `json:"taskId"`
	Signature *string `json:"signature"`
	Status    string  `json:"status"`
}

// StatusHandler reports on the write-behind pipeline.
type StatusHandler struct {
	deps StatusDependencies
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(deps StatusDependencies) *StatusHandler {
	return &StatusHandler{deps: deps}
}

// HandleStatus handles GET /blockchain-status. With a taskId it reports the
// task as processing, completed or dropped; without one it returns the
// queue status. An evicted task reads as processing.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	taskID := strings.TrimSpace(r.URL.Query().Get("taskId"))
	if taskID == "" {
		writeJSON(w, http.StatusOK, h.deps.GetQueueStatus(r.Context()))
		return
	}

	state, sig := h.deps.GetTaskState(taskID)
	resp := taskStatusResponse{TaskID: taskID, Status: state.String()}
	if state == model.TaskCommitted {
		resp.Signature = &sig
	}
	writeJSON(w, http.StatusOK, resp)
}
