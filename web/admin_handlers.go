package web

import (
	"net/http"

	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.workflows.QueueStats(r.Context())
	if err != nil {
		s.fail(w, "queue stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.ItemFilter{
		Status:       state.QueueStatus(q.Get("status")),
		WorkflowType: types.WorkflowType(q.Get("workflow_type")),
		ProjectID:    q.Get("project_id"),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	page, err := s.workflows.ListItems(r.Context(), filter, getPageNumber(r), getPageSize(r))
	if err != nil {
		s.fail(w, "list queue items", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleFindItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	item, err := s.workflows.FindItem(r.Context(), id)
	if err != nil {
		s.fail(w, "find queue item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleRetryItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	item, err := s.workflows.RetryFailedWorkflow(r.Context(), id)
	if err != nil {
		s.fail(w, "retry queue item", err)
		return
	}
	s.logger.Info("operator retried item", "item_id", id, "retry_id", item.ID, "operator", operatorFrom(r.Context()))
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleErrorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.errors.Stats(r.Context())
	if err != nil {
		s.fail(w, "error stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListErrors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.ErrorFilter{
		Status:    state.ErrorStatus(q.Get("status")),
		Severity:  state.Severity(q.Get("severity")),
		ErrorType: q.Get("error_type"),
	}
	page, err := s.errors.List(r.Context(), filter, getPageNumber(r), getPageSize(r))
	if err != nil {
		s.fail(w, "list errors", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type errorActionRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	s.errorAction(w, r, func(id uuid.UUID, _ errorActionRequest, by string) (*types.ErrorRecord, error) {
		return s.errors.Acknowledge(r.Context(), id, by)
	})
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.errorAction(w, r, func(id uuid.UUID, req errorActionRequest, by string) (*types.ErrorRecord, error) {
		return s.errors.Dismiss(r.Context(), id, req.Notes, by)
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	s.errorAction(w, r, func(id uuid.UUID, req errorActionRequest, by string) (*types.ErrorRecord, error) {
		return s.errors.Resolve(r.Context(), id, req.Notes, by)
	})
}

func (s *Server) errorAction(w http.ResponseWriter, r *http.Request, apply func(uuid.UUID, errorActionRequest, string) (*types.ErrorRecord, error)) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req errorActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	record, err := apply(id, req, operatorFrom(r.Context()))
	if err != nil {
		s.fail(w, "update error record", err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleAutoResolve(w http.ResponseWriter, r *http.Request) {
	n, err := s.maintenance.AutoResolve(r.Context())
	if err != nil {
		s.fail(w, "auto-resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"resolved": n})
}

func (s *Server) handleRecoverStuck(w http.ResponseWriter, r *http.Request) {
	result, err := s.maintenance.RecoverStuck(r.Context())
	if err != nil {
		s.fail(w, "recover stuck items", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"requeued": len(result.Requeued),
		"failed":   len(result.Failed),
	})
}
