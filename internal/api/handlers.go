package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/triagestack/triage-engine/internal/engine"
	"github.com/triagestack/triage-engine/internal/models"
)

type batchResponse struct {
	Status         string `json:"status"`
	BatchID        string `json:"batch_id"`
	TicketsCreated int    `json:"tickets_created"`
	DocsSaved      int    `json:"docs_saved"`
}

type catalogRequest struct {
	Events []models.Event `json:"events"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.service.RunBatch(r.Context(), req)
	if err != nil {
		if errors.Is(err, engine.ErrMissingBatchID) {
			s.writeError(w, http.StatusBadRequest, "batch_id is required")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, batchResponse{
		Status:         "completed",
		BatchID:        result.BatchID,
		TicketsCreated: result.TicketsCreated,
		DocsSaved:      result.DocsSaved,
	})
}

func (s *Server) handleRebuildCatalog(w http.ResponseWriter, r *http.Request) {
	var req catalogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Events) == 0 {
		s.writeError(w, http.StatusBadRequest, "events are required")
		return
	}

	result, err := s.service.RebuildCatalog(r.Context(), req.Events)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSimilarTickets(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.groupIDFromPath(w, r)
	if !ok {
		return
	}

	tickets, err := s.service.FindSimilarTickets(r.Context(), groupID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tickets == nil {
		tickets = []models.SimilarTicket{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"group_id": groupID,
		"similar":  tickets,
	})
}

func (s *Server) handleSaveTicketVector(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.groupIDFromPath(w, r)
	if !ok {
		return
	}

	if err := s.service.SaveTicketVector(r.Context(), groupID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "status": "stored"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) groupIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid ticket id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("response encoding failed", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
