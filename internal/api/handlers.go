package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/DASSPipe/internal/assessment"
	"github.com/BTreeMap/DASSPipe/internal/models"
)

// startAssessmentHandler starts a fresh assessment (POST /assessments).
func (s *Server) startAssessmentHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	slog.Debug("Server.startAssessmentHandler: processing request", "path", r.URL.Path)

	var req models.StartAssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.startAssessmentHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := models.ValidateStruct(req); err != nil {
		slog.Warn("Server.startAssessmentHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	participant, err := s.msgService.ValidateAndCanonicalizeRecipient(req.ParticipantID)
	if err != nil {
		slog.Warn("Server.startAssessmentHandler: participant validation failed", "error", err, "participant", req.ParticipantID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	session, err := s.respHandler.StartAssessment(r.Context(), participant)
	if err != nil {
		slog.Error("Server.startAssessmentHandler: failed to start assessment", "error", err, "participant", participant)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start assessment"))
		return
	}

	slog.Info("Server.startAssessmentHandler: assessment started", "participant", participant, "sessionID", session.ID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Assessment started", session))
}

// answerHandler feeds one raw answer to the pending question (POST /assessments/{participant}/answers).
func (s *Server) answerHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	participant, ok := s.participantFromPath(w, r)
	if !ok {
		return
	}

	var req models.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.answerHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := models.ValidateStruct(req); err != nil {
		slog.Warn("Server.answerHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	result, err := s.assessments.HandleAnswer(r.Context(), participant, req.Answer)
	if errors.Is(err, assessment.ErrNotAwaitingAnswer) {
		slog.Warn("Server.answerHandler: no question pending", "participant", participant)
		writeJSONResponse(w, http.StatusConflict, models.Error("No question is awaiting an answer for this participant"))
		return
	}
	if err != nil {
		slog.Error("Server.answerHandler: failed to handle answer", "error", err, "participant", participant)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to handle answer"))
		return
	}

	if result.Resumed {
		slog.Info("Server.answerHandler: interrupted step resumed, answer not recorded", "participant", participant)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Interrupted step resumed; answer not recorded", result))
		return
	}
	if !result.Accepted {
		var correction string
		if len(result.Messages) > 0 {
			correction = result.Messages[0]
		}
		slog.Info("Server.answerHandler: answer rejected", "participant", participant)
		writeJSONResponse(w, http.StatusOK, models.Rejected(correction, result))
		return
	}
	slog.Info("Server.answerHandler: answer recorded", "participant", participant, "answered", len(result.Session.Responses))
	writeJSONResponse(w, http.StatusOK, models.Recorded(result))
}

// sessionHandler returns the participant's session record (GET /assessments/{participant}).
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	participant, ok := s.participantFromPath(w, r)
	if !ok {
		return
	}
	session, err := s.assessments.GetSession(r.Context(), participant)
	if errors.Is(err, models.ErrSessionNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Assessment session not found"))
		return
	}
	if err != nil {
		slog.Error("Server.sessionHandler: failed to load session", "error", err, "participant", participant)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(session))
}

// receiptsHandler returns all delivery receipts (GET /receipts).
func (s *Server) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.st.GetReceipts()
	if err != nil {
		slog.Error("Server.receiptsHandler: failed to fetch receipts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch receipts"))
		return
	}
	slog.Debug("Server.receiptsHandler: receipts fetched", "count", len(receipts))
	writeJSONResponse(w, http.StatusOK, models.Success(receipts))
}

// responsesHandler returns all collected inbound messages (GET /responses).
func (s *Server) responsesHandler(w http.ResponseWriter, r *http.Request) {
	responses, err := s.st.GetResponses()
	if err != nil {
		slog.Error("Server.responsesHandler: failed to fetch responses", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch responses"))
		return
	}
	slog.Debug("Server.responsesHandler: responses fetched", "count", len(responses))
	writeJSONResponse(w, http.StatusOK, models.Success(responses))
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":            "healthy",
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
		"active_hooks":      s.respHandler.GetHookCount(),
		"pending_reminders": len(s.assessments.PendingReminders()),
	})
}

// participantFromPath canonicalizes the {participant} path value, writing a
// 400 response when it is invalid.
func (s *Server) participantFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.PathValue("participant")
	participant, err := s.msgService.ValidateAndCanonicalizeRecipient(raw)
	if err != nil {
		slog.Warn("Server: invalid participant in path", "error", err, "participant", raw)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return "", false
	}
	return participant, true
}
