package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/NovaMeet/nova-call-service/internal/config"
	"github.com/NovaMeet/nova-call-service/internal/domain"
	"github.com/NovaMeet/nova-call-service/internal/repository"
	"github.com/NovaMeet/nova-call-service/internal/video"
	"github.com/NovaMeet/nova-call-service/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// joinTokenValidity bounds how long an issued join token works.
const joinTokenValidity = 1 * time.Hour

// MeetingHandler handles HTTP requests for meetings.
type MeetingHandler struct {
	cfg      *config.CallServiceConfig
	repos    repository.Manager
	provider video.Provider
}

// NewMeetingHandler creates a new meeting handler.
func NewMeetingHandler(cfg *config.CallServiceConfig, repos repository.Manager, provider video.Provider) *MeetingHandler {
	return &MeetingHandler{cfg: cfg, repos: repos, provider: provider}
}

// SetupMeetingRoutes registers meeting routes on the API subrouter.
func (h *MeetingHandler) SetupMeetingRoutes(router *mux.Router) {
	router.HandleFunc("/meetings", h.CreateMeeting).Methods("POST")
	router.HandleFunc("/meetings", h.ListMeetings).Methods("GET")
	router.HandleFunc("/meetings/{id}", h.GetMeeting).Methods("GET")
	router.HandleFunc("/meetings/{id}", h.UpdateMeeting).Methods("PUT")
	router.HandleFunc("/meetings/{id}", h.DeleteMeeting).Methods("DELETE")
	router.HandleFunc("/meetings/{id}/join-token", h.CreateJoinToken).Methods("POST")
}

// CreateMeeting schedules a new meeting. The referenced agent must exist.
func (h *MeetingHandler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.UserID == "" || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "name, user_id and agent_id are required")
		return
	}

	exists, err := h.repos.Agents().Exists(r.Context(), req.AgentID)
	if err != nil {
		logger.Base().Error("failed to check agent", zap.Error(err), zap.String("agent_id", req.AgentID))
		writeError(w, http.StatusInternalServerError, "Failed to create meeting")
		return
	}
	if !exists {
		writeError(w, http.StatusBadRequest, "Agent not found")
		return
	}

	meeting, err := h.repos.Meetings().Create(r.Context(), &req)
	if err != nil {
		logger.Base().Error("failed to create meeting", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create meeting")
		return
	}

	writeJSON(w, http.StatusCreated, meeting)
}

// GetMeeting retrieves one meeting by id.
func (h *MeetingHandler) GetMeeting(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	meeting, err := h.repos.Meetings().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrMeetingNotFound) {
			writeError(w, http.StatusNotFound, "Meeting not found")
			return
		}
		logger.Base().Error("failed to get meeting", zap.Error(err), zap.String("meeting_id", id))
		writeError(w, http.StatusInternalServerError, "Failed to get meeting")
		return
	}

	writeJSON(w, http.StatusOK, meeting)
}

// ListMeetings retrieves a page of meetings with optional filters.
func (h *MeetingHandler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := domain.MeetingStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown status filter")
		return
	}

	filter := &domain.MeetingFilter{
		UserID:   q.Get("user_id"),
		AgentID:  q.Get("agent_id"),
		Status:   status,
		Search:   q.Get("search"),
		Page:     queryInt(q.Get("page"), 1),
		PageSize: queryInt(q.Get("page_size"), 20),
	}

	page, err := h.repos.Meetings().List(r.Context(), filter)
	if err != nil {
		logger.Base().Error("failed to list meetings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list meetings")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// UpdateMeeting applies a partial update.
func (h *MeetingHandler) UpdateMeeting(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req domain.UpdateMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown status")
		return
	}
	if req.AgentID != nil {
		exists, err := h.repos.Agents().Exists(r.Context(), *req.AgentID)
		if err != nil {
			logger.Base().Error("failed to check agent", zap.Error(err), zap.String("agent_id", *req.AgentID))
			writeError(w, http.StatusInternalServerError, "Failed to update meeting")
			return
		}
		if !exists {
			writeError(w, http.StatusBadRequest, "Agent not found")
			return
		}
	}

	meeting, err := h.repos.Meetings().Update(r.Context(), id, &req)
	if err != nil {
		if errors.Is(err, repository.ErrMeetingNotFound) {
			writeError(w, http.StatusNotFound, "Meeting not found")
			return
		}
		logger.Base().Error("failed to update meeting", zap.Error(err), zap.String("meeting_id", id))
		writeError(w, http.StatusInternalServerError, "Failed to update meeting")
		return
	}

	writeJSON(w, http.StatusOK, meeting)
}

// DeleteMeeting removes a meeting. Active meetings must be ended first.
func (h *MeetingHandler) DeleteMeeting(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	meeting, err := h.repos.Meetings().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrMeetingNotFound) {
			writeError(w, http.StatusNotFound, "Meeting not found")
			return
		}
		logger.Base().Error("failed to get meeting", zap.Error(err), zap.String("meeting_id", id))
		writeError(w, http.StatusInternalServerError, "Failed to delete meeting")
		return
	}
	if meeting.Status == domain.MeetingStatusActive {
		writeError(w, http.StatusConflict, "Cannot delete an active meeting")
		return
	}

	if err := h.repos.Meetings().Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrMeetingNotFound) {
			writeError(w, http.StatusNotFound, "Meeting not found")
			return
		}
		logger.Base().Error("failed to delete meeting", zap.Error(err), zap.String("meeting_id", id))
		writeError(w, http.StatusInternalServerError, "Failed to delete meeting")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// joinTokenRequest optionally overrides the joining user; the meeting owner
// joins by default.
type joinTokenRequest struct {
	UserID string `json:"user_id"`
}

// joinTokenResponse carries everything a client needs to join the call.
type joinTokenResponse struct {
	Token    string `json:"token"`
	APIKey   string `json:"api_key"`
	CallType string `json:"call_type"`
	CallID   string `json:"call_id"`
}

// CreateJoinToken ensures the provider call exists (stamping the meeting id
// into its custom metadata, which the session-started webhook later reads)
// and issues a join token for it.
func (h *MeetingHandler) CreateJoinToken(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	meeting, err := h.repos.Meetings().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrMeetingNotFound) {
			writeError(w, http.StatusNotFound, "Meeting not found")
			return
		}
		logger.Base().Error("failed to get meeting", zap.Error(err), zap.String("meeting_id", id))
		writeError(w, http.StatusInternalServerError, "Failed to create join token")
		return
	}

	switch meeting.Status {
	case domain.MeetingStatusCompleted, domain.MeetingStatusCancelled, domain.MeetingStatusProcessing:
		writeError(w, http.StatusBadRequest, "Meeting is no longer joinable")
		return
	}

	var req joinTokenRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	userID := req.UserID
	if userID == "" {
		userID = meeting.UserID
	}

	call := h.provider.Call(video.CallTypeDefault, meeting.ID)
	if err := call.GetOrCreate(r.Context(), map[string]interface{}{"meetingId": meeting.ID}); err != nil {
		logger.Base().Error("failed to get or create call", zap.Error(err), zap.String("meeting_id", meeting.ID))
		writeError(w, http.StatusInternalServerError, "Failed to create join token")
		return
	}

	token, err := h.provider.CreateUserToken(userID, joinTokenValidity)
	if err != nil {
		logger.Base().Error("failed to create join token", zap.Error(err), zap.String("meeting_id", meeting.ID))
		writeError(w, http.StatusInternalServerError, "Failed to create join token")
		return
	}

	writeJSON(w, http.StatusOK, joinTokenResponse{
		Token:    token,
		APIKey:   h.cfg.StreamAPIKey,
		CallType: video.CallTypeDefault,
		CallID:   meeting.ID,
	})
}
