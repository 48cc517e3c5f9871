package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NovaMeet/nova-call-service/internal/config"
	"github.com/NovaMeet/nova-call-service/internal/repository"
	"github.com/NovaMeet/nova-call-service/internal/session"
	"github.com/NovaMeet/nova-call-service/internal/video"
	"github.com/NovaMeet/nova-call-service/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Event types delivered by the video provider. Anything else is acknowledged
// without side effects so new provider events never break the endpoint.
const (
	eventSessionStarted  = "call.session_started"
	eventParticipantLeft = "call.session_participant_left"
	eventClosedCaption   = "call.closed_caption"
)

// sessionStartedEvent carries the meeting id in the call's custom metadata,
// set when the call was created.
type sessionStartedEvent struct {
	Call struct {
		Custom struct {
			MeetingID string `json:"meetingId"`
		} `json:"custom"`
	} `json:"call"`
}

// cidEvent covers events addressed by the composite call id "<type>:<id>".
type cidEvent struct {
	CallCID       string `json:"call_cid"`
	ClosedCaption struct {
		Text string `json:"text"`
	} `json:"closed_caption"`
}

// VideoWebhookHandler processes call lifecycle callbacks from the video
// provider: it activates meetings when a session starts, bridges the meeting's
// agent into the call, and ends the call when a participant leaves. It keeps
// no per-request state of its own; every invocation re-derives what it needs
// from the store and the provider.
type VideoWebhookHandler struct {
	cfg      *config.CallServiceConfig
	repos    repository.Manager
	provider video.Provider
	registry *session.Registry
}

// NewVideoWebhookHandler creates the webhook handler.
func NewVideoWebhookHandler(cfg *config.CallServiceConfig, repos repository.Manager, provider video.Provider, registry *session.Registry) *VideoWebhookHandler {
	return &VideoWebhookHandler{
		cfg:      cfg,
		repos:    repos,
		provider: provider,
		registry: registry,
	}
}

// SetupWebhookRoutes registers the webhook endpoint.
func (h *VideoWebhookHandler) SetupWebhookRoutes(router *mux.Router) {
	router.HandleFunc("/webhook", h.HandleVideoWebhook).Methods("POST")
}

// HandleVideoWebhook is the single entry point for provider callbacks.
func (h *VideoWebhookHandler) HandleVideoWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("x-signature")
	apiKey := r.Header.Get("x-api-key")
	if signature == "" || apiKey == "" {
		writeError(w, http.StatusBadRequest, "Missing signature or API key")
		return
	}

	// The signature covers the exact bytes on the wire, so verification has
	// to happen before any parsing.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if !h.provider.VerifyWebhook(body, signature) {
		logger.Base().Warn("webhook signature verification failed", zap.String("remote_addr", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// A missing or non-string type falls through to the ack below.
	eventType, _ := payload["type"].(string)
	logger.Base().Debug("webhook event received", zap.String("type", eventType))

	switch eventType {
	case eventSessionStarted:
		if !h.handleSessionStarted(r.Context(), w, body) {
			return
		}
	case eventParticipantLeft:
		if !h.handleParticipantLeft(r.Context(), w, body) {
			return
		}
	case eventClosedCaption:
		if h.cfg.CaptionBridgeEnabled {
			if !h.handleClosedCaption(r.Context(), w, body) {
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSessionStarted activates the meeting and attaches its agent to the
// live call. Returns false when a response has already been written.
func (h *VideoWebhookHandler) handleSessionStarted(ctx context.Context, w http.ResponseWriter, body []byte) bool {
	var event sessionStartedEvent
	// Field-level mismatches leave MeetingID empty and are reported below;
	// the body itself already parsed as JSON.
	json.Unmarshal(body, &event)

	meetingID := event.Call.Custom.MeetingID
	if meetingID == "" {
		writeError(w, http.StatusBadRequest, "Missing meetingId")
		return false
	}

	// One conditional update: only meetings outside the blocked status set
	// transition to active, so a redelivered start event cannot re-activate.
	meeting, err := h.repos.Meetings().Activate(ctx, meetingID, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrMeetingNotFound) {
			writeError(w, http.StatusBadRequest, "Meeting not found")
			return false
		}
		logger.Base().Error("failed to activate meeting", zap.Error(err), zap.String("meeting_id", meetingID))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return false
	}

	agent, err := h.repos.Agents().GetByID(ctx, meeting.AgentID)
	if err != nil {
		if errors.Is(err, repository.ErrAgentNotFound) {
			writeError(w, http.StatusBadRequest, "Agent not found")
			return false
		}
		logger.Base().Error("failed to load agent", zap.Error(err), zap.String("agent_id", meeting.AgentID))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return false
	}

	call := h.provider.Call(video.CallTypeDefault, meetingID)
	rtSession, err := h.provider.ConnectRealtimeAgent(ctx, call, video.ConnectOptions{
		OpenAIAPIKey: h.cfg.OpenAIAPIKey,
		AgentUserID:  agent.ID,
	})
	if err != nil {
		// The meeting is already active at this point; there is no rollback.
		// The next start event will be rejected by the status guard, so the
		// operator has to resolve this manually or wait for call end.
		logger.Base().Error("failed to connect realtime agent",
			zap.Error(err),
			zap.String("meeting_id", meetingID),
			zap.String("agent_id", agent.ID),
		)
		writeError(w, http.StatusInternalServerError, "Failed to connect agent")
		return false
	}

	if err := rtSession.UpdateSession(ctx, video.SessionConfig{Instructions: agent.Instructions}); err != nil {
		logger.Base().Error("failed to configure realtime agent", zap.Error(err), zap.String("meeting_id", meetingID))
		rtSession.Close()
		writeError(w, http.StatusInternalServerError, "Failed to configure agent")
		return false
	}

	if h.registry != nil {
		h.registry.Register(ctx, meetingID, rtSession)
	}

	logger.Base().Info("meeting activated and agent attached",
		zap.String("meeting_id", meetingID),
		zap.String("agent_id", agent.ID),
	)
	return true
}

// handleParticipantLeft ends the provider call for the meeting. The meeting
// record is not touched here; ending the call triggers the provider's own
// follow-up events which are handled by the post-call pipeline.
func (h *VideoWebhookHandler) handleParticipantLeft(ctx context.Context, w http.ResponseWriter, body []byte) bool {
	var event cidEvent
	json.Unmarshal(body, &event)

	meetingID := meetingIDFromCID(event.CallCID)
	if meetingID == "" {
		writeError(w, http.StatusBadRequest, "Missing meetingId")
		return false
	}

	call := h.provider.Call(video.CallTypeDefault, meetingID)
	if err := call.End(ctx); err != nil {
		logger.Base().Error("failed to end call", zap.Error(err), zap.String("meeting_id", meetingID))
		writeError(w, http.StatusInternalServerError, "Failed to end call")
		return false
	}

	if h.registry != nil {
		h.registry.Remove(ctx, meetingID)
	}

	logger.Base().Info("call ended", zap.String("meeting_id", meetingID))
	return true
}

// handleClosedCaption forwards live caption text to the meeting's realtime
// session. Only reached when the caption bridge is enabled.
func (h *VideoWebhookHandler) handleClosedCaption(ctx context.Context, w http.ResponseWriter, body []byte) bool {
	var event cidEvent
	json.Unmarshal(body, &event)

	meetingID := meetingIDFromCID(event.CallCID)
	text := event.ClosedCaption.Text
	if meetingID == "" || text == "" {
		writeError(w, http.StatusBadRequest, "Caption missing data")
		return false
	}

	if err := h.registry.Forward(ctx, meetingID, text); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			writeError(w, http.StatusBadRequest, "No agent found")
			return false
		}
		// Delivery failures are tolerated; captions are best-effort.
		logger.Base().Warn("failed to forward caption", zap.Error(err), zap.String("meeting_id", meetingID))
	}

	return true
}

// meetingIDFromCID extracts the call id from a "<type>:<id>" composite.
func meetingIDFromCID(cid string) string {
	parts := strings.SplitN(cid, ":", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
