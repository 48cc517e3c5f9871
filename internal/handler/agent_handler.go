package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/NovaMeet/nova-call-service/internal/domain"
	"github.com/NovaMeet/nova-call-service/internal/repository"
	"github.com/NovaMeet/nova-call-service/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AgentHandler handles HTTP requests for agents.
type AgentHandler struct {
	repos repository.Manager
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(repos repository.Manager) *AgentHandler {
	return &AgentHandler{repos: repos}
}

// SetupAgentRoutes registers agent CRUD routes on the API subrouter.
func (h *AgentHandler) SetupAgentRoutes(router *mux.Router) {
	router.HandleFunc("/agents", h.CreateAgent).Methods("POST")
	router.HandleFunc("/agents", h.ListAgents).Methods("GET")
	router.HandleFunc("/agents/{id}", h.GetAgent).Methods("GET")
	router.HandleFunc("/agents/{id}", h.UpdateAgent).Methods("PUT")
	router.HandleFunc("/agents/{id}", h.DeleteAgent).Methods("DELETE")
}

// CreateAgent creates a new agent persona.
func (h *AgentHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Name == "" || req.Instructions == "" {
		writeError(w, http.StatusBadRequest, "user_id, name and instructions are required")
		return
	}

	agent, err := h.repos.Agents().Create(r.Context(), &req)
	if err != nil {
		logger.Base().Error("failed to create agent", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create agent")
		return
	}

	writeJSON(w, http.StatusCreated, agent)
}

// GetAgent retrieves one agent by id.
func (h *AgentHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	agent, err := h.repos.Agents().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "Agent not found")
			return
		}
		logger.Base().Error("failed to get agent", zap.Error(err), zap.String("agent_id", id))
		writeError(w, http.StatusInternalServerError, "Failed to get agent")
		return
	}

	writeJSON(w, http.StatusOK, agent)
}

// ListAgents retrieves a page of agents.
func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &domain.AgentFilter{
		UserID:   q.Get("user_id"),
		Search:   q.Get("search"),
		Page:     queryInt(q.Get("page"), 1),
		PageSize: queryInt(q.Get("page_size"), 20),
	}

	page, err := h.repos.Agents().List(r.Context(), filter)
	if err != nil {
		logger.Base().Error("failed to list agents", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list agents")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// UpdateAgent applies a partial update.
func (h *AgentHandler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req domain.UpdateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	agent, err := h.repos.Agents().Update(r.Context(), id, &req)
	if err != nil {
		if errors.Is(err, repository.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "Agent not found")
			return
		}
		logger.Base().Error("failed to update agent", zap.Error(err), zap.String("agent_id", id))
		writeError(w, http.StatusInternalServerError, "Failed to update agent")
		return
	}

	writeJSON(w, http.StatusOK, agent)
}

// DeleteAgent removes an agent.
func (h *AgentHandler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.repos.Agents().Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "Agent not found")
			return
		}
		logger.Base().Error("failed to delete agent", zap.Error(err), zap.String("agent_id", id))
		writeError(w, http.StatusInternalServerError, "Failed to delete agent")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// queryInt parses a query parameter as int, falling back on a default.
func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
