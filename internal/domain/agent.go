package domain

import (
	"time"
)

// Agent represents an AI persona that can be attached to a live call. Its
// instructions string becomes the realtime session's behavioral configuration.
type Agent struct {
	ID           string `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID       string `json:"user_id" gorm:"type:varchar(255);not null;index"`
	Name         string `json:"name" gorm:"type:varchar(255);not null"`
	Instructions string `json:"instructions" gorm:"type:text;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for Agent.
func (Agent) TableName() string {
	return "agents"
}

// CreateAgentRequest represents the request to create a new agent.
type CreateAgentRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Instructions string `json:"instructions" validate:"required"`
}

// UpdateAgentRequest represents a partial update to an agent.
type UpdateAgentRequest struct {
	Name         *string `json:"name,omitempty"`
	Instructions *string `json:"instructions,omitempty"`
}

// AgentFilter narrows agent List queries.
type AgentFilter struct {
	UserID   string
	Search   string
	Page     int
	PageSize int
}

// AgentPage is a page of agents plus the unpaginated total.
type AgentPage struct {
	Items      []*Agent `json:"items"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}
