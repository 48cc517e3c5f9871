package domain

import (
	"time"
)

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

const (
	MeetingStatusUpcoming   MeetingStatus = "upcoming"
	MeetingStatusActive     MeetingStatus = "active"
	MeetingStatusProcessing MeetingStatus = "processing"
	MeetingStatusCompleted  MeetingStatus = "completed"
	MeetingStatusCancelled  MeetingStatus = "cancelled"
)

// Valid reports whether s is one of the known lifecycle states.
func (s MeetingStatus) Valid() bool {
	switch s {
	case MeetingStatusUpcoming, MeetingStatusActive, MeetingStatusProcessing,
		MeetingStatusCompleted, MeetingStatusCancelled:
		return true
	}
	return false
}

// ActivationBlockedStatuses is the set of states from which a meeting must
// never transition to active. A session-started event for a meeting in any of
// these states is rejected, which makes activation at-most-once per meeting.
func ActivationBlockedStatuses() []MeetingStatus {
	return []MeetingStatus{
		MeetingStatusCompleted,
		MeetingStatusActive,
		MeetingStatusCancelled,
		MeetingStatusProcessing,
	}
}

// Meeting represents a scheduled video call owned by a user and hosted by the
// video provider under call id == meeting id.
type Meeting struct {
	ID      string `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name    string `json:"name" gorm:"type:varchar(255);not null"`
	UserID  string `json:"user_id" gorm:"type:varchar(255);not null;index"`
	AgentID string `json:"agent_id" gorm:"type:uuid;not null;index"`
	Agent   *Agent `json:"agent,omitempty" gorm:"foreignKey:AgentID"`

	Status    MeetingStatus `json:"status" gorm:"type:varchar(32);not null;default:'upcoming';index"`
	StartedAt *time.Time    `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at"`

	// Populated by the post-call processing pipeline, not by this service.
	TranscriptURL *string `json:"transcript_url,omitempty" gorm:"type:text"`
	RecordingURL  *string `json:"recording_url,omitempty" gorm:"type:text"`
	Summary       *string `json:"summary,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for Meeting.
func (Meeting) TableName() string {
	return "meetings"
}

// CreateMeetingRequest represents the request to schedule a new meeting.
type CreateMeetingRequest struct {
	Name    string `json:"name" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
	AgentID string `json:"agent_id" validate:"required"`
}

// UpdateMeetingRequest represents a partial update to a meeting. Nil fields
// are left untouched.
type UpdateMeetingRequest struct {
	Name    *string        `json:"name,omitempty"`
	AgentID *string        `json:"agent_id,omitempty"`
	Status  *MeetingStatus `json:"status,omitempty"`
}

// MeetingFilter narrows List queries.
type MeetingFilter struct {
	UserID   string
	AgentID  string
	Status   MeetingStatus
	Search   string
	Page     int
	PageSize int
}

// MeetingPage is a page of meetings plus the unpaginated total.
type MeetingPage struct {
	Items      []*Meeting `json:"items"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}
