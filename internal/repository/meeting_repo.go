package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NovaMeet/nova-call-service/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormMeetingRepository implements MeetingRepository using GORM.
type GormMeetingRepository struct {
	db *gorm.DB
}

// NewGormMeetingRepository creates a new GORM meeting repository.
func NewGormMeetingRepository(db *gorm.DB) *GormMeetingRepository {
	return &GormMeetingRepository{db: db}
}

// Create schedules a new meeting in the upcoming state.
func (r *GormMeetingRepository) Create(ctx context.Context, req *domain.CreateMeetingRequest) (*domain.Meeting, error) {
	meeting := &domain.Meeting{
		ID:      uuid.NewString(),
		Name:    req.Name,
		UserID:  req.UserID,
		AgentID: req.AgentID,
		Status:  domain.MeetingStatusUpcoming,
	}

	if err := r.db.WithContext(ctx).Create(meeting).Error; err != nil {
		return nil, fmt.Errorf("failed to create meeting: %w", err)
	}

	return meeting, nil
}

// GetByID retrieves a meeting with its agent preloaded.
func (r *GormMeetingRepository) GetByID(ctx context.Context, id string) (*domain.Meeting, error) {
	var meeting domain.Meeting
	if err := r.db.WithContext(ctx).Preload("Agent").First(&meeting, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMeetingNotFound, id)
		}
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}

	return &meeting, nil
}

// List retrieves a page of meetings matching the filter.
func (r *GormMeetingRepository) List(ctx context.Context, filter *domain.MeetingFilter) (*domain.MeetingPage, error) {
	if filter == nil {
		filter = &domain.MeetingFilter{}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := r.db.WithContext(ctx).Model(&domain.Meeting{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.AgentID != "" {
		query = query.Where("agent_id = ?", filter.AgentID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		query = query.Where("name ILIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count meetings: %w", err)
	}

	var meetings []*domain.Meeting
	if err := query.Preload("Agent").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&meetings).Error; err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	return &domain.MeetingPage{
		Items:      meetings,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// Update applies a partial update to a meeting.
func (r *GormMeetingRepository) Update(ctx context.Context, id string, req *domain.UpdateMeetingRequest) (*domain.Meeting, error) {
	var meeting domain.Meeting
	if err := r.db.WithContext(ctx).First(&meeting, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMeetingNotFound, id)
		}
		return nil, fmt.Errorf("failed to find meeting: %w", err)
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.AgentID != nil {
		updates["agent_id"] = *req.AgentID
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}

	if len(updates) == 0 {
		return &meeting, nil
	}

	if err := r.db.WithContext(ctx).Model(&meeting).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update meeting: %w", err)
	}

	return &meeting, nil
}

// Delete removes a meeting.
func (r *GormMeetingRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.Meeting{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete meeting: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrMeetingNotFound, id)
	}
	return nil
}

// Activate performs the guarded upcoming->active transition as a single
// conditional UPDATE so concurrent deliveries of the same session-started
// event cannot both win.
func (r *GormMeetingRepository) Activate(ctx context.Context, id string, startedAt time.Time) (*domain.Meeting, error) {
	result := r.db.WithContext(ctx).Model(&domain.Meeting{}).
		Where("id = ? AND status NOT IN ?", id, domain.ActivationBlockedStatuses()).
		Updates(map[string]interface{}{
			"status":     domain.MeetingStatusActive,
			"started_at": startedAt,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to activate meeting: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMeetingNotFound, id)
	}

	var meeting domain.Meeting
	if err := r.db.WithContext(ctx).First(&meeting, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to reload activated meeting: %w", err)
	}

	return &meeting, nil
}
