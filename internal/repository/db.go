package repository

import (
	"context"
	"errors"
	"time"

	"github.com/NovaMeet/nova-call-service/internal/domain"
	"gorm.io/gorm"
)

// Sentinel errors surfaced to handlers. Wrapped repository errors remain
// errors.Is-compatible with these.
var (
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrAgentNotFound   = errors.New("agent not found")
)

// MeetingRepository defines storage operations for meetings.
type MeetingRepository interface {
	Create(ctx context.Context, req *domain.CreateMeetingRequest) (*domain.Meeting, error)
	GetByID(ctx context.Context, id string) (*domain.Meeting, error)
	List(ctx context.Context, filter *domain.MeetingFilter) (*domain.MeetingPage, error)
	Update(ctx context.Context, id string, req *domain.UpdateMeetingRequest) (*domain.Meeting, error)
	Delete(ctx context.Context, id string) error

	// Activate transitions a meeting to active and stamps startedAt as one
	// conditional update: it only succeeds while the current status is
	// outside domain.ActivationBlockedStatuses. Returns ErrMeetingNotFound
	// when no eligible row exists, which covers both unknown ids and
	// redelivered session-started events.
	Activate(ctx context.Context, id string, startedAt time.Time) (*domain.Meeting, error)
}

// AgentRepository defines storage operations for agents.
type AgentRepository interface {
	Create(ctx context.Context, req *domain.CreateAgentRequest) (*domain.Agent, error)
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	List(ctx context.Context, filter *domain.AgentFilter) (*domain.AgentPage, error)
	Update(ctx context.Context, id string, req *domain.UpdateAgentRequest) (*domain.Agent, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// Manager combines all repositories behind one dependency.
type Manager interface {
	Meetings() MeetingRepository
	Agents() AgentRepository

	WithTx(ctx context.Context, fn func(ctx context.Context, repos Manager) error) error
	Ping(ctx context.Context) error
	Close() error
}

// GormManager implements Manager using GORM.
type GormManager struct {
	db          *gorm.DB
	meetingRepo *GormMeetingRepository
	agentRepo   *GormAgentRepository
}

// NewGormManager creates a repository manager on top of an open connection.
func NewGormManager(db *gorm.DB) *GormManager {
	return &GormManager{
		db:          db,
		meetingRepo: NewGormMeetingRepository(db),
		agentRepo:   NewGormAgentRepository(db),
	}
}

// Meetings returns the meeting repository.
func (m *GormManager) Meetings() MeetingRepository {
	return m.meetingRepo
}

// Agents returns the agent repository.
func (m *GormManager) Agents() AgentRepository {
	return m.agentRepo
}

// WithTx runs fn inside a database transaction, handing it a manager bound to
// the transaction connection.
func (m *GormManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos Manager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewGormManager(tx))
	})
}

// Ping checks the database connection.
func (m *GormManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (m *GormManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
