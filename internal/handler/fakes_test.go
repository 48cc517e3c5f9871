package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/NovaMeet/nova-call-service/internal/domain"
	"github.com/NovaMeet/nova-call-service/internal/repository"
	"github.com/NovaMeet/nova-call-service/internal/video"
)

// fakeMeetingRepo is an in-memory MeetingRepository used by handler tests.
type fakeMeetingRepo struct {
	meetings map[string]*domain.Meeting

	activateCalls int
	updateCalls   int
	listErr       error
}

func newFakeMeetingRepo() *fakeMeetingRepo {
	return &fakeMeetingRepo{meetings: make(map[string]*domain.Meeting)}
}

func (r *fakeMeetingRepo) Create(ctx context.Context, req *domain.CreateMeetingRequest) (*domain.Meeting, error) {
	m := &domain.Meeting{
		ID:        fmt.Sprintf("meeting-%d", len(r.meetings)+1),
		Name:      req.Name,
		UserID:    req.UserID,
		AgentID:   req.AgentID,
		Status:    domain.MeetingStatusUpcoming,
		CreatedAt: time.Now(),
	}
	r.meetings[m.ID] = m
	return m, nil
}

func (r *fakeMeetingRepo) GetByID(ctx context.Context, id string) (*domain.Meeting, error) {
	m, ok := r.meetings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrMeetingNotFound, id)
	}
	return m, nil
}

func (r *fakeMeetingRepo) List(ctx context.Context, filter *domain.MeetingFilter) (*domain.MeetingPage, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var items []*domain.Meeting
	for _, m := range r.meetings {
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.AgentID != "" && m.AgentID != filter.AgentID {
			continue
		}
		items = append(items, m)
	}
	return &domain.MeetingPage{
		Items: items, Total: int64(len(items)), Page: 1, PageSize: 20, TotalPages: 1,
	}, nil
}

func (r *fakeMeetingRepo) Update(ctx context.Context, id string, req *domain.UpdateMeetingRequest) (*domain.Meeting, error) {
	m, ok := r.meetings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrMeetingNotFound, id)
	}
	r.updateCalls++
	if req.Name != nil {
		m.Name = *req.Name
	}
	if req.AgentID != nil {
		m.AgentID = *req.AgentID
	}
	if req.Status != nil {
		m.Status = *req.Status
	}
	return m, nil
}

func (r *fakeMeetingRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.meetings[id]; !ok {
		return fmt.Errorf("%w: %s", repository.ErrMeetingNotFound, id)
	}
	delete(r.meetings, id)
	return nil
}

func (r *fakeMeetingRepo) Activate(ctx context.Context, id string, startedAt time.Time) (*domain.Meeting, error) {
	m, ok := r.meetings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrMeetingNotFound, id)
	}
	for _, blocked := range domain.ActivationBlockedStatuses() {
		if m.Status == blocked {
			return nil, fmt.Errorf("%w: %s", repository.ErrMeetingNotFound, id)
		}
	}
	r.activateCalls++
	m.Status = domain.MeetingStatusActive
	m.StartedAt = &startedAt
	return m, nil
}

// fakeAgentRepo is an in-memory AgentRepository.
type fakeAgentRepo struct {
	agents   map[string]*domain.Agent
	getCalls int
}

func newFakeAgentRepo() *fakeAgentRepo {
	return &fakeAgentRepo{agents: make(map[string]*domain.Agent)}
}

func (r *fakeAgentRepo) Create(ctx context.Context, req *domain.CreateAgentRequest) (*domain.Agent, error) {
	a := &domain.Agent{
		ID:           fmt.Sprintf("agent-%d", len(r.agents)+1),
		UserID:       req.UserID,
		Name:         req.Name,
		Instructions: req.Instructions,
		CreatedAt:    time.Now(),
	}
	r.agents[a.ID] = a
	return a, nil
}

func (r *fakeAgentRepo) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	r.getCalls++
	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrAgentNotFound, id)
	}
	return a, nil
}

func (r *fakeAgentRepo) List(ctx context.Context, filter *domain.AgentFilter) (*domain.AgentPage, error) {
	var items []*domain.Agent
	for _, a := range r.agents {
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		items = append(items, a)
	}
	return &domain.AgentPage{
		Items: items, Total: int64(len(items)), Page: 1, PageSize: 20, TotalPages: 1,
	}, nil
}

func (r *fakeAgentRepo) Update(ctx context.Context, id string, req *domain.UpdateAgentRequest) (*domain.Agent, error) {
	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrAgentNotFound, id)
	}
	if req.Name != nil {
		a.Name = *req.Name
	}
	if req.Instructions != nil {
		a.Instructions = *req.Instructions
	}
	return a, nil
}

func (r *fakeAgentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.agents[id]; !ok {
		return fmt.Errorf("%w: %s", repository.ErrAgentNotFound, id)
	}
	delete(r.agents, id)
	return nil
}

func (r *fakeAgentRepo) Exists(ctx context.Context, id string) (bool, error) {
	_, ok := r.agents[id]
	return ok, nil
}

// fakeRepoManager bundles the fakes behind repository.Manager.
type fakeRepoManager struct {
	meetings *fakeMeetingRepo
	agents   *fakeAgentRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{meetings: newFakeMeetingRepo(), agents: newFakeAgentRepo()}
}

func (m *fakeRepoManager) Meetings() repository.MeetingRepository { return m.meetings }
func (m *fakeRepoManager) Agents() repository.AgentRepository     { return m.agents }

func (m *fakeRepoManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos repository.Manager) error) error {
	return fn(ctx, m)
}

func (m *fakeRepoManager) Ping(ctx context.Context) error { return nil }
func (m *fakeRepoManager) Close() error                   { return nil }

// fakeCall records provider call interactions.
type fakeCall struct {
	callType string
	id       string

	getOrCreateCalls int
	endCalls         int
	endErr           error
	lastCustom       map[string]interface{}
}

func (c *fakeCall) Type() string { return c.callType }
func (c *fakeCall) ID() string   { return c.id }
func (c *fakeCall) CID() string  { return c.callType + ":" + c.id }

func (c *fakeCall) GetOrCreate(ctx context.Context, custom map[string]interface{}) error {
	c.getOrCreateCalls++
	c.lastCustom = custom
	return nil
}

func (c *fakeCall) End(ctx context.Context) error {
	c.endCalls++
	return c.endErr
}

// fakeSession records realtime session interactions.
type fakeSession struct {
	updates    []video.SessionConfig
	updateErr  error
	inputs     []string
	sendErr    error
	closeCalls int
}

func (s *fakeSession) UpdateSession(ctx context.Context, cfg video.SessionConfig) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, cfg)
	return nil
}

func (s *fakeSession) SendInputText(ctx context.Context, text string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.inputs = append(s.inputs, text)
	return nil
}

func (s *fakeSession) Close() error {
	s.closeCalls++
	return nil
}

// fakeProvider implements video.Provider; signatures equal to validSig pass.
type fakeProvider struct {
	validSig string

	verifyCalls  int
	calls        []*fakeCall
	callEndErr   error
	connectCalls int
	connectErr   error
	connectOpts  []video.ConnectOptions
	session      *fakeSession
	tokenCalls   int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{validSig: "valid-signature", session: &fakeSession{}}
}

func (p *fakeProvider) VerifyWebhook(body []byte, signature string) bool {
	p.verifyCalls++
	return signature == p.validSig
}

func (p *fakeProvider) Call(callType, id string) video.Call {
	c := &fakeCall{callType: callType, id: id, endErr: p.callEndErr}
	p.calls = append(p.calls, c)
	return c
}

func (p *fakeProvider) ConnectRealtimeAgent(ctx context.Context, call video.Call, opts video.ConnectOptions) (video.RealtimeSession, error) {
	p.connectCalls++
	p.connectOpts = append(p.connectOpts, opts)
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	return p.session, nil
}

func (p *fakeProvider) CreateUserToken(userID string, validity time.Duration) (string, error) {
	p.tokenCalls++
	return "token-" + userID, nil
}

func (p *fakeProvider) totalProviderCalls() int {
	n := p.connectCalls + p.tokenCalls
	for _, c := range p.calls {
		n += c.getOrCreateCalls + c.endCalls
	}
	return n
}
