package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NovaMeet/nova-call-service/internal/video"
	redispkg "github.com/NovaMeet/nova-call-service/pkg/redis"
)

// stubSession records interactions for registry tests.
type stubSession struct {
	mu         sync.Mutex
	inputs     []string
	closeCalls int
}

func (s *stubSession) UpdateSession(ctx context.Context, cfg video.SessionConfig) error { return nil }

func (s *stubSession) SendInputText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, text)
	return nil
}

func (s *stubSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

func (s *stubSession) recorded() ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...), s.closeCalls
}

// memoryRedis is an in-memory stand-in for the Redis service. Publish invokes
// matching subscribers synchronously, which makes relay tests deterministic.
type memoryRedis struct {
	mu       sync.Mutex
	values   map[string]string
	handlers map[string][]func(payload string)
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{
		values:   make(map[string]string),
		handlers: make(map[string][]func(payload string)),
	}
}

func (r *memoryRedis) GetValue(ctx context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[key]
	if !ok {
		return "", redispkg.ErrKeyNotExist
	}
	return v, nil
}

func (r *memoryRedis) SetValue(ctx context.Context, key string, value string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

func (r *memoryRedis) DelValue(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
	return nil
}

func (r *memoryRedis) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	r.mu.Lock()
	handlers := append([]func(string){}, r.handlers[channel]...)
	r.mu.Unlock()
	for _, h := range handlers {
		h(string(data))
	}
	return nil
}

func (r *memoryRedis) Subscribe(ctx context.Context, channel string, handler func(payload string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[channel] = append(r.handlers[channel], handler)
	return nil
}

func TestForwardLocalSession(t *testing.T) {
	reg := NewRegistry(nil, "pod-a", time.Hour)
	s := &stubSession{}
	reg.Register(context.Background(), "meeting-1", s)

	require.NoError(t, reg.Forward(context.Background(), "meeting-1", "hello"))

	inputs, _ := s.recorded()
	assert.Equal(t, []string{"hello"}, inputs)
}

func TestForwardNoSession(t *testing.T) {
	reg := NewRegistry(nil, "pod-a", time.Hour)

	err := reg.Forward(context.Background(), "meeting-1", "hello")

	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRegisterReplacesAndClosesPrevious(t *testing.T) {
	reg := NewRegistry(nil, "pod-a", time.Hour)
	first := &stubSession{}
	second := &stubSession{}

	reg.Register(context.Background(), "meeting-1", first)
	reg.Register(context.Background(), "meeting-1", second)

	_, closes := first.recorded()
	assert.Equal(t, 1, closes)
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, reg.Forward(context.Background(), "meeting-1", "hi"))
	inputs, _ := second.recorded()
	assert.Equal(t, []string{"hi"}, inputs)
}

func TestRemoveClosesSession(t *testing.T) {
	reg := NewRegistry(nil, "pod-a", time.Hour)
	s := &stubSession{}
	reg.Register(context.Background(), "meeting-1", s)

	reg.Remove(context.Background(), "meeting-1")

	_, closes := s.recorded()
	assert.Equal(t, 1, closes)
	assert.Zero(t, reg.Len())
	assert.ErrorIs(t, reg.Forward(context.Background(), "meeting-1", "x"), ErrNoSession)
}

func TestRegisterRecordsOwnerInRedis(t *testing.T) {
	redis := newMemoryRedis()
	reg := NewRegistry(redis, "pod-a", time.Hour)
	reg.Register(context.Background(), "meeting-1", &stubSession{})

	owner, err := redis.GetValue(context.Background(), ownerKey("meeting-1"))
	require.NoError(t, err)
	assert.Equal(t, "pod-a", owner)

	reg.Remove(context.Background(), "meeting-1")
	_, err = redis.GetValue(context.Background(), ownerKey("meeting-1"))
	assert.ErrorIs(t, err, redispkg.ErrKeyNotExist)
}

func TestForwardRelaysToOwningPod(t *testing.T) {
	redis := newMemoryRedis()

	owner := NewRegistry(redis, "pod-a", time.Hour)
	s := &stubSession{}
	owner.Register(context.Background(), "meeting-1", s)

	other := NewRegistry(redis, "pod-b", time.Hour)
	require.NoError(t, other.Forward(context.Background(), "meeting-1", "relayed text"))

	inputs, _ := s.recorded()
	assert.Equal(t, []string{"relayed text"}, inputs)
}

func TestForwardNoOwnerAnywhere(t *testing.T) {
	redis := newMemoryRedis()
	reg := NewRegistry(redis, "pod-a", time.Hour)

	err := reg.Forward(context.Background(), "meeting-1", "hello")

	assert.ErrorIs(t, err, ErrNoSession)
}

func TestForwardStaleOwnerMarker(t *testing.T) {
	redis := newMemoryRedis()
	reg := NewRegistry(redis, "pod-a", time.Hour)
	// Marker claims this pod owns the session, but no local session exists.
	require.NoError(t, redis.SetValue(context.Background(), ownerKey("meeting-1"), "pod-a", 0))

	err := reg.Forward(context.Background(), "meeting-1", "hello")

	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSweepClosesExpiredSessions(t *testing.T) {
	reg := NewRegistry(nil, "pod-a", 10*time.Millisecond)
	s := &stubSession{}
	reg.Register(context.Background(), "meeting-1", s)

	time.Sleep(25 * time.Millisecond)
	reg.sweep(context.Background())

	_, closes := s.recorded()
	assert.Equal(t, 1, closes)
	assert.Zero(t, reg.Len())
}

func TestSweepKeepsFreshSessions(t *testing.T) {
	reg := NewRegistry(nil, "pod-a", time.Hour)
	reg.Register(context.Background(), "meeting-1", &stubSession{})

	reg.sweep(context.Background())

	assert.Equal(t, 1, reg.Len())
}
