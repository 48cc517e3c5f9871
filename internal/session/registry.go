// Package session tracks the realtime AI sessions this instance has attached
// to live calls, keyed by meeting id. The registry is what lets later webhook
// deliveries (captions, call end) reach a session that was opened by an
// earlier delivery.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NovaMeet/nova-call-service/internal/video"
	"github.com/NovaMeet/nova-call-service/pkg/logger"
	redispkg "github.com/NovaMeet/nova-call-service/pkg/redis"
	"go.uber.org/zap"
)

const (
	ownerKeyPrefix     = "nova:call:rt_owner"
	inputChannelPrefix = "nova:call:rt_input"
)

// ErrNoSession is returned by Forward when no session is registered for the
// meeting anywhere.
var ErrNoSession = errors.New("no realtime session for meeting")

// inputMessage is the relay payload published when the session lives on
// another instance.
type inputMessage struct {
	MeetingID string `json:"meetingId"`
	Text      string `json:"text"`
}

type entry struct {
	session      video.RealtimeSession
	registeredAt time.Time
	cancelSub    context.CancelFunc
}

// Registry holds this instance's live sessions. With Redis configured it also
// records which instance owns each meeting's session and relays input to the
// owner over pub/sub; without Redis it is purely instance-local.
type Registry struct {
	mu    sync.RWMutex
	local map[string]*entry

	redisSvc redispkg.ServiceInterface
	podID    string
	maxAge   time.Duration
}

// NewRegistry creates a session registry. redisSvc may be nil.
func NewRegistry(redisSvc redispkg.ServiceInterface, podID string, maxAge time.Duration) *Registry {
	return &Registry{
		local:    make(map[string]*entry),
		redisSvc: redisSvc,
		podID:    podID,
		maxAge:   maxAge,
	}
}

func ownerKey(meetingID string) string {
	return fmt.Sprintf("%s:%s", ownerKeyPrefix, meetingID)
}

func inputChannel(meetingID string) string {
	return fmt.Sprintf("%s:%s", inputChannelPrefix, meetingID)
}

// Register stores the session under the meeting id, replacing (and closing)
// any previous one for the same meeting.
func (r *Registry) Register(ctx context.Context, meetingID string, s video.RealtimeSession) {
	r.mu.Lock()
	if old, ok := r.local[meetingID]; ok {
		old.close()
	}
	e := &entry{session: s, registeredAt: time.Now()}
	r.local[meetingID] = e
	r.mu.Unlock()

	if r.redisSvc != nil {
		if err := r.redisSvc.SetValue(ctx, ownerKey(meetingID), r.podID, r.maxAge); err != nil {
			logger.Base().Warn("failed to record session owner",
				zap.Error(err), zap.String("meeting_id", meetingID))
		}

		subCtx, cancel := context.WithCancel(context.Background())
		e.cancelSub = cancel
		err := r.redisSvc.Subscribe(subCtx, inputChannel(meetingID), func(payload string) {
			var msg inputMessage
			if err := json.Unmarshal([]byte(payload), &msg); err != nil {
				logger.Base().Error("failed to unmarshal relayed input", zap.Error(err))
				return
			}
			if err := r.forwardLocal(context.Background(), msg.MeetingID, msg.Text); err != nil {
				logger.Base().Warn("failed to deliver relayed input",
					zap.Error(err), zap.String("meeting_id", msg.MeetingID))
			}
		})
		if err != nil {
			logger.Base().Warn("failed to subscribe to input relay",
				zap.Error(err), zap.String("meeting_id", meetingID))
		}
	}

	logger.Base().Info("realtime session registered",
		zap.String("meeting_id", meetingID), zap.String("pod_id", r.podID))
}

// Remove closes and forgets the session for a meeting, if this instance holds
// one, and clears the owner marker.
func (r *Registry) Remove(ctx context.Context, meetingID string) {
	r.mu.Lock()
	e, ok := r.local[meetingID]
	if ok {
		delete(r.local, meetingID)
	}
	r.mu.Unlock()

	if ok {
		e.close()
		logger.Base().Info("realtime session removed", zap.String("meeting_id", meetingID))
	}

	if r.redisSvc != nil {
		if err := r.redisSvc.DelValue(ctx, ownerKey(meetingID)); err != nil {
			logger.Base().Warn("failed to clear session owner",
				zap.Error(err), zap.String("meeting_id", meetingID))
		}
	}
}

// Forward delivers input text to the meeting's session: directly when this
// instance owns it, via the Redis relay when another instance does.
func (r *Registry) Forward(ctx context.Context, meetingID, text string) error {
	if err := r.forwardLocal(ctx, meetingID, text); err == nil || !errors.Is(err, ErrNoSession) {
		return err
	}

	if r.redisSvc == nil {
		return ErrNoSession
	}

	owner, err := r.redisSvc.GetValue(ctx, ownerKey(meetingID))
	if err != nil {
		if errors.Is(err, redispkg.ErrKeyNotExist) {
			return ErrNoSession
		}
		return fmt.Errorf("failed to look up session owner: %w", err)
	}
	if owner == r.podID {
		// Marker points at us but the local session is gone; treat as absent.
		return ErrNoSession
	}

	return r.redisSvc.Publish(ctx, inputChannel(meetingID), inputMessage{
		MeetingID: meetingID,
		Text:      text,
	})
}

func (r *Registry) forwardLocal(ctx context.Context, meetingID, text string) error {
	r.mu.RLock()
	e, ok := r.local[meetingID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return e.session.SendInputText(ctx, text)
}

// Len reports the number of locally held sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.local)
}

// StartSweeper closes sessions older than the registry max age. Backstop for
// calls whose end event never arrived; runs until ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

func (r *Registry) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.maxAge)

	r.mu.Lock()
	var expired []string
	for id, e := range r.local {
		if e.registeredAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		logger.Base().Warn("sweeping expired realtime session", zap.String("meeting_id", id))
		r.Remove(ctx, id)
	}
}

func (e *entry) close() {
	if e.cancelSub != nil {
		e.cancelSub()
	}
	if err := e.session.Close(); err != nil {
		logger.Base().Warn("error closing realtime session", zap.Error(err))
	}
}
