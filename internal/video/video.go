// Package video defines the capabilities this service requires from the
// video-calling provider. Handlers depend on these interfaces so tests can
// substitute fakes for the real provider client.
package video

import (
	"context"
	"time"
)

// CallTypeDefault is the provider call type used for all meetings; the call
// id is always the meeting id.
const CallTypeDefault = "default"

// ConnectOptions carries what the provider needs to bridge an AI backend
// into a call.
type ConnectOptions struct {
	// OpenAIAPIKey is the credential for the realtime AI backend, read from
	// process configuration at call time.
	OpenAIAPIKey string
	// AgentUserID is the provider-side user the session acts as.
	AgentUserID string
}

// SessionConfig is the behavioral configuration pushed onto an attached
// realtime session.
type SessionConfig struct {
	Instructions string `json:"instructions"`
}

// Provider is the video-calling collaborator.
type Provider interface {
	// VerifyWebhook checks the webhook signature over the exact raw body
	// bytes the provider signed.
	VerifyWebhook(body []byte, signature string) bool

	// Call references (without creating) a call by type and id.
	Call(callType, id string) Call

	// ConnectRealtimeAgent attaches a realtime AI session to the call.
	ConnectRealtimeAgent(ctx context.Context, call Call, opts ConnectOptions) (RealtimeSession, error)

	// CreateUserToken issues a short-lived join token for a provider user.
	CreateUserToken(userID string, validity time.Duration) (string, error)
}

// Call is a handle to a provider-owned call.
type Call interface {
	Type() string
	ID() string
	// CID is the composite identifier "<type>:<id>".
	CID() string

	// GetOrCreate ensures the call exists, attaching custom metadata on
	// first creation.
	GetOrCreate(ctx context.Context, custom map[string]interface{}) error

	// End terminates the call for all participants.
	End(ctx context.Context) error
}

// RealtimeSession is a live bridge between an AI backend and a call.
type RealtimeSession interface {
	// UpdateSession replaces the session's behavioral configuration.
	UpdateSession(ctx context.Context, cfg SessionConfig) error

	// SendInputText forwards conversational text (e.g. a live caption) to
	// the session.
	SendInputText(ctx context.Context, text string) error

	// Close tears the bridge down. Safe to call more than once.
	Close() error
}
