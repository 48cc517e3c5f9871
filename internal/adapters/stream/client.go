// Package stream is the HTTP/WebSocket client for the Stream Video API: call
// management, webhook signature verification, join tokens and the realtime
// agent bridge.
package stream

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NovaMeet/nova-call-service/internal/video"
	"github.com/NovaMeet/nova-call-service/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client talks to the Stream Video API. It implements video.Provider.
type Client struct {
	apiKey      string
	apiSecret   string
	baseURL     string
	realtimeURL string
	serverToken string
	httpClient  *http.Client
	dialer      *websocket.Dialer
}

// NewClient builds a provider client. The server token is minted once; Stream
// server tokens carry no expiry.
func NewClient(apiKey, apiSecret, baseURL, realtimeURL string) (*Client, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("stream api key and secret are required")
	}

	token, err := signToken(apiSecret, jwt.MapClaims{
		"server": true,
		"iat":    time.Now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign server token: %w", err)
	}

	return &Client{
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		baseURL:     strings.TrimRight(baseURL, "/"),
		realtimeURL: realtimeURL,
		serverToken: token,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		dialer:      &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}, nil
}

// VerifyWebhook checks the hex HMAC-SHA256 of the raw body against the
// x-signature header value. Comparison is constant time.
func (c *Client) VerifyWebhook(body []byte, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// Call references a call by type and id without touching the API.
func (c *Client) Call(callType, id string) video.Call {
	return &Call{client: c, callType: callType, id: id}
}

// CreateUserToken issues a join token for a provider user.
func (c *Client) CreateUserToken(userID string, validity time.Duration) (string, error) {
	now := time.Now()
	return signToken(c.apiSecret, jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(validity).Unix(),
	})
}

func signToken(secret string, claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// apiError is the error envelope Stream returns on non-2xx responses.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// doRequest sends a JSON request to the API with server auth and decodes the
// error envelope on failure.
func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := fmt.Sprintf("%s%s?api_key=%s", c.baseURL, path, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.serverToken)
	req.Header.Set("stream-auth-type", "jwt")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	var apiErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
		return fmt.Errorf("api error: status %d", resp.StatusCode)
	}

	logger.Base().Warn("stream api error",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("message", apiErr.Message),
	)
	return fmt.Errorf("api error: %s (status %d)", apiErr.Message, resp.StatusCode)
}

// Call is a handle to one provider call.
type Call struct {
	client   *Client
	callType string
	id       string
}

// Type returns the call type.
func (c *Call) Type() string { return c.callType }

// ID returns the call id.
func (c *Call) ID() string { return c.id }

// CID returns the composite call identifier.
func (c *Call) CID() string { return c.callType + ":" + c.id }

// GetOrCreate ensures the call exists, setting custom metadata on creation.
func (c *Call) GetOrCreate(ctx context.Context, custom map[string]interface{}) error {
	payload := map[string]interface{}{}
	if len(custom) > 0 {
		payload["data"] = map[string]interface{}{"custom": custom}
	}
	path := fmt.Sprintf("/api/v2/video/call/%s/%s", c.callType, c.id)
	return c.client.doRequest(ctx, http.MethodPost, path, payload)
}

// End terminates the call for all participants.
func (c *Call) End(ctx context.Context) error {
	path := fmt.Sprintf("/api/v2/video/call/%s/%s/mark_ended", c.callType, c.id)
	return c.client.doRequest(ctx, http.MethodPost, path, nil)
}
