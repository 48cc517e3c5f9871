package config

import (
	"os"
	"strconv"
	"time"
)

// CallServiceConfig holds process-wide configuration for the call gateway.
// It is built once at startup and injected into the handler layer; nothing
// below the handlers reads the environment directly.
type CallServiceConfig struct {
	Port string

	// Video provider credentials. The webhook signature and all outbound
	// provider calls are authenticated with this key pair.
	StreamAPIKey      string
	StreamAPISecret   string
	StreamBaseURL     string
	StreamRealtimeURL string

	// Credential for the realtime AI backend bridged into calls.
	OpenAIAPIKey string

	// Caption bridge (closed-caption forwarding to the realtime session).
	// Off by default; when off, caption events are acknowledged and ignored.
	CaptionBridgeEnabled bool

	// Max age for registered realtime sessions before the sweeper closes them.
	SessionMaxAge time.Duration

	// Instance identifier for multi-pod session routing.
	InstanceID string
}

// LoadFromEnv builds the service configuration from environment variables.
func LoadFromEnv() *CallServiceConfig {
	return &CallServiceConfig{
		Port: GetEnvOrDefault("PORT", "8080"),

		StreamAPIKey:      GetEnvOrDefault("STREAM_API_KEY", ""),
		StreamAPISecret:   GetEnvOrDefault("STREAM_API_SECRET", ""),
		StreamBaseURL:     GetEnvOrDefault("STREAM_BASE_URL", "https://video.stream-io-api.com"),
		StreamRealtimeURL: GetEnvOrDefault("STREAM_REALTIME_WS_URL", "wss://video.stream-io-api.com/video/realtime"),

		OpenAIAPIKey: GetEnvOrDefault("OPENAI_API_KEY", ""),

		CaptionBridgeEnabled: GetEnvAsBoolOrDefault("CAPTION_BRIDGE_ENABLED", false),
		SessionMaxAge:        time.Duration(GetEnvAsIntOrDefault("SESSION_MAX_AGE_MINUTES", 120)) * time.Minute,

		InstanceID: GetEnvOrDefault("INSTANCE_ID", defaultInstanceID()),
	}
}

// defaultInstanceID falls back to the pod hostname, which is unique per
// replica under Kubernetes.
func defaultInstanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "nova-call-service"
}

// GetEnvOrDefault returns the environment variable value or a default.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsIntOrDefault parses the environment variable as an int.
func GetEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// GetEnvAsBoolOrDefault parses the environment variable as a bool.
func GetEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
