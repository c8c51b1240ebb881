// Package config loads cok's server and client configuration from the
// process environment.
//
// Grounded on the teacher's config.Config/DefaultConfig split (typed struct,
// a defaults constructor, a loader) combined with the env-var helper
// functions (getString/getBool/getDuration, fallback-on-empty-or-unparsable)
// from go-core-stack-mcp-auth-proxy's pkg/config. Unlike the teacher's
// JSON-file loader, cok's out-of-scope collaborators (§6 of the
// specification this mirrors) are environment variables and CLI flags, so
// the JSON path is dropped rather than kept as dead weight.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server env var names follow spec.md §6 verbatim (no COK_ prefix); client
// env var names use the COK_ prefix the spec gives them explicitly.
const (
	envHTTPPort          = "HTTP_PORT"
	envControlPort       = "WS_PORT"
	envAPIKeySecret      = "API_KEY_SECRET"
	envBaseDomain        = "BASE_DOMAIN"
	envMaxTunnels        = "MAX_TUNNELS"
	envAllowedHosts      = "ALLOWED_HOSTS"
	envHealthCheckPaths  = "HEALTH_CHECK_PATHS"
	envRequestTimeout    = "COK_REQUEST_TIMEOUT"
	envHeartbeatInterval = "COK_HEARTBEAT_INTERVAL"
	envRateLimitCap      = "COK_RATE_LIMIT_CAPACITY"
	envRateLimitRefill   = "COK_RATE_LIMIT_REFILL_PER_SECOND"
	envConnectRateLimitCap    = "COK_CONNECT_RATE_LIMIT_CAPACITY"
	envConnectRateLimitRefill = "COK_CONNECT_RATE_LIMIT_REFILL_PER_SECOND"

	defaultHTTPPort          = 8080
	defaultControlPort       = 8081
	defaultMaxTunnels        = 1000
	defaultRequestTimeout    = 30 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
	defaultRateLimitCap      = 100
	defaultRateLimitRefill   = 20.0
	// defaultConnectRateLimitCap/Refill match spec.md §8 scenario 6's connect
	// limiter exactly: burst 10, 5 connect attempts/sec per peer IP.
	defaultConnectRateLimitCap    = 10
	defaultConnectRateLimitRefill = 5.0
)

// ServerConfig holds cokd's tunable parameters. Loaded once at startup and
// shared read-only across goroutines.
type ServerConfig struct {
	HTTPPort           int
	ControlPort        int
	APIKeySecret       string
	BaseDomain         string
	MaxTunnels         int
	AllowedHosts       []string
	HealthCheckPaths   []string
	RequestTimeout     time.Duration
	HeartbeatInterval  time.Duration
	RateLimitCapacity  int
	RateLimitRefillPerSecond float64
	ConnectRateLimitCapacity int
	ConnectRateLimitRefillPerSecond float64
}

const minAPIKeySecretLength = 32

// LoadServerConfig reads ServerConfig from the environment. API_KEY_SECRET
// is required and must be at least 32 characters; every other field falls
// back to a production-sensible default.
func LoadServerConfig() (*ServerConfig, error) {
	secret := strings.TrimSpace(os.Getenv(envAPIKeySecret))
	if secret == "" {
		return nil, fmt.Errorf("config: %s is required", envAPIKeySecret)
	}
	if len(secret) < minAPIKeySecretLength {
		return nil, fmt.Errorf("config: %s must be at least %d characters", envAPIKeySecret, minAPIKeySecretLength)
	}

	return &ServerConfig{
		HTTPPort:                 getInt(envHTTPPort, defaultHTTPPort),
		ControlPort:              getInt(envControlPort, defaultControlPort),
		APIKeySecret:             secret,
		BaseDomain:               getString(envBaseDomain, "localhost"),
		MaxTunnels:               getInt(envMaxTunnels, defaultMaxTunnels),
		AllowedHosts:             getStringList(envAllowedHosts, nil),
		HealthCheckPaths:         getStringList(envHealthCheckPaths, []string{"/health", "/health/live", "/health/ready"}),
		RequestTimeout:           getDuration(envRequestTimeout, defaultRequestTimeout),
		HeartbeatInterval:        getDuration(envHeartbeatInterval, defaultHeartbeatInterval),
		RateLimitCapacity:        getInt(envRateLimitCap, defaultRateLimitCap),
		RateLimitRefillPerSecond: getFloat(envRateLimitRefill, defaultRateLimitRefill),
		ConnectRateLimitCapacity:        getInt(envConnectRateLimitCap, defaultConnectRateLimitCap),
		ConnectRateLimitRefillPerSecond: getFloat(envConnectRateLimitRefill, defaultConnectRateLimitRefill),
	}, nil
}

// ClientConfig holds cok's tunable parameters. Most fields are set by CLI
// flags (§6); the corresponding env vars are fallbacks so CI/automation can
// avoid passing secrets on the command line.
type ClientConfig struct {
	ServerURL           string
	APIKey              string
	Subdomain           string
	LocalPort           int
	ReconnectDelay      time.Duration
	MaxReconnectAttempts int
	HealthCheckInterval time.Duration
	RequestTimeout      time.Duration
	MaxConcurrentForwards int
	BreakerThreshold    int
	BreakerCooldown     time.Duration
}

// DefaultClientConfig returns production-sensible defaults with any COK_*
// env vars already applied; callers overlay CLI flags on top.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL:             getString("COK_SERVER_URL", ""),
		APIKey:                getString("COK_API_KEY", ""),
		Subdomain:             getString("COK_SUBDOMAIN", ""),
		LocalPort:             getInt("COK_LOCAL_PORT", 3000),
		ReconnectDelay:        getDuration("COK_RECONNECT_DELAY", time.Second),
		MaxReconnectAttempts:  getInt("COK_MAX_RECONNECT_ATTEMPTS", -1),
		HealthCheckInterval:   getDuration("COK_HEALTH_CHECK_INTERVAL", defaultHeartbeatInterval),
		RequestTimeout:        getDuration("COK_REQUEST_TIMEOUT", defaultRequestTimeout),
		MaxConcurrentForwards: getInt("COK_MAX_CONCURRENT_FORWARDS", 64),
		BreakerThreshold:      getInt("COK_BREAKER_THRESHOLD", 5),
		BreakerCooldown:       getDuration("COK_BREAKER_COOLDOWN", 30*time.Second),
	}
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getStringList(key string, fallback []string) []string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloat(key string, fallback float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
