// Package config provides application configuration through environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// ServerHost is the host address the local control API binds to.
	ServerHost string
	// ServerPort is the port number the local control API listens on.
	ServerPort int

	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string

	// StorePath is the SQLite file backing the durable store.
	StorePath string
	// StoreQuotaBytes is the storage budget of the durable store.
	StoreQuotaBytes int64
	// StoreMaxAttempts is how many times an aborted unit of work is attempted.
	StoreMaxAttempts int
	// StoreRetryBase is the base delay of the exponential backoff between aborted attempts.
	StoreRetryBase time.Duration
	// StoreBusyTimeout is how long SQLite waits on a lock before reporting it busy.
	StoreBusyTimeout time.Duration

	// RemoteBaseURL is the base URL of the remote authority.
	RemoteBaseURL string
	// RemoteTimeout bounds every remote API call.
	RemoteTimeout time.Duration

	// ProbePath is the lightweight endpoint used to test server reachability.
	ProbePath string
	// ProbeInterval is the periodic reachability probe interval.
	ProbeInterval time.Duration
	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration
	// ReconnectBaseDelay is the base of the full-jitter reconnection backoff.
	ReconnectBaseDelay time.Duration
	// ReconnectMaxDelay caps the reconnection backoff.
	ReconnectMaxDelay time.Duration
	// ReconnectMaxAttempts is the number of automatic reconnection attempts.
	ReconnectMaxAttempts int

	// SyncInterval is the periodic sync schedule.
	SyncInterval time.Duration
	// SyncDebounce delays opportunistic syncs triggered by new operations.
	SyncDebounce time.Duration
	// SyncMaxAttempts is the per-operation attempt ceiling before dead-lettering.
	SyncMaxAttempts int
	// SyncBatchSize is the number of operations fetched per drain page.
	SyncBatchSize int
	// SyncRetryBaseDelay is the delay after an operation's first failed attempt.
	// It doubles on every further failure.
	SyncRetryBaseDelay time.Duration
	// SyncRetryMaxDelay caps the delay between attempts of one operation.
	SyncRetryMaxDelay time.Duration

	// RetentionOperations is how long synced operations are retained.
	RetentionOperations time.Duration
	// RetentionSessions is how long idle sessions are retained.
	RetentionSessions time.Duration
	// RetentionErrors is how long sync errors are retained.
	RetentionErrors time.Duration

	// SessionAutosaveInterval is the autosave interval of the active session.
	SessionAutosaveInterval time.Duration
	// SessionBeaconPath is the fire-and-forget session backup endpoint.
	SessionBeaconPath string

	// FlagStoreURL selects the fast-path marker store (file:// or redis://).
	FlagStoreURL string

	// HashAlgorithm selects the offline secret derivation ("sha256" or "argon2id").
	HashAlgorithm string
	// OfflineAuthRatePerMinute is the sustained offline login attempts allowed per login.
	OfflineAuthRatePerMinute float64
	// OfflineAuthBurst is the burst of offline login attempts allowed per login.
	OfflineAuthBurst int

	// StagingBufferSize bounds the in-memory enqueue staging buffer.
	StagingBufferSize int

	// PayloadKeyURI is an optional gocloud.dev secrets keeper URL used to seal payloads at rest.
	PayloadKeyURI string

	// CORSEnabled indicates whether CORS is enabled.
	CORSEnabled bool
	// CORSAllowOrigins is a comma-separated list of allowed origins for CORS.
	// When empty the origin of RemoteBaseURL is allowed.
	CORSAllowOrigins string

	// MetricsEnabled indicates whether metrics collection is enabled.
	MetricsEnabled bool
	// MetricsNamespace is the namespace for the application metrics.
	MetricsNamespace string
	// MetricsPort is the port number for the metrics server.
	MetricsPort int
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	return &Config{
		// Server configuration
		ServerHost: env.GetString("SERVER_HOST", "127.0.0.1"),
		ServerPort: env.GetInt("SERVER_PORT", 8787),

		// Logging
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		// Durable store
		StorePath:        env.GetString("STORE_PATH", "posoffline.db"),
		StoreQuotaBytes:  int64(env.GetInt("STORE_QUOTA_BYTES", 536870912)),
		StoreMaxAttempts: env.GetInt("STORE_MAX_ATTEMPTS", 5),
		StoreRetryBase:   env.GetDuration("STORE_RETRY_BASE_MS", 25, time.Millisecond),
		StoreBusyTimeout: env.GetDuration("STORE_BUSY_TIMEOUT_MS", 250, time.Millisecond),

		// Remote authority
		RemoteBaseURL: env.GetString("REMOTE_BASE_URL", "http://localhost:8069"),
		RemoteTimeout: env.GetDuration("REMOTE_TIMEOUT_SECONDS", 15, time.Second),

		// Connectivity
		ProbePath:            env.GetString("PROBE_PATH", "/web/webclient/version_info"),
		ProbeInterval:        env.GetDuration("PROBE_INTERVAL_SECONDS", 30, time.Second),
		ProbeTimeout:         env.GetDuration("PROBE_TIMEOUT_SECONDS", 5, time.Second),
		ReconnectBaseDelay:   env.GetDuration("RECONNECT_BASE_DELAY_MS", 1000, time.Millisecond),
		ReconnectMaxDelay:    env.GetDuration("RECONNECT_MAX_DELAY_MS", 60000, time.Millisecond),
		ReconnectMaxAttempts: env.GetInt("RECONNECT_MAX_ATTEMPTS", 10),

		// Sync
		SyncInterval:    env.GetDuration("SYNC_INTERVAL_SECONDS", 300, time.Second),
		SyncDebounce:    env.GetDuration("SYNC_DEBOUNCE_MS", 2000, time.Millisecond),
		SyncMaxAttempts: env.GetInt("SYNC_MAX_ATTEMPTS", 5),
		SyncBatchSize:   env.GetInt("SYNC_BATCH_SIZE", 100),

		SyncRetryBaseDelay: env.GetDuration("SYNC_RETRY_BASE_SECONDS", 5, time.Second),
		SyncRetryMaxDelay:  env.GetDuration("SYNC_RETRY_MAX_SECONDS", 3600, time.Second),

		// Retention
		RetentionOperations: env.GetDuration("RETENTION_OPERATIONS_DAYS", 30, 24*time.Hour),
		RetentionSessions:   env.GetDuration("RETENTION_SESSIONS_DAYS", 7, 24*time.Hour),
		RetentionErrors:     env.GetDuration("RETENTION_ERRORS_DAYS", 7, 24*time.Hour),

		// Session persistence
		SessionAutosaveInterval: env.GetDuration("SESSION_AUTOSAVE_SECONDS", 300, time.Second),
		SessionBeaconPath:       env.GetString("SESSION_BEACON_PATH", "/pdc_pos_offline/session_beacon"),
		FlagStoreURL:            env.GetString("FLAG_STORE_URL", "file://.posoffline-flags"),

		// Offline authentication
		HashAlgorithm:            env.GetString("HASH_ALGORITHM", "sha256"),
		OfflineAuthRatePerMinute: env.GetFloat64("OFFLINE_AUTH_RATE_PER_MIN", 5.0),
		OfflineAuthBurst:         env.GetInt("OFFLINE_AUTH_BURST", 5),

		// Outbox
		StagingBufferSize: env.GetInt("STAGING_BUFFER_SIZE", 1000),
		PayloadKeyURI:     env.GetString("PAYLOAD_KEY_URI", ""),

		// CORS
		CORSEnabled:      env.GetBool("CORS_ENABLED", false),
		CORSAllowOrigins: env.GetString("CORS_ALLOW_ORIGINS", ""),

		// Metrics
		MetricsEnabled:   env.GetBool("METRICS_ENABLED", true),
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "posoffline"),
		MetricsPort:      env.GetInt("METRICS_PORT", 8788),
	}
}

// GetGinMode returns the appropriate Gin mode based on log level.
func (c *Config) GetGinMode() string {
	switch c.LogLevel {
	case "debug":
		return "debug"
	default:
		return "release"
	}
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
