package config

import (
	"strconv"
	"time"
)

type SecurityConfig interface {
	GetJWTSecret() string
	GetSigningKeyFile() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetFailureThreshold() int
	GetFailureWindow() time.Duration
	GetBlockDuration() time.Duration
	GetSweepInterval() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetJWTSecret returns the HMAC signing secret. Ignored when a signing
// key file is configured.
func (Security) GetJWTSecret() string {
	return GetEnv("JWT_SECRET", "")
}

// GetSigningKeyFile returns the path to an RSA private key PEM. When set,
// tokens are signed RS256 instead of HS256.
func (Security) GetSigningKeyFile() string {
	return GetEnv("SIGNING_KEY_FILE", "")
}

func (Security) GetAccessTokenExpiry() time.Duration {
	return envMinutes("ACCESS_TOKEN_TTL_MINUTES", 30)
}

func (Security) GetRefreshTokenExpiry() time.Duration {
	return envHours("REFRESH_TOKEN_TTL_HOURS", 7*24)
}

func (Security) GetFailureThreshold() int {
	return envInt("LOGIN_FAILURE_THRESHOLD", 5)
}

func (Security) GetFailureWindow() time.Duration {
	return envMinutes("LOGIN_FAILURE_WINDOW_MINUTES", 10)
}

func (Security) GetBlockDuration() time.Duration {
	return envMinutes("LOGIN_BLOCK_MINUTES", 10)
}

// GetSweepInterval sets how often the in-memory caches evict expired
// entries.
func (Security) GetSweepInterval() time.Duration {
	return envMinutes("CACHE_SWEEP_MINUTES", 5)
}

func envInt(envVar string, defaultValue int) int {
	value, err := strconv.Atoi(GetEnv(envVar, ""))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func envMinutes(envVar string, defaultValue int) time.Duration {
	return time.Duration(envInt(envVar, defaultValue)) * time.Minute
}

func envHours(envVar string, defaultValue int) time.Duration {
	return time.Duration(envInt(envVar, defaultValue)) * time.Hour
}
