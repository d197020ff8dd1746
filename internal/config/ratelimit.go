package config

import (
	"os"
	"strconv"
	"time"
)

// RateLimitConfig controls the fixed-window request limiter.  Limit is
// the number of requests permitted per window for a given key.
type RateLimitConfig struct {
	Enabled     bool
	Limit       int
	Window      time.Duration
	KeyStrategy string
	Prefix      string
	Debug       bool
}

func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:     envBool("RATE_LIMIT_ENABLED", true),
		Limit:       envInt("RATE_LIMIT_LIMIT", 60),
		Window:      envDur("RATE_LIMIT_WINDOW", time.Minute),
		KeyStrategy: envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:      envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:       envBool("RATE_LIMIT_DEBUG", false),
	}
	if def.Limit < 1 {
		def.Limit = 1
	}
	if def.Window <= 0 {
		def.Window = time.Minute
	}
	return def
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
