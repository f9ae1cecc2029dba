package ratelimit

import (
	"time"

	"github.com/mazeportal/maze-api/pkg/config"
)

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config    config.RateLimitConfig
	whitelist map[string]struct{}
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	wl := make(map[string]struct{}, len(cfg.Whitelist))
	for _, id := range cfg.Whitelist {
		wl[id] = struct{}{}
	}

	return &Rules{config: cfg, whitelist: wl}
}

// Enabled reports whether rate limiting is turned on at all.
func (r *Rules) Enabled() bool {
	return r.config.Enabled
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID string) bool {
	_, ok := r.whitelist[userID]
	return ok
}

// PerUserLimit returns the per-user request limit and its window.
func (r *Rules) PerUserLimit() (int, time.Duration) {
	window := r.config.Window
	if window <= 0 {
		window = time.Minute
	}
	return r.config.PerUser, window
}
