package config

import "time"

// Config holds the verification domain tunables.
type Config struct {
	// MaxFreeLookups is the number of no-balance lookups each caller
	// address gets per ResetWindow.
	MaxFreeLookups int
	// ResetWindow is the rolling free-quota window.
	ResetWindow time.Duration
	// FreshnessWindow bounds how long a completed record is served
	// without refetching.
	FreshnessWindow time.Duration
	// PendingTTL bounds how long a pending claim blocks other fetchers.
	// A fetch that crashed mid-flight stops wedging its key once the
	// claim ages past this.
	PendingTTL time.Duration
	// ProviderTimeout bounds the upstream profile fetch.
	ProviderTimeout time.Duration
}

// DefaultConfig returns production defaults. Funding order is fixed:
// free quota first, then paid balance.
func DefaultConfig() *Config {
	return &Config{
		MaxFreeLookups:  3,
		ResetWindow:     time.Hour,
		FreshnessWindow: 24 * time.Hour,
		PendingTTL:      2 * time.Minute,
		ProviderTimeout: 10 * time.Second,
	}
}
