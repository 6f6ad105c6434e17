package models

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a verification record.
type Status string

const (
	// StatusPending marks a record claimed by an in-flight fetch.
	StatusPending Status = "pending"
	// StatusCompleted marks a record holding a scored report.
	StatusCompleted Status = "completed"
	// StatusError marks a failed fetch; the next caller may retry
	// immediately instead of waiting out a freshness window.
	StatusError Status = "error"
)

// Record is the persisted verification cache entry for one normalized key.
// A pending record keeps the previous report and FetchedAt so stale data
// can still be served while the refresh is in flight.
type Record struct {
	Key       string
	Status    Status
	Report    json.RawMessage
	FetchedAt time.Time
	UpdatedAt time.Time
}

// CacheState is the outcome of a cache lookup as seen by the coordinator.
type CacheState string

const (
	CacheFresh   CacheState = "fresh"
	CacheStale   CacheState = "stale"
	CachePending CacheState = "pending"
	CacheAbsent  CacheState = "absent"
)

// CacheResult pairs a lookup state with whatever report payload exists.
// Report is set for Fresh and Stale, and for Pending when a stale payload
// survived the claim (stale-while-revalidate).
type CacheResult struct {
	State  CacheState
	Report json.RawMessage
}

// Profile holds the raw upstream fields for a social account. Values come
// from an untrusted provider and are only ever fed to the scorer.
type Profile struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	Verified  bool      `json:"verified"`
	Followers int64     `json:"followers"`
	Following int64     `json:"following"`
	Posts     int64     `json:"posts"`
	Media     int64     `json:"media"`
	Favorites int64     `json:"favorites"`
	Automated bool      `json:"automated"`
}

// Breakdown itemizes the score components so clients can explain a rating.
type Breakdown struct {
	AccountAge   int `json:"account_age"`
	Verification int `json:"verification"`
	Audience     int `json:"audience"`
	Activity     int `json:"activity"`
	Engagement   int `json:"engagement"`
	Automation   int `json:"automation"`
}

// Report is the scored result stored in the cache and returned to callers.
// It is marshaled exactly once, at store time; cached lookups serve the
// stored bytes verbatim so repeated reads are byte-identical.
type Report struct {
	Username    string    `json:"username"`
	Score       int       `json:"score"`
	Label       string    `json:"label"`
	Breakdown   Breakdown `json:"breakdown"`
	Profile     Profile   `json:"profile"`
	GeneratedAt time.Time `json:"generated_at"`
}
