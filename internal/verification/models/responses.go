package models

import "encoding/json"

// LookupResponse is the caller-facing result of a verification lookup.
// RemainingFreeLookups and NextResetTime always reflect the ledger state at
// response time, whichever funding path was used. NextResetTime is epoch
// milliseconds; null means the quota is not currently depleted.
type LookupResponse struct {
	Report               json.RawMessage `json:"report"`
	RemainingFreeLookups *int            `json:"remainingFreeLookups"`
	NextResetTime        *int64          `json:"nextResetTime"`
	Cached               bool            `json:"cached"`
	Pending              bool            `json:"pending,omitempty"`
}

// QuotaStatus is the read-only quota check response.
type QuotaStatus struct {
	RemainingFreeLookups int    `json:"remainingFreeLookups"`
	NextResetTime        *int64 `json:"nextResetTime"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	NextResetTime *int64 `json:"nextResetTime,omitempty"`
}
