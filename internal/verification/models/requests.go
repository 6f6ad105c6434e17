package models

// LookupRequest is the body of POST /api/v1/verify.
type LookupRequest struct {
	Username string `json:"username"`
}
