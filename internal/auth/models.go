package auth

import "time"

// Authentication methods recorded on a Caller.
const (
	MethodToken     = "token"
	MethodAPIKey    = "api_key"
	MethodAnonymous = "anonymous"
)

// AnonymousSubject is the identity every caller receives when authentication is off.
const AnonymousSubject = "anonymous"

// Caller is the result of validating one request's credential.
type Caller struct {
	Subject       string
	Authenticated bool
	Method        string
}

// Client is a registered API client.
type Client struct {
	Subject   string
	KeyHash   string
	Disabled  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
