package utils

import (
	"time"
)

type contextKey string

// Request-scoped context keys set by HTTP handlers
const (
	RequestIDKey contextKey = "request_id"
	EndpointKey  contextKey = "endpoint"
	TimeoutKey   contextKey = "timeout"
)

// Token time constants
const (
	// AccessTokenTTL is the time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour
)

// Currency and pagination constants
const (
	RupeeCurrency = "INR"

	DefaultPageSize = 20
	MaxPageSize     = 100
)
