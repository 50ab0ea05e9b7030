package webhooks

import "errors"

// Package errors.
var (
	ErrSubscriptionNotFound = errors.New("webhook subscription not found")
	ErrInsecureURL          = errors.New("webhook url must be an https endpoint")
	ErrNoEventPatterns      = errors.New("at least one event pattern is required")
	ErrInvalidEventPattern  = errors.New("invalid event pattern")
)
