package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrLockHeld        = errors.New("lock already held")
	ErrCycleInProgress = errors.New("cycle already in progress")
	ErrInvalidAlert    = errors.New("invalid alert")
	ErrNoContact       = errors.New("no contact address for owner")
	ErrMalformedQuote  = errors.New("malformed quote")
	ErrUpstreamStatus  = errors.New("unexpected upstream status")
)
