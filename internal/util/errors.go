package util

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownSession         = errors.New("unknown session")
	ErrOwnershipMismatch      = errors.New("session ownership validation failed")
	ErrAlreadyFinalized       = errors.New("session is not active or has already been used")
	ErrSessionExpired         = errors.New("session expired, start a new round")
	ErrPrematureClick         = errors.New("too soon, click only after the trigger")
	ErrOutOfBounds            = errors.New("reaction time failed validation")
	ErrInvalidRunSpec         = errors.New("invalid run specification")
	ErrInvalidMode            = errors.New("invalid mode")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrUsernameTaken          = errors.New("username already exists")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrUserNotFound           = errors.New("user not found")
)

// RateLimitedError is returned when a caller hits a cooldown. It is retryable
// after RetryAfter.
type RateLimitedError struct {
	Bucket     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s is rate-limited, retry after %dms", e.Bucket, e.RetryAfterMs())
}

// RetryAfterMs rounds the wait up so a client never retries too early.
func (e *RateLimitedError) RetryAfterMs() int64 {
	ms := e.RetryAfter / time.Millisecond
	if e.RetryAfter%time.Millisecond != 0 {
		ms++
	}
	return int64(ms)
}
