package model

import (
	"errors"
	"fmt"
	"time"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionSubmitted SessionStatus = "submitted"
	SessionRejected  SessionStatus = "rejected"
	SessionExpired   SessionStatus = "expired"
)

var ErrInvalidTransition = errors.New("invalid session status transition")

func (s SessionStatus) Terminal() bool {
	return s == SessionSubmitted || s == SessionRejected || s == SessionExpired
}

// CanTransition reports whether a session may move from s to next. Only the
// active status has outgoing edges, and each ends in a terminal status.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	return s == SessionActive && next.Terminal()
}

// ChallengeSession is one issued reaction challenge.
//
// swagger:model ChallengeSession
type ChallengeSession struct {
	ID               string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID           uint          `gorm:"index:idx_sessions_user_status,priority:1;not null" json:"userId"`
	ClientKey        string        `gorm:"type:varchar(64);not null" json:"-"`
	Mode             GameMode      `gorm:"type:varchar(16);not null" json:"mode"`
	Status           SessionStatus `gorm:"type:varchar(16);index:idx_sessions_user_status,priority:2;not null" json:"status"`
	StartedAt        time.Time     `gorm:"index;not null" json:"startedAt"`
	TriggerAt        time.Time     `gorm:"not null" json:"-"`
	SubmittedAt      *time.Time    `json:"submittedAt,omitempty"`
	ClientReactionMs *int          `json:"clientReactionMs,omitempty"`
	ServerReactionMs *int          `json:"serverReactionMs,omitempty"`
}

func (ChallengeSession) TableName() string {
	return "challenge_sessions"
}

// NewChallengeSession creates an active session whose trigger fires delay
// after now. delay must be positive.
func NewChallengeSession(userID uint, clientKey string, mode GameMode, now time.Time, delay time.Duration) (*ChallengeSession, error) {
	if delay <= 0 {
		return nil, fmt.Errorf("trigger delay must be positive, got %s", delay)
	}
	return &ChallengeSession{
		ID:        GenerateUUID(),
		UserID:    userID,
		ClientKey: clientKey,
		Mode:      mode,
		Status:    SessionActive,
		StartedAt: now,
		TriggerAt: now.Add(delay),
	}, nil
}

// SessionOutcome carries the measurements recorded with a terminal transition.
type SessionOutcome struct {
	SubmittedAt      *time.Time
	ClientReactionMs *int
	ServerReactionMs *int
}

// Transition moves the session to a terminal status and records the outcome.
// It is the only way session status changes.
func (s *ChallengeSession) Transition(next SessionStatus, outcome SessionOutcome) error {
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	s.SubmittedAt = outcome.SubmittedAt
	s.ClientReactionMs = outcome.ClientReactionMs
	s.ServerReactionMs = outcome.ServerReactionMs
	return nil
}

// Expired reports whether the session outlived ttl at now.
func (s *ChallengeSession) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.StartedAt) > ttl
}

// ReactionAt is the server-measured reaction time in whole milliseconds for a
// click at now. It is negative before the trigger.
func (s *ChallengeSession) ReactionAt(now time.Time) int {
	return int(now.Sub(s.TriggerAt) / time.Millisecond)
}
