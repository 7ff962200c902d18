package service

import (
	"math/rand/v2"
	"time"

	"reaction_timer_backend/internal/model"
)

// DelaySource picks the trigger delay for a new challenge.
type DelaySource interface {
	Delay(rules model.ModeRules) time.Duration
}

// DelayFunc adapts a function to DelaySource.
type DelayFunc func(rules model.ModeRules) time.Duration

func (f DelayFunc) Delay(rules model.ModeRules) time.Duration {
	return f(rules)
}

// UniformDelaySource draws whole milliseconds uniformly from
// [DelayMin, DelayMin+DelaySpan).
type UniformDelaySource struct{}

func (UniformDelaySource) Delay(rules model.ModeRules) time.Duration {
	spanMs := int64(rules.DelaySpan / time.Millisecond)
	if spanMs <= 0 {
		return rules.DelayMin
	}
	return rules.DelayMin + time.Duration(rand.Int64N(spanMs))*time.Millisecond
}
