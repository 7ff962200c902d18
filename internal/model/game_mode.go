package model

import "time"

type GameMode string

const (
	// ModeSingle scores every accepted reaction as its own run.
	ModeSingle GameMode = "class"
	// ModeMultiple scores the sum of a fixed number of reactions.
	ModeMultiple GameMode = "multiple"
)

// MaxRunTotal caps the declared size of a multi-attempt run.
const MaxRunTotal = 10

// ModeRules are the per-mode trigger delay bounds: delays are drawn from
// [DelayMin, DelayMin+DelaySpan).
type ModeRules struct {
	DelayMin  time.Duration
	DelaySpan time.Duration
}

var modeRules = map[GameMode]ModeRules{
	ModeSingle:   {DelayMin: 1200 * time.Millisecond, DelaySpan: 2000 * time.Millisecond},
	ModeMultiple: {DelayMin: 2100 * time.Millisecond, DelaySpan: 1400 * time.Millisecond},
}

// ParseGameMode maps a request value to a mode. The empty string is the
// single-attempt mode.
func ParseGameMode(s string) (GameMode, bool) {
	if s == "" {
		return ModeSingle, true
	}
	m := GameMode(s)
	_, ok := modeRules[m]
	return m, ok
}

func (m GameMode) Rules() ModeRules {
	return modeRules[m]
}

func (m GameMode) IsMultiAttempt() bool {
	return m == ModeMultiple
}
