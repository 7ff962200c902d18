package service

import (
	"strings"
	"testing"
	"time"

	"reaction_timer_backend/internal/model"
	"reaction_timer_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSingleIgnoresRunFields(t *testing.T) {
	a := NewRunAggregator(nil)
	run, err := a.Normalize(model.ModeSingle, strPtr("ignored"), intPtr(7))
	require.NoError(t, err)
	assert.Nil(t, run.RunID)
	assert.Equal(t, 1, run.RunTotal)
	assert.Equal(t, "session-id", run.RunKey("session-id"))
}

func TestNormalizeMultiAttempt(t *testing.T) {
	a := NewRunAggregator(nil)

	run, err := a.Normalize(model.ModeMultiple, strPtr("  run-9 "), intPtr(3))
	require.NoError(t, err)
	require.NotNil(t, run.RunID)
	assert.Equal(t, "run-9", *run.RunID)
	assert.Equal(t, "run-9", run.RunKey("session-id"))
	assert.Equal(t, 3, run.RunTotal)

	bad := []struct {
		runID    *string
		runTotal *int
	}{
		{nil, intPtr(3)},
		{strPtr("r"), nil},
		{strPtr("   "), intPtr(3)},
		{strPtr(strings.Repeat("x", 65)), intPtr(3)},
		{strPtr("r"), intPtr(1)},
		{strPtr("r"), intPtr(model.MaxRunTotal + 1)},
	}
	for _, b := range bad {
		_, err := a.Normalize(model.ModeMultiple, b.runID, b.runTotal)
		assert.ErrorIs(t, err, util.ErrInvalidRunSpec)
	}
}

func TestRunState(t *testing.T) {
	a := NewRunAggregator(nil)
	prev := []model.Score{{RunTotal: 3, ReactionMs: 100}}

	state := a.State(prev, model.Score{RunTotal: 3, ReactionMs: 110})
	assert.Equal(t, RunState{Attempts: 2}, state)

	prev = append(prev, model.Score{RunTotal: 3, ReactionMs: 110})
	state = a.State(prev, model.Score{RunTotal: 3, ReactionMs: 120})
	assert.Equal(t, RunState{Attempts: 3, Complete: true, Score: 330}, state)
}

func TestUniformDelaySourceStaysInRange(t *testing.T) {
	src := UniformDelaySource{}
	for _, mode := range []model.GameMode{model.ModeSingle, model.ModeMultiple} {
		rules := mode.Rules()
		for i := 0; i < 500; i++ {
			d := src.Delay(rules)
			assert.GreaterOrEqual(t, d, rules.DelayMin)
			assert.Less(t, d, rules.DelayMin+rules.DelaySpan)
			assert.Zero(t, d%time.Millisecond)
		}
	}
}
