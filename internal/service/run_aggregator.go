package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"reaction_timer_backend/internal/model"
	"reaction_timer_backend/internal/repository"
	"reaction_timer_backend/internal/util"
)

const maxRunIDLength = 64

// RunSpec is a validated run declaration for one attempt.
type RunSpec struct {
	Mode     model.GameMode
	RunID    *string
	RunTotal int
}

// RunKey groups the attempts of one run. Single-attempt runs are keyed by
// their session so every attempt is its own run.
func (r RunSpec) RunKey(sessionID string) string {
	if r.RunID != nil {
		return *r.RunID
	}
	return sessionID
}

// RunState describes a run after an attempt was recorded.
type RunState struct {
	Attempts int
	Complete bool
	Score    int
}

// RunAggregator validates run declarations and decides run completion.
type RunAggregator struct {
	scoreRepo *repository.ScoreRepository
	locks     *keyedMutex
}

func NewRunAggregator(scoreRepo *repository.ScoreRepository) *RunAggregator {
	return &RunAggregator{scoreRepo: scoreRepo, locks: newKeyedMutex()}
}

// Normalize checks the client's run declaration for mode. Single-attempt
// submissions ignore any run fields.
func (a *RunAggregator) Normalize(mode model.GameMode, runID *string, runTotal *int) (RunSpec, error) {
	if !mode.IsMultiAttempt() {
		return RunSpec{Mode: mode, RunTotal: 1}, nil
	}

	if runID == nil || runTotal == nil {
		return RunSpec{}, fmt.Errorf("%w: run_id and run_total are required", util.ErrInvalidRunSpec)
	}
	id := strings.TrimSpace(*runID)
	if id == "" || len(id) > maxRunIDLength {
		return RunSpec{}, fmt.Errorf("%w: run_id must be 1-%d characters", util.ErrInvalidRunSpec, maxRunIDLength)
	}
	if *runTotal < 2 || *runTotal > model.MaxRunTotal {
		return RunSpec{}, fmt.Errorf("%w: run_total must be between 2 and %d", util.ErrInvalidRunSpec, model.MaxRunTotal)
	}
	return RunSpec{Mode: mode, RunID: &id, RunTotal: *runTotal}, nil
}

// Lock serializes admission and insert for one user's run. The returned func
// releases it.
func (a *RunAggregator) Lock(userID uint, runKey string) func() {
	return a.locks.Lock(strconv.FormatUint(uint64(userID), 10) + ":" + runKey)
}

// Admit checks that one more attempt may join the run and returns the
// attempts already recorded. scores must be bound to the caller's
// transaction, and the caller must hold Lock for the run.
func (a *RunAggregator) Admit(ctx context.Context, scores *repository.ScoreRepository, userID uint, run RunSpec, runKey string) ([]model.Score, error) {
	if !run.Mode.IsMultiAttempt() {
		return nil, nil
	}

	existing, err := scores.ListRunAttempts(ctx, userID, runKey)
	if err != nil {
		return nil, fmt.Errorf("load run attempts: %w", err)
	}
	for _, s := range existing {
		if s.Mode != run.Mode {
			return nil, fmt.Errorf("%w: run %q belongs to mode %s", util.ErrInvalidRunSpec, runKey, s.Mode)
		}
	}
	if len(existing) > 0 && model.RunComplete(existing) {
		return nil, fmt.Errorf("%w: run %q is already complete", util.ErrInvalidRunSpec, runKey)
	}

	declared := run.RunTotal
	if m := model.MaxDeclaredRunTotal(existing); m > declared {
		declared = m
	}
	if len(existing)+1 > declared {
		return nil, fmt.Errorf("%w: run %q already has %d attempts", util.ErrInvalidRunSpec, runKey, len(existing))
	}
	return existing, nil
}

// State summarizes a run once attempt has been added to previous.
func (a *RunAggregator) State(previous []model.Score, attempt model.Score) RunState {
	all := append(append([]model.Score(nil), previous...), attempt)
	state := RunState{Attempts: len(all), Complete: model.RunComplete(all)}
	if state.Complete {
		state.Score = model.RunScore(all)
	}
	return state
}
