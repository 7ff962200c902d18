package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"reaction_timer_backend/internal/config"
	"reaction_timer_backend/internal/model"
	"reaction_timer_backend/internal/repository"
	"reaction_timer_backend/internal/util"
	"reaction_timer_backend/pkg/logger"
	"reaction_timer_backend/pkg/monitoring"
	"reaction_timer_backend/pkg/tracing"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const expireBatchSize = 200

// ReactionBounds are the accepted server-measured reaction times and the
// session lifetime.
type ReactionBounds struct {
	Min        int
	Max        int
	SessionTTL time.Duration
}

func BoundsFromConfig(cfg config.GameConfig) ReactionBounds {
	return ReactionBounds{
		Min:        cfg.MinReactionMs,
		Max:        cfg.MaxReactionMs,
		SessionTTL: cfg.SessionTTL(),
	}
}

// RunCompletionNotifier is told when a run completes so live views can
// refresh.
type RunCompletionNotifier interface {
	RunCompleted(mode model.GameMode)
}

type BeginResult struct {
	SessionID string    `json:"session_id"`
	WaitMs    int64     `json:"wait_ms"`
	TriggerAt time.Time `json:"trigger_at"`
	Mode      string    `json:"mode"`
}

type SubmitRequest struct {
	SessionID        string
	UserID           uint
	ClientKey        string
	ClientReactionMs *float64
	Mode             string
	RunID            *string
	RunTotal         *int
}

type SubmitResult struct {
	ServerReactionMs int       `json:"server_reaction_ms"`
	ClientReactionMs *int      `json:"client_reaction_ms,omitempty"`
	Mode             string    `json:"mode"`
	Run              RunState  `json:"run"`
	Rankings         *Snapshot `json:"rankings,omitempty"`
}

// ChallengeService runs the begin/submit protocol. The server clock is the
// only time source; client-reported reaction times are kept for audit only.
type ChallengeService struct {
	DB          *gorm.DB
	sessionRepo *repository.ChallengeSessionRepository
	scoreRepo   *repository.ScoreRepository
	runs        *RunAggregator
	ranking     *RankingService
	limiter     *CooldownLimiter
	audit       *AuditService
	delays      DelaySource
	clock       clockwork.Clock
	bounds      ReactionBounds
	notifier    RunCompletionNotifier
	sessions    *keyedMutex
}

func NewChallengeService(
	db *gorm.DB,
	sessionRepo *repository.ChallengeSessionRepository,
	scoreRepo *repository.ScoreRepository,
	runs *RunAggregator,
	ranking *RankingService,
	limiter *CooldownLimiter,
	audit *AuditService,
	delays DelaySource,
	clock clockwork.Clock,
	bounds ReactionBounds,
) *ChallengeService {
	return &ChallengeService{
		DB:          db,
		sessionRepo: sessionRepo,
		scoreRepo:   scoreRepo,
		runs:        runs,
		ranking:     ranking,
		limiter:     limiter,
		audit:       audit,
		delays:      delays,
		clock:       clock,
		bounds:      bounds,
		sessions:    newKeyedMutex(),
	}
}

// SetNotifier registers the receiver of run completion events.
func (s *ChallengeService) SetNotifier(n RunCompletionNotifier) {
	s.notifier = n
}

// BeginChallenge issues a new session whose trigger fires after a random
// delay.
func (s *ChallengeService) BeginChallenge(ctx context.Context, userID uint, clientKey, rawMode string) (*BeginResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ChallengeService.BeginChallenge")
	defer span.End()

	mode, ok := model.ParseGameMode(rawMode)
	if !ok {
		return nil, util.ErrInvalidMode
	}
	if err := s.limiter.Allow(ctx, BucketBegin, userID, clientKey); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	delay := s.delays.Delay(mode.Rules())
	session, err := model.NewChallengeSession(userID, clientKey, mode, now, delay)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	span.SetAttributes(attribute.String("session.id", session.ID), attribute.String("mode", string(mode)))

	waitMs := delay.Milliseconds()
	s.audit.Record(AuditEvent{
		Type:      model.AuditStart,
		UserID:    &userID,
		SessionID: &session.ID,
		ClientKey: clientKey,
		Details:   map[string]interface{}{"wait_ms": waitMs, "mode": mode},
	})
	monitoring.ChallengeOutcomes.WithLabelValues(string(mode), "started").Inc()

	return &BeginResult{
		SessionID: session.ID,
		WaitMs:    waitMs,
		TriggerAt: session.TriggerAt,
		Mode:      string(mode),
	}, nil
}

// SubmitResult validates a click against its session. Every rejection is
// persisted as a terminal status before the error is returned, so a session
// can be used at most once.
func (s *ChallengeService) SubmitResult(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ChallengeService.SubmitResult")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", req.SessionID))

	if err := s.limiter.Allow(ctx, BucketSubmit, req.UserID, req.ClientKey); err != nil {
		return nil, err
	}

	unlock := s.sessions.Lock(req.SessionID)
	defer unlock()

	session, err := s.sessionRepo.FindForUser(ctx, req.SessionID, req.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUnknownSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if session.ClientKey != req.ClientKey {
		s.audit.Record(AuditEvent{
			Type:      model.AuditOwnershipMismatch,
			UserID:    &req.UserID,
			SessionID: &session.ID,
			ClientKey: req.ClientKey,
			Details:   map[string]interface{}{"session_client": session.ClientKey},
		})
		monitoring.ChallengeOutcomes.WithLabelValues(string(session.Mode), "ownership_mismatch").Inc()
		return nil, util.ErrOwnershipMismatch
	}
	if session.Status != model.SessionActive {
		return nil, util.ErrAlreadyFinalized
	}

	now := s.clock.Now()
	clientMs := roundClientReaction(req.ClientReactionMs)

	if session.Expired(now, s.bounds.SessionTTL) {
		outcome := model.SessionOutcome{SubmittedAt: &now, ClientReactionMs: clientMs}
		if err := s.reject(ctx, session, model.SessionExpired, outcome, model.AuditExpired, nil); err != nil {
			return nil, err
		}
		return nil, util.ErrSessionExpired
	}

	reaction := session.ReactionAt(now)
	outcome := model.SessionOutcome{SubmittedAt: &now, ClientReactionMs: clientMs, ServerReactionMs: &reaction}

	if now.Before(session.TriggerAt) {
		if reaction >= 0 {
			// Sub-millisecond early clicks still count as negative.
			reaction = -1
		}
		details := map[string]interface{}{"server_ms": reaction, "client_ms": clientMs}
		if err := s.reject(ctx, session, model.SessionRejected, outcome, model.AuditPrematureSubmit, details); err != nil {
			return nil, err
		}
		return nil, util.ErrPrematureClick
	}

	if reaction < s.bounds.Min || reaction > s.bounds.Max {
		details := map[string]interface{}{"server_ms": reaction, "client_ms": clientMs}
		if err := s.reject(ctx, session, model.SessionRejected, outcome, model.AuditFailedValidation, details); err != nil {
			return nil, err
		}
		return nil, util.ErrOutOfBounds
	}

	run, err := s.runSpec(session, req)
	if err != nil {
		return nil, s.rejectRun(ctx, session, outcome, err)
	}
	runKey := run.RunKey(session.ID)

	unlockRun := s.runs.Lock(req.UserID, runKey)
	defer unlockRun()

	var (
		previous []model.Score
		score    *model.Score
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scores := s.scoreRepo.WithTx(tx)

		var err error
		previous, err = s.runs.Admit(ctx, scores, req.UserID, run, runKey)
		if err != nil {
			return err
		}

		if err := session.Transition(model.SessionSubmitted, outcome); err != nil {
			return err
		}
		if err := s.sessionRepo.WithTx(tx).Finalize(ctx, session); err != nil {
			return err
		}

		score = &model.Score{
			UserID:     req.UserID,
			SessionID:  session.ID,
			Mode:       session.Mode,
			RunID:      run.RunID,
			RunKey:     runKey,
			RunTotal:   run.RunTotal,
			ReactionMs: reaction,
			CreatedAt:  now,
		}
		return scores.Create(ctx, score)
	})
	switch {
	case err == nil:
	case errors.Is(err, util.ErrInvalidRunSpec):
		// Admit failed before the transition, so the session is still active.
		return nil, s.rejectRun(ctx, session, outcome, err)
	case errors.Is(err, repository.ErrSessionNotActive):
		return nil, util.ErrAlreadyFinalized
	default:
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	s.audit.Record(AuditEvent{
		Type:      model.AuditSubmit,
		UserID:    &req.UserID,
		SessionID: &session.ID,
		ClientKey: req.ClientKey,
		Details: map[string]interface{}{
			"server_ms": reaction,
			"client_ms": clientMs,
			"run_key":   runKey,
			"run_total": run.RunTotal,
		},
	})
	monitoring.ChallengeOutcomes.WithLabelValues(string(session.Mode), "accepted").Inc()
	monitoring.ReactionTime.WithLabelValues(string(session.Mode)).Observe(float64(reaction))

	state := s.runs.State(previous, *score)
	if state.Complete && s.notifier != nil {
		s.notifier.RunCompleted(session.Mode)
	}

	result := &SubmitResult{
		ServerReactionMs: reaction,
		ClientReactionMs: clientMs,
		Mode:             string(session.Mode),
		Run:              state,
	}

	// The attempt is committed; a failing read must not turn it into an error.
	snap, err := s.ranking.Snapshot(ctx, session.Mode, &req.UserID)
	if err != nil {
		logger.Log.Error("load rankings after submit",
			zap.String("sessionId", session.ID),
			zap.Uint("userId", req.UserID),
			zap.Error(err),
		)
	} else {
		result.Rankings = snap
	}
	return result, nil
}

// ExpireStale moves active sessions older than the session lifetime to
// expired, one audited transition each. Submissions also expire lazily.
func (s *ChallengeService) ExpireStale(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.bounds.SessionTTL)

	var expired int64
	for {
		stale, err := s.sessionRepo.ListActiveStartedBefore(ctx, cutoff, expireBatchSize)
		if err != nil {
			return expired, fmt.Errorf("list stale sessions: %w", err)
		}
		for i := range stale {
			ok, err := s.expire(ctx, &stale[i])
			if err != nil {
				return expired, fmt.Errorf("expire session %s: %w", stale[i].ID, err)
			}
			if ok {
				expired++
			}
		}
		if len(stale) < expireBatchSize {
			return expired, nil
		}
	}
}

// expire finalizes one stale session unless a concurrent submit got there
// first.
func (s *ChallengeService) expire(ctx context.Context, session *model.ChallengeSession) (bool, error) {
	unlock := s.sessions.Lock(session.ID)
	defer unlock()

	details := map[string]interface{}{"source": "sweep", "started_at": session.StartedAt}
	err := s.reject(ctx, session, model.SessionExpired, model.SessionOutcome{}, model.AuditExpired, details)
	if errors.Is(err, util.ErrAlreadyFinalized) {
		return false, nil
	}
	return err == nil, err
}

// runSpec resolves the run declaration. The mode recorded at begin is
// authoritative.
func (s *ChallengeService) runSpec(session *model.ChallengeSession, req SubmitRequest) (RunSpec, error) {
	if req.Mode != "" {
		mode, ok := model.ParseGameMode(req.Mode)
		if !ok || mode != session.Mode {
			return RunSpec{}, fmt.Errorf("%w: mode %q does not match session mode %s", util.ErrInvalidRunSpec, req.Mode, session.Mode)
		}
	}
	return s.runs.Normalize(session.Mode, req.RunID, req.RunTotal)
}

func (s *ChallengeService) rejectRun(ctx context.Context, session *model.ChallengeSession, outcome model.SessionOutcome, cause error) error {
	details := map[string]interface{}{"reason": cause.Error()}
	if err := s.reject(ctx, session, model.SessionRejected, outcome, model.AuditInvalidRun, details); err != nil {
		return err
	}
	return cause
}

// reject applies a terminal transition, persists it and audits it.
func (s *ChallengeService) reject(ctx context.Context, session *model.ChallengeSession, status model.SessionStatus, outcome model.SessionOutcome, event model.AuditEventType, details map[string]interface{}) error {
	if err := session.Transition(status, outcome); err != nil {
		return err
	}
	if err := s.sessionRepo.Finalize(ctx, session); err != nil {
		if errors.Is(err, repository.ErrSessionNotActive) {
			return util.ErrAlreadyFinalized
		}
		return fmt.Errorf("finalize session: %w", err)
	}

	s.audit.Record(AuditEvent{
		Type:      event,
		UserID:    &session.UserID,
		SessionID: &session.ID,
		ClientKey: session.ClientKey,
		Details:   details,
	})
	monitoring.ChallengeOutcomes.WithLabelValues(string(session.Mode), string(event)).Inc()
	return nil
}

func roundClientReaction(ms *float64) *int {
	if ms == nil || math.IsNaN(*ms) || math.IsInf(*ms, 0) {
		return nil
	}
	v := math.Round(*ms)
	if v > math.MaxInt32 || v < math.MinInt32 {
		return nil
	}
	r := int(v)
	return &r
}
