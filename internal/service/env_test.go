package service

import (
	"context"
	"testing"
	"time"

	"reaction_timer_backend/internal/model"
	"reaction_timer_backend/internal/repository"
	"reaction_timer_backend/pkg/database"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testClientKey = "10.0.0.1"
	testDelay     = 2 * time.Second
	testCooldown  = 2 * time.Second
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db        *gorm.DB
	clock     *clockwork.FakeClock
	users     *repository.UserRepository
	sessions  *repository.ChallengeSessionRepository
	scores    *repository.ScoreRepository
	audits    *repository.AuditRepository
	limiter   *CooldownLimiter
	audit     *AuditService
	ranking   *RankingService
	runs      *RunAggregator
	challenge *ChallengeService
}

// openTestDB returns a private in-memory database. A single connection keeps
// every query on the same memory file.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestEnv(t *testing.T, cooldown time.Duration) *testEnv {
	t.Helper()
	db := openTestDB(t)
	clock := clockwork.NewFakeClockAt(testEpoch)

	e := &testEnv{
		db:       db,
		clock:    clock,
		users:    repository.NewUserRepository(db),
		sessions: repository.NewChallengeSessionRepository(db),
		scores:   repository.NewScoreRepository(db),
		audits:   repository.NewAuditRepository(db),
	}
	e.limiter = NewCooldownLimiter(NewMemoryCooldownStore(), clock, cooldown)
	e.audit = NewAuditService(clock, 256, NewDBAuditSink(e.audits))
	e.audit.Start()
	t.Cleanup(e.audit.Close)

	e.ranking = NewRankingService(e.scores, e.users, 5, 10)
	e.runs = NewRunAggregator(e.scores)
	e.challenge = NewChallengeService(
		db, e.sessions, e.scores, e.runs, e.ranking, e.limiter, e.audit,
		DelayFunc(func(model.ModeRules) time.Duration { return testDelay }),
		clock,
		ReactionBounds{Min: 90, Max: 5000, SessionTTL: 15 * time.Second},
	)
	return e
}

func (e *testEnv) createUser(t *testing.T, name string) uint {
	t.Helper()
	u := &model.User{Username: name, Password: "not-a-real-hash"}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u.ID
}

func (e *testEnv) begin(t *testing.T, userID uint, mode string) *BeginResult {
	t.Helper()
	res, err := e.challenge.BeginChallenge(context.Background(), userID, testClientKey, mode)
	require.NoError(t, err)
	return res
}

func (e *testEnv) submit(userID uint, sessionID, mode string, runID *string, runTotal *int) (*SubmitResult, error) {
	client := 123.4
	return e.challenge.SubmitResult(context.Background(), SubmitRequest{
		SessionID:        sessionID,
		UserID:           userID,
		ClientKey:        testClientKey,
		ClientReactionMs: &client,
		Mode:             mode,
		RunID:            runID,
		RunTotal:         runTotal,
	})
}

// play runs one full attempt: begin, wait for the trigger plus reaction, submit.
func (e *testEnv) play(t *testing.T, userID uint, mode string, reaction time.Duration, runID *string, runTotal *int) (*SubmitResult, error) {
	t.Helper()
	started := e.begin(t, userID, mode)
	e.clock.Advance(testDelay + reaction)
	return e.submit(userID, started.SessionID, mode, runID, runTotal)
}

func (e *testEnv) sessionStatus(t *testing.T, id string, userID uint) *model.ChallengeSession {
	t.Helper()
	s, err := e.sessions.FindForUser(context.Background(), id, userID)
	require.NoError(t, err)
	return s
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
