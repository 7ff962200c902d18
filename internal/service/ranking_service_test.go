package service

import (
	"context"
	"testing"

	"reaction_timer_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenseRank(t *testing.T) {
	entries := DenseRank([]model.RankingEntry{
		{UserID: 3, Username: "carol", BestTime: 150},
		{UserID: 2, Username: "bob", BestTime: 100},
		{UserID: 1, Username: "alice", BestTime: 100},
	})

	ranks := make([]int, 0, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ranks = append(ranks, e.Rank)
		names = append(names, e.Username)
	}
	assert.Equal(t, []int{1, 1, 2}, ranks)
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)

	assert.Empty(t, DenseRank(nil))
}

func TestClampHistoryLimit(t *testing.T) {
	assert.Equal(t, 10, ClampHistoryLimit(0))
	assert.Equal(t, 5, ClampHistoryLimit(1))
	assert.Equal(t, 7, ClampHistoryLimit(7))
	assert.Equal(t, 10, ClampHistoryLimit(50))
}

func seedScore(t *testing.T, e *testEnv, userID uint, mode model.GameMode, runKey string, runTotal, reaction int) {
	t.Helper()
	s := &model.Score{
		UserID:     userID,
		SessionID:  runKey + "-" + e.clock.Now().Format("150405.000000000"),
		Mode:       mode,
		RunKey:     runKey,
		RunTotal:   runTotal,
		ReactionMs: reaction,
		CreatedAt:  e.clock.Now(),
	}
	if mode.IsMultiAttempt() {
		s.RunID = &runKey
	}
	require.NoError(t, e.scores.Create(context.Background(), s))
	e.clock.Advance(1)
}

func TestLeaderboardAndPersonalRank(t *testing.T) {
	e := newTestEnv(t, testCooldown)
	ctx := context.Background()
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")
	carol := e.createUser(t, "carol")
	dave := e.createUser(t, "dave")

	seedScore(t, e, alice, model.ModeSingle, "a1", 1, 300)
	seedScore(t, e, alice, model.ModeSingle, "a2", 1, 100)
	seedScore(t, e, bob, model.ModeSingle, "b1", 1, 100)
	seedScore(t, e, carol, model.ModeSingle, "c1", 1, 150)
	// An incomplete run is invisible.
	seedScore(t, e, dave, model.ModeMultiple, "d1", 3, 50)

	board, err := e.ranking.Leaderboard(ctx, model.ModeSingle, 0)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, model.RankingEntry{Rank: 1, UserID: alice, Username: "alice", BestTime: 100, Attempts: 2}, board[0])
	assert.Equal(t, model.RankingEntry{Rank: 1, UserID: bob, Username: "bob", BestTime: 100, Attempts: 1}, board[1])
	assert.Equal(t, model.RankingEntry{Rank: 2, UserID: carol, Username: "carol", BestTime: 150, Attempts: 1}, board[2])

	top, err := e.ranking.Leaderboard(ctx, model.ModeSingle, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	rank, err := e.ranking.PersonalRank(ctx, model.ModeSingle, carol)
	require.NoError(t, err)
	require.NotNil(t, rank)
	assert.Equal(t, 2, rank.Rank)

	rank, err = e.ranking.PersonalRank(ctx, model.ModeMultiple, dave)
	require.NoError(t, err)
	assert.Nil(t, rank)

	personal, err := e.ranking.PersonalFastest(ctx, model.ModeSingle, alice)
	require.NoError(t, err)
	require.NotNil(t, personal.Fastest)
	assert.Equal(t, 100, *personal.Fastest)
	assert.Equal(t, int64(2), personal.Runs)
}

func TestLargestDeclaredRunTotalIsAuthoritative(t *testing.T) {
	e := newTestEnv(t, testCooldown)
	ctx := context.Background()
	alice := e.createUser(t, "alice")

	seedScore(t, e, alice, model.ModeMultiple, "r", 2, 100)
	seedScore(t, e, alice, model.ModeMultiple, "r", 3, 100)

	fastest, err := e.ranking.GlobalFastest(ctx, model.ModeMultiple)
	require.NoError(t, err)
	assert.Nil(t, fastest.Fastest)

	seedScore(t, e, alice, model.ModeMultiple, "r", 2, 100)
	fastest, err = e.ranking.GlobalFastest(ctx, model.ModeMultiple)
	require.NoError(t, err)
	require.NotNil(t, fastest.Fastest)
	assert.Equal(t, 300, *fastest.Fastest)
}

func TestHistoryNewestFirstAndClamped(t *testing.T) {
	e := newTestEnv(t, testCooldown)
	ctx := context.Background()
	alice := e.createUser(t, "alice")

	for i := 0; i < 12; i++ {
		seedScore(t, e, alice, model.ModeSingle, "h"+string(rune('a'+i)), 1, 100+i)
	}

	history, err := e.ranking.History(ctx, alice, model.ModeSingle, 0)
	require.NoError(t, err)
	require.Len(t, history, 10)
	assert.Equal(t, 111, history[0].Total)
	assert.Equal(t, 102, history[9].Total)
	assert.True(t, history[0].CompletedAt.After(history[1].CompletedAt))

	history, err = e.ranking.History(ctx, alice, model.ModeSingle, 2)
	require.NoError(t, err)
	assert.Len(t, history, 5)
}

func TestSnapshotForAnonymousCaller(t *testing.T) {
	e := newTestEnv(t, testCooldown)
	ctx := context.Background()
	alice := e.createUser(t, "alice")
	seedScore(t, e, alice, model.ModeSingle, "s1", 1, 210)

	snap, err := e.ranking.Snapshot(ctx, model.ModeSingle, nil)
	require.NoError(t, err)
	assert.Nil(t, snap.PersonalFastest)
	assert.Nil(t, snap.PersonalRank)
	require.Len(t, snap.Leaderboard, 1)
	require.NotNil(t, snap.GlobalFastest.Fastest)
	assert.Equal(t, 210, *snap.GlobalFastest.Fastest)
}
