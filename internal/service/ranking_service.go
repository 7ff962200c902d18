package service

import (
	"context"
	"fmt"
	"sort"

	"reaction_timer_backend/internal/model"
	"reaction_timer_backend/internal/repository"
)

const (
	DefaultLeaderboardLimit = 5
	minHistoryLimit         = 5
	maxHistoryLimit         = 10
)

// RankingService derives fastest times, rankings and history from completed
// runs at read time. Nothing is cached, so every read reflects all committed
// attempts.
type RankingService struct {
	scoreRepo        *repository.ScoreRepository
	userRepo         *repository.UserRepository
	leaderboardLimit int
	historyLimit     int
}

func NewRankingService(scoreRepo *repository.ScoreRepository, userRepo *repository.UserRepository, leaderboardLimit, historyLimit int) *RankingService {
	if leaderboardLimit <= 0 {
		leaderboardLimit = DefaultLeaderboardLimit
	}
	return &RankingService{
		scoreRepo:        scoreRepo,
		userRepo:         userRepo,
		leaderboardLimit: leaderboardLimit,
		historyLimit:     ClampHistoryLimit(historyLimit),
	}
}

func (s *RankingService) GlobalFastest(ctx context.Context, mode model.GameMode) (model.Fastest, error) {
	row, err := s.scoreRepo.Fastest(ctx, mode, nil)
	if err != nil {
		return model.Fastest{}, fmt.Errorf("global fastest: %w", err)
	}
	return model.Fastest{Fastest: row.Fastest, Runs: row.Runs}, nil
}

func (s *RankingService) PersonalFastest(ctx context.Context, mode model.GameMode, userID uint) (model.Fastest, error) {
	row, err := s.scoreRepo.Fastest(ctx, mode, &userID)
	if err != nil {
		return model.Fastest{}, fmt.Errorf("personal fastest: %w", err)
	}
	return model.Fastest{Fastest: row.Fastest, Runs: row.Runs}, nil
}

// Ranking returns every user with at least one completed run in mode, dense
// ranked by best run score.
func (s *RankingService) Ranking(ctx context.Context, mode model.GameMode) ([]model.RankingEntry, error) {
	bests, err := s.scoreRepo.UserBests(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("user bests: %w", err)
	}

	ids := make([]uint, 0, len(bests))
	for _, b := range bests {
		ids = append(ids, b.UserID)
	}
	names, err := s.userRepo.UsernamesByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve usernames: %w", err)
	}

	entries := make([]model.RankingEntry, 0, len(bests))
	for _, b := range bests {
		entries = append(entries, model.RankingEntry{
			UserID:   b.UserID,
			Username: names[b.UserID],
			BestTime: b.BestTime,
			Attempts: b.Runs,
		})
	}
	return DenseRank(entries), nil
}

// Leaderboard returns the first limit rows of the ranking. A non-positive
// limit uses the configured default.
func (s *RankingService) Leaderboard(ctx context.Context, mode model.GameMode, limit int) ([]model.RankingEntry, error) {
	ranking, err := s.Ranking(ctx, mode)
	if err != nil {
		return nil, err
	}
	return topN(ranking, s.limitOrDefault(limit)), nil
}

// PersonalRank returns the caller's row in the full ranking, or nil when the
// user has no completed run in mode.
func (s *RankingService) PersonalRank(ctx context.Context, mode model.GameMode, userID uint) (*model.RankingEntry, error) {
	ranking, err := s.Ranking(ctx, mode)
	if err != nil {
		return nil, err
	}
	return findEntry(ranking, userID), nil
}

// History returns the user's newest completed runs. limit is clamped to
// [5, 10]; zero means the configured default.
func (s *RankingService) History(ctx context.Context, userID uint, mode model.GameMode, limit int) ([]model.CompletedRun, error) {
	if limit == 0 {
		limit = s.historyLimit
	}
	runs, err := s.scoreRepo.RecentCompletedRuns(ctx, userID, mode, ClampHistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return runs, nil
}

// Snapshot is the set of ranking views returned together to a client.
type Snapshot struct {
	Mode            model.GameMode       `json:"mode"`
	GlobalFastest   model.Fastest        `json:"global"`
	PersonalFastest *model.Fastest       `json:"personal,omitempty"`
	Leaderboard     []model.RankingEntry `json:"leaderboard"`
	PersonalRank    *model.RankingEntry  `json:"personal_ranking,omitempty"`
}

// Snapshot builds every view for mode. userID may be nil for anonymous
// callers, in which case personal views are left empty.
func (s *RankingService) Snapshot(ctx context.Context, mode model.GameMode, userID *uint) (*Snapshot, error) {
	global, err := s.GlobalFastest(ctx, mode)
	if err != nil {
		return nil, err
	}
	ranking, err := s.Ranking(ctx, mode)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Mode:          mode,
		GlobalFastest: global,
		Leaderboard:   topN(ranking, s.leaderboardLimit),
	}
	if userID != nil {
		personal, err := s.PersonalFastest(ctx, mode, *userID)
		if err != nil {
			return nil, err
		}
		snap.PersonalFastest = &personal
		snap.PersonalRank = findEntry(ranking, *userID)
	}
	return snap, nil
}

func (s *RankingService) limitOrDefault(limit int) int {
	if limit <= 0 {
		return s.leaderboardLimit
	}
	return limit
}

// DenseRank orders entries by best time and assigns dense ranks: equal
// times share a rank and the next distinct time gets the next integer.
// Ties are listed by username, then user id. The input slice is sorted in
// place and returned.
func DenseRank(entries []model.RankingEntry) []model.RankingEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.BestTime != b.BestTime {
			return a.BestTime < b.BestTime
		}
		if a.Username != b.Username {
			return a.Username < b.Username
		}
		return a.UserID < b.UserID
	})

	rank := 0
	for i := range entries {
		if i == 0 || entries[i].BestTime != entries[i-1].BestTime {
			rank++
		}
		entries[i].Rank = rank
	}
	return entries
}

// ClampHistoryLimit bounds a requested history length to [5, 10].
func ClampHistoryLimit(limit int) int {
	if limit <= 0 {
		return maxHistoryLimit
	}
	if limit < minHistoryLimit {
		return minHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func topN(entries []model.RankingEntry, n int) []model.RankingEntry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}

func findEntry(entries []model.RankingEntry, userID uint) *model.RankingEntry {
	for i := range entries {
		if entries[i].UserID == userID {
			entry := entries[i]
			return &entry
		}
	}
	return nil
}
