package repository

import (
	"context"
	"time"

	"reaction_timer_backend/internal/model"

	"gorm.io/gorm"
)

type ScoreRepository struct {
	DB *gorm.DB
}

func NewScoreRepository(db *gorm.DB) *ScoreRepository {
	return &ScoreRepository{DB: db}
}

func (r *ScoreRepository) WithTx(tx *gorm.DB) *ScoreRepository {
	return &ScoreRepository{DB: tx}
}

func (r *ScoreRepository) Create(ctx context.Context, score *model.Score) error {
	return r.DB.WithContext(ctx).Create(score).Error
}

// ListRunAttempts returns a user's attempts sharing runKey, oldest first.
func (r *ScoreRepository) ListRunAttempts(ctx context.Context, userID uint, runKey string) ([]model.Score, error) {
	var scores []model.Score
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND run_key = ?", userID, runKey).
		Order("id ASC").
		Find(&scores).Error
	return scores, err
}

// completedRuns builds the query of complete runs for a mode: a run is
// complete when its attempt count equals the largest run_total any of its
// attempts declared. Single-attempt scores have run_total 1 and a unique
// run_key, so each is its own complete run.
func (r *ScoreRepository) completedRuns(ctx context.Context, mode model.GameMode, userID *uint) *gorm.DB {
	q := r.DB.WithContext(ctx).
		Model(&model.Score{}).
		Select("user_id, run_key, SUM(reaction_ms) AS total, COUNT(*) AS attempts, MAX(id) AS last_score_id").
		Where("mode = ?", mode)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	return q.Group("user_id, run_key").Having("COUNT(*) = MAX(run_total)")
}

type FastestRow struct {
	Fastest *int
	Runs    int64
}

// Fastest returns the minimum completed-run score and the number of
// completed runs, optionally for one user.
func (r *ScoreRepository) Fastest(ctx context.Context, mode model.GameMode, userID *uint) (FastestRow, error) {
	var row FastestRow
	err := r.DB.WithContext(ctx).
		Table("(?) AS runs", r.completedRuns(ctx, mode, userID)).
		Select("MIN(total) AS fastest, COUNT(*) AS runs").
		Scan(&row).Error
	return row, err
}

type UserBestRow struct {
	UserID   uint
	BestTime int
	Runs     int
}

// UserBests returns every user's best completed-run score and run count.
func (r *ScoreRepository) UserBests(ctx context.Context, mode model.GameMode) ([]UserBestRow, error) {
	var rows []UserBestRow
	err := r.DB.WithContext(ctx).
		Table("(?) AS runs", r.completedRuns(ctx, mode, nil)).
		Select("user_id, MIN(total) AS best_time, COUNT(*) AS runs").
		Group("user_id").
		Scan(&rows).Error
	return rows, err
}

type completedRunRow struct {
	UserID      uint
	RunKey      string
	Total       int
	Attempts    int
	LastScoreID uint
}

// RecentCompletedRuns returns a user's newest completed runs. A run's
// completion time is the creation time of its last attempt.
func (r *ScoreRepository) RecentCompletedRuns(ctx context.Context, userID uint, mode model.GameMode, limit int) ([]model.CompletedRun, error) {
	var rows []completedRunRow
	err := r.DB.WithContext(ctx).
		Table("(?) AS runs", r.completedRuns(ctx, mode, &userID)).
		Order("last_score_id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []model.CompletedRun{}, nil
	}

	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.LastScoreID)
	}

	var lasts []model.Score
	if err := r.DB.WithContext(ctx).Select("id", "created_at").Where("id IN ?", ids).Find(&lasts).Error; err != nil {
		return nil, err
	}
	createdAt := make(map[uint]time.Time, len(lasts))
	for _, s := range lasts {
		createdAt[s.ID] = s.CreatedAt
	}

	runs := make([]model.CompletedRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, model.CompletedRun{
			UserID:      row.UserID,
			RunKey:      row.RunKey,
			Total:       row.Total,
			Attempts:    row.Attempts,
			CompletedAt: createdAt[row.LastScoreID],
		})
	}
	return runs, nil
}
