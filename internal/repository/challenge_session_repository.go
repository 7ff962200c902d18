package repository

import (
	"context"
	"errors"
	"time"

	"reaction_timer_backend/internal/model"

	"gorm.io/gorm"
)

// ErrSessionNotActive means a conditional finalize found the session already
// moved out of the active status.
var ErrSessionNotActive = errors.New("challenge session is no longer active")

type ChallengeSessionRepository struct {
	DB *gorm.DB
}

func NewChallengeSessionRepository(db *gorm.DB) *ChallengeSessionRepository {
	return &ChallengeSessionRepository{DB: db}
}

// WithTx returns a repository bound to tx.
func (r *ChallengeSessionRepository) WithTx(tx *gorm.DB) *ChallengeSessionRepository {
	return &ChallengeSessionRepository{DB: tx}
}

func (r *ChallengeSessionRepository) Create(ctx context.Context, session *model.ChallengeSession) error {
	return r.DB.WithContext(ctx).Create(session).Error
}

// FindForUser loads a session only if it belongs to userID.
func (r *ChallengeSessionRepository) FindForUser(ctx context.Context, id string, userID uint) (*model.ChallengeSession, error) {
	var s model.ChallengeSession
	err := r.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Finalize persists a terminal transition already applied to session. The
// write only succeeds while the stored row is still active, so two writers
// can never both finalize one session.
func (r *ChallengeSessionRepository) Finalize(ctx context.Context, session *model.ChallengeSession) error {
	res := r.DB.WithContext(ctx).
		Model(&model.ChallengeSession{}).
		Where("id = ? AND status = ?", session.ID, model.SessionActive).
		Updates(map[string]interface{}{
			"status":             session.Status,
			"submitted_at":       session.SubmittedAt,
			"client_reaction_ms": session.ClientReactionMs,
			"server_reaction_ms": session.ServerReactionMs,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotActive
	}
	return nil
}

// ListActiveStartedBefore returns up to limit active sessions started before
// cutoff, oldest first.
func (r *ChallengeSessionRepository) ListActiveStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.ChallengeSession, error) {
	var sessions []model.ChallengeSession
	err := r.DB.WithContext(ctx).
		Where("status = ? AND started_at < ?", model.SessionActive, cutoff).
		Order("started_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}
