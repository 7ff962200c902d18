package repository

import (
	"context"

	"reaction_timer_backend/internal/model"

	"gorm.io/gorm"
)

type AuditRepository struct {
	DB *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{DB: db}
}

func (r *AuditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	return r.DB.WithContext(ctx).Create(entry).Error
}

func (r *AuditRepository) ListBySession(ctx context.Context, sessionID string) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	err := r.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&logs).Error
	return logs, err
}
