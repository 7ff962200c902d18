package model

import "time"

type AuditEventType string

const (
	AuditRegister          AuditEventType = "register"
	AuditLogin             AuditEventType = "login"
	AuditStart             AuditEventType = "start"
	AuditSubmit            AuditEventType = "submit"
	AuditPrematureSubmit   AuditEventType = "premature_submit"
	AuditFailedValidation  AuditEventType = "failed_validation"
	AuditInvalidRun        AuditEventType = "invalid_run"
	AuditExpired           AuditEventType = "expired"
	AuditOwnershipMismatch AuditEventType = "ownership_mismatch"
)

// swagger:model AuditLog
type AuditLog struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID   string         `gorm:"type:char(26);uniqueIndex;not null" json:"eventId"`
	EventType AuditEventType `gorm:"type:varchar(32);index;not null" json:"eventType"`
	UserID    *uint          `gorm:"index" json:"userId,omitempty"`
	SessionID *string        `gorm:"type:varchar(36)" json:"sessionId,omitempty"`
	ClientKey string         `gorm:"type:varchar(64)" json:"clientKey,omitempty"`
	Details   string         `gorm:"type:text" json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
