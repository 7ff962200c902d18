package model

import (
	"time"

	"github.com/google/uuid"
)

// swagger:model
type BaseModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GenerateUUID returns a random (version 4) UUID string. Challenge session
// tokens rely on its 122 random bits being unguessable.
func GenerateUUID() string {
	return uuid.New().String()
}
