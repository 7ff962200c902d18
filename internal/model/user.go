package model

import (
	"regexp"
	"time"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,24}$`)

// swagger:model User
type User struct {
	BaseModel
	Username  string     `gorm:"size:24;uniqueIndex;not null" json:"username"`
	Password  string     `gorm:"size:100;not null" json:"-"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

func IsValidPassword(password string) bool {
	return len(password) >= 6 && len(password) <= 128
}
