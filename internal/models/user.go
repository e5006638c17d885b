package models

import "time"

// User represents the user model in the database
type User struct {
	Base
	Email               string          `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password            string          `gorm:"not null" json:"-"`
	FirstName           string          `gorm:"size:100" json:"first_name"`
	LastName            string          `gorm:"size:100" json:"last_name"`
	IsActive            bool            `gorm:"default:true" json:"is_active"`
	RefreshTokenHash    string          `gorm:"size:64" json:"-"`
	FailedLoginAttempts int             `gorm:"default:0" json:"-"`
	LockedUntil         *time.Time      `json:"-"`
	LastLoginAt         *time.Time      `json:"last_login_at,omitempty"`
	Holdings            []UserStock     `gorm:"foreignKey:UserID" json:"holdings,omitempty"`
	Watchlist           []WatchlistItem `gorm:"foreignKey:UserID" json:"watchlist,omitempty"`
}
