package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base contains common columns for all tables
type Base struct {
	ID        string    `gorm:"size:36;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = NewID()
	}
	return nil
}

// NewID returns a time-ordered UUIDv7 string, falling back to a random v4
// if the clock sequence cannot be read.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// All lists every model managed by AutoMigrate, parents before children.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Stock{},
		&StockHistory{},
		&UserStock{},
		&WatchlistItem{},
		&AuditLog{},
	}
}
