package services

import (
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stocktracker/internal/models"
)

// isUniqueConstraintError checks if a GORM error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "duplicate key value violates unique constraint") || // PostgreSQL
		strings.Contains(msg, "Duplicate entry") // MySQL
}

// forUpdate adds a row lock to the query on databases that support one.
// SQLite serializes writers already.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// clampDays bounds a lookback window in days.
func clampDays(days, def, max int) int {
	if days <= 0 {
		return def
	}
	if days > max {
		return max
	}
	return days
}

// startOfWindow is the first trading day of a days-long window ending today.
func startOfWindow(now time.Time, days int) time.Time {
	return models.TradingDay(now).AddDate(0, 0, -days)
}
