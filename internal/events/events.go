// Package events publishes stock lifecycle events to downstream consumers.
package events

import (
	"context"
	"time"

	"stocktracker/internal/models"
)

// Event types.
const (
	StockRefreshed = "STOCK_REFRESHED"
	StockRemoved   = "STOCK_REMOVED"
)

// StockEvent is the JSON payload written for every event.
type StockEvent struct {
	EventType string        `json:"event_type"`
	Symbol    string        `json:"symbol"`
	Stock     *models.Stock `json:"stock,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Publisher emits stock events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishStockRefreshed(ctx context.Context, stock *models.Stock) error
	PublishStockRemoved(ctx context.Context, symbol string) error
	Close() error
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) PublishStockRefreshed(context.Context, *models.Stock) error { return nil }
func (NopPublisher) PublishStockRemoved(context.Context, string) error          { return nil }
func (NopPublisher) Close() error                                               { return nil }

var _ Publisher = NopPublisher{}
