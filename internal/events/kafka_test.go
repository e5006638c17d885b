package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktracker/internal/models"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	fixed := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

	t.Run("refreshed_event_keyed_by_symbol", func(t *testing.T) {
		w := &captureWriter{}
		p := &KafkaPublisher{writer: w, now: func() time.Time { return fixed }}

		stock := &models.Stock{Symbol: "AAPL", CurrentPrice: decimal.RequireFromString("187.25")}
		require.NoError(t, p.PublishStockRefreshed(context.Background(), stock))
		require.Len(t, w.msgs, 1)
		assert.Equal(t, "AAPL", string(w.msgs[0].Key))

		var evt StockEvent
		require.NoError(t, json.Unmarshal(w.msgs[0].Value, &evt))
		assert.Equal(t, StockRefreshed, evt.EventType)
		assert.Equal(t, "AAPL", evt.Symbol)
		assert.True(t, fixed.Equal(evt.Timestamp))
		require.NotNil(t, evt.Stock)
		assert.Equal(t, "187.25", evt.Stock.CurrentPrice.String())
	})

	t.Run("removed_event_has_no_stock", func(t *testing.T) {
		w := &captureWriter{}
		p := &KafkaPublisher{writer: w, now: func() time.Time { return fixed }}

		require.NoError(t, p.PublishStockRemoved(context.Background(), "MSFT"))
		var evt StockEvent
		require.NoError(t, json.Unmarshal(w.msgs[0].Value, &evt))
		assert.Equal(t, StockRemoved, evt.EventType)
		assert.Nil(t, evt.Stock)
	})

	t.Run("write_error_is_wrapped", func(t *testing.T) {
		w := &captureWriter{err: errors.New("broker down")}
		p := &KafkaPublisher{writer: w, now: time.Now}

		err := p.PublishStockRemoved(context.Background(), "MSFT")
		assert.ErrorContains(t, err, "broker down")
	})

	t.Run("close", func(t *testing.T) {
		w := &captureWriter{}
		p := &KafkaPublisher{writer: w, now: time.Now}
		require.NoError(t, p.Close())
		assert.True(t, w.closed)
	})
}
