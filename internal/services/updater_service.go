package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "stocktracker/internal/errors"
	"stocktracker/internal/logger"
	"stocktracker/internal/models"
)

// updaterService refreshes every cached stock in one sequential pass.
type updaterService struct {
	db     *gorm.DB
	stocks StockServicer
	log    *zap.SugaredLogger
}

// NewUpdaterService creates a new UpdaterServicer.
func NewUpdaterService(db *gorm.DB, stocks StockServicer) UpdaterServicer {
	return &updaterService{db: db, stocks: stocks, log: logger.Component("updater")}
}

// UpdateAll force-refreshes each stock ordered by symbol. A failing symbol is
// recorded in the result and the pass continues; each symbol commits on its
// own. Cancelling ctx stops the pass between symbols and returns the partial
// result with ctx's error.
func (s *updaterService) UpdateAll(ctx context.Context) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{StartedAt: start.UTC(), Failed: []SymbolFailure{}}

	var symbols []string
	if err := s.db.WithContext(ctx).Model(&models.Stock{}).Order("symbol").Pluck("symbol", &symbols).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	result.Total = len(symbols)
	s.log.Infow("Batch update started", "symbols", len(symbols))

	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			result.DurationMS = time.Since(start).Milliseconds()
			s.log.Warnw("Batch update cancelled", "updated", result.Updated, "remaining", result.Total-result.Updated-len(result.Failed))
			return result, err
		}

		if _, err := s.stocks.GetOrRefresh(ctx, sym, true); err != nil {
			failure := SymbolFailure{Symbol: sym, Code: apperrors.ErrInternalServer.Code, Message: err.Error()}
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				failure.Code = appErr.Code
				failure.Message = appErr.Message
			}
			result.Failed = append(result.Failed, failure)
			s.log.Warnw("Failed to update stock", "symbol", sym, "code", failure.Code, "error", err)
			continue
		}
		result.Updated++
	}

	result.DurationMS = time.Since(start).Milliseconds()
	s.log.Infow("Batch update finished",
		"total", result.Total,
		"updated", result.Updated,
		"failed", len(result.Failed),
		"duration_ms", result.DurationMS,
	)
	return result, nil
}
