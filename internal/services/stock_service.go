package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "stocktracker/internal/errors"
	"stocktracker/internal/events"
	"stocktracker/internal/indicators"
	"stocktracker/internal/lock"
	"stocktracker/internal/logger"
	"stocktracker/internal/marketdata"
	"stocktracker/internal/models"
	"stocktracker/internal/pagination"
	"stocktracker/internal/symbol"
)

// Defaults for StockServiceOptions.
const (
	DefaultStaleAfter = 15 * time.Minute

	defaultSearchLimit = 10
	maxSearchLimit     = 50
	maxIndicatorDays   = 1000
	historyBatchSize   = 200
)

// StockServiceOptions configures the refresh orchestrator. Zero values fall
// back to defaults: a 15 minute staleness window, one month of history, an
// in-process lock, no event publishing, and the wall clock.
type StockServiceOptions struct {
	StaleAfter    time.Duration
	HistoryPeriod marketdata.Period
	Locker        lock.Locker
	Publisher     events.Publisher
	Clock         func() time.Time
	Logger        *zap.SugaredLogger
}

// stockService owns the stock cache and refreshes it from a provider.
type stockService struct {
	db         *gorm.DB
	provider   marketdata.Provider
	locker     lock.Locker
	publisher  events.Publisher
	staleAfter time.Duration
	period     marketdata.Period
	now        func() time.Time
	log        *zap.SugaredLogger
	group      singleflight.Group
}

// NewStockService creates a new StockServicer.
func NewStockService(db *gorm.DB, provider marketdata.Provider, opts StockServiceOptions) StockServicer {
	s := &stockService{
		db:         db,
		provider:   provider,
		locker:     opts.Locker,
		publisher:  opts.Publisher,
		staleAfter: opts.StaleAfter,
		period:     opts.HistoryPeriod,
		now:        opts.Clock,
		log:        opts.Logger,
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.staleAfter <= 0 {
		s.staleAfter = DefaultStaleAfter
	}
	if s.period == "" {
		s.period = marketdata.DefaultPeriod
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = logger.Component("refresh")
	}
	return s
}

func invalidSymbol(raw string) error {
	return apperrors.WithMessage(apperrors.ErrInvalidSymbol, fmt.Sprintf("Invalid stock symbol: %q", raw))
}

// GetOrRefresh returns the cached stock for symbol, refreshing it first when
// forced, absent, or older than the staleness window.
//
// Concurrent calls for the same symbol and force flag share one execution;
// the whole check-fetch-write sequence runs under the per-symbol lock. The
// shared execution ignores any single caller's cancellation; a caller whose
// ctx ends stops waiting and gets ctx's error.
func (s *stockService) GetOrRefresh(ctx context.Context, raw string, forceUpdate bool) (*models.Stock, error) {
	kind, sym, err := symbol.Classify(raw)
	if err != nil {
		return nil, invalidSymbol(raw)
	}

	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, fmt.Errorf("refresh %s: %w", sym, err))
	}

	key := sym
	if forceUpdate {
		key += "|force"
	}
	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.refresh(flightCtx, sym, kind, forceUpdate)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, fmt.Errorf("refresh %s: %w", sym, ctx.Err()))
	}

	err = res.Err
	stock, _ := res.Val.(*models.Stock)
	if stock != nil {
		// Callers sharing a flight must not share the pointer.
		cp := *stock
		stock = &cp
	}
	return stock, err
}

func (s *stockService) refresh(ctx context.Context, sym string, kind symbol.Kind, forceUpdate bool) (*models.Stock, error) {
	unlock, err := s.locker.Lock(ctx, sym)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, fmt.Errorf("acquire lock for %s: %w", sym, err))
	}
	defer unlock()

	existing, err := s.findBySymbol(s.db.WithContext(ctx), sym)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	now := s.now()
	if !forceUpdate && existing != nil && !existing.IsStale(now, s.staleAfter) {
		return existing, nil
	}

	quote := s.provider.Quote(ctx, sym)
	switch quote.Kind {
	case marketdata.KindError:
		s.log.Warnw("Provider quote failed",
			"symbol", sym,
			"provider", s.provider.Name(),
			"reason", quote.Reason,
			"cached", existing != nil,
		)
		return existing, apperrors.Wrap(apperrors.ErrProviderUnavailable, quote.Err)
	case marketdata.KindNoData:
		s.log.Infow("Provider has no quote", "symbol", sym, "reason", quote.Reason, "cached", existing != nil)
		return existing, apperrors.Wrap(apperrors.ErrNoDataAvailable, fmt.Errorf("%s: %s", sym, quote.Reason))
	}

	bars := s.fetchBars(ctx, sym, quote.Quote, now)

	stock, err := s.save(ctx, sym, kind, quote.Quote, bars, now)
	if err != nil {
		s.log.Errorw("Failed to persist refresh", "symbol", sym, "error", err)
		return nil, err
	}

	s.log.Debugw("Stock refreshed", "symbol", sym, "price", stock.CurrentPrice.String(), "bars", len(bars))
	if err := s.publisher.PublishStockRefreshed(ctx, stock); err != nil {
		s.log.Warnw("Failed to publish stock event", "symbol", sym, "error", err)
	}
	return stock, nil
}

// fetchBars returns the history window to write. A failed or empty history
// fetch falls back to a single bar for today at the quoted price.
func (s *stockService) fetchBars(ctx context.Context, sym string, q marketdata.Quote, now time.Time) []marketdata.Bar {
	history := s.provider.History(ctx, sym, s.period, marketdata.IntervalDay)
	if history.Kind == marketdata.KindOK && len(history.Bars) > 0 {
		return history.Bars
	}
	s.log.Warnw("History unavailable, writing today's bar only",
		"symbol", sym,
		"kind", history.Kind.String(),
		"reason", history.Reason,
	)
	return []marketdata.Bar{{
		Date:     models.TradingDay(now),
		Open:     q.Price,
		High:     q.Price,
		Low:      q.Price,
		Close:    q.Price,
		AdjClose: q.Price,
		Volume:   q.Volume,
	}}
}

// save upserts the stock row and replaces the fetched history window in a
// single transaction.
func (s *stockService) save(ctx context.Context, sym string, kind symbol.Kind, q marketdata.Quote, bars []marketdata.Bar, now time.Time) (*models.Stock, error) {
	var stock models.Stock
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := forUpdate(tx).Where("symbol = ?", sym).First(&stock).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			stock = models.Stock{Symbol: sym}
		case err != nil:
			return err
		}

		applyQuote(&stock, kind, q, now)
		if err := tx.Save(&stock).Error; err != nil {
			return err
		}
		_, err = replaceHistory(tx, stock.ID, bars, false)
		return err
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistenceFailure, err)
	}
	return &stock, nil
}

func applyQuote(stock *models.Stock, kind symbol.Kind, q marketdata.Quote, now time.Time) {
	stock.Type = models.StockType(kind)
	switch {
	case q.Name != "":
		stock.Name = q.Name
	case stock.Name == "":
		stock.Name = stock.Symbol
	}
	switch {
	case q.Currency != "":
		stock.Currency = strings.ToUpper(q.Currency)
	case stock.Currency == "":
		stock.Currency = "USD"
	}
	stock.CurrentPrice = q.Price
	if q.PreviousClose.IsPositive() {
		stock.PreviousClose = q.PreviousClose
	}
	if q.MarketCap > 0 {
		stock.MarketCap = q.MarketCap
	}
	stock.Volume = q.Volume
	if q.AvgVolume > 0 {
		stock.AvgVolume = q.AvgVolume
	}

	updated := now.UTC()
	if stock.LastUpdated != nil && stock.LastUpdated.After(updated) {
		updated = *stock.LastUpdated
	}
	stock.LastUpdated = &updated
}

// replaceHistory writes bars for stockID, deleting existing rows first:
// every row when replaceAll is set, otherwise only rows dated within the
// fetched range. Bars sharing a trading day collapse to the last one.
func replaceHistory(tx *gorm.DB, stockID string, bars []marketdata.Bar, replaceAll bool) (int, error) {
	byDay := make(map[time.Time]models.StockHistory, len(bars))
	for _, b := range bars {
		day := models.TradingDay(b.Date)
		adj := b.AdjClose
		if !adj.IsPositive() {
			adj = b.Close
		}
		byDay[day] = models.StockHistory{
			StockID:       stockID,
			Date:          day,
			Open:          b.Open,
			High:          b.High,
			Low:           b.Low,
			Close:         b.Close,
			AdjustedClose: adj,
			Volume:        b.Volume,
		}
	}
	if len(byDay) == 0 {
		return 0, nil
	}

	rows := make([]models.StockHistory, 0, len(byDay))
	for _, row := range byDay {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	del := tx.Where("stock_id = ?", stockID)
	if !replaceAll {
		del = del.Where("date >= ? AND date <= ?", rows[0].Date, rows[len(rows)-1].Date)
	}
	if err := del.Delete(&models.StockHistory{}).Error; err != nil {
		return 0, err
	}
	if err := tx.CreateInBatches(&rows, historyBatchSize).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}

// findBySymbol returns nil without error when no row exists.
func (s *stockService) findBySymbol(db *gorm.DB, sym string) (*models.Stock, error) {
	var stock models.Stock
	if err := db.Where("symbol = ?", sym).First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stock, nil
}

// GetStock returns the cached row for symbol without contacting the provider.
func (s *stockService) GetStock(raw string) (*models.Stock, error) {
	sym, err := symbol.Normalize(raw)
	if err != nil {
		return nil, invalidSymbol(raw)
	}
	stock, err := s.findBySymbol(s.db, sym)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if stock == nil {
		return nil, apperrors.ErrStockNotFound
	}
	return stock, nil
}

// EnsureStock returns the row for symbol, creating an unpriced one inside tx
// when absent. The provider is not contacted, so LastUpdated stays nil and
// the next GetOrRefresh fetches it.
func (s *stockService) EnsureStock(tx *gorm.DB, raw, name string) (*models.Stock, error) {
	kind, sym, err := symbol.Classify(raw)
	if err != nil {
		return nil, invalidSymbol(raw)
	}

	existing, err := s.findBySymbol(tx, sym)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if existing != nil {
		return existing, nil
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = sym
	}
	candidate := &models.Stock{Symbol: sym, Name: name, Type: models.StockType(kind), Currency: "USD"}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(candidate).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistenceFailure, err)
	}

	// A concurrent insert may have won the race; read back whichever row exists.
	created, err := s.findBySymbol(tx, sym)
	if err != nil || created == nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistenceFailure, fmt.Errorf("stock %s missing after insert: %v", sym, err))
	}
	return created, nil
}

// GetRecentHistory returns up to limit of the most recent bars, oldest first.
func (s *stockService) GetRecentHistory(stockID string, limit int) ([]models.StockHistory, error) {
	if limit <= 0 {
		limit = 30
	}
	var rows []models.StockHistory
	if err := s.db.Where("stock_id = ?", stockID).
		Order("date DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// GetHistory returns a page of bars for symbol, newest first.
func (s *stockService) GetHistory(raw string, filter HistoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.StockHistory], error) {
	page.Defaults()

	stock, err := s.GetStock(raw)
	if err != nil {
		return nil, err
	}

	base := s.db.Model(&models.StockHistory{}).Where("stock_id = ?", stock.ID)
	if filter.FromDate != nil {
		base = base.Where("date >= ?", models.TradingDay(*filter.FromDate))
	}
	if filter.ToDate != nil {
		base = base.Where("date <= ?", models.TradingDay(*filter.ToDate))
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var rows []models.StockHistory
	if err := base.Order("date DESC").Scopes(pagination.Paginate(page)).Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(rows, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetIndicators computes the requested indicators over the last days bars.
func (s *stockService) GetIndicators(raw string, requests []indicators.Request, days int) (*IndicatorReport, error) {
	stock, err := s.GetStock(raw)
	if err != nil {
		return nil, err
	}
	days = clampDays(days, 200, maxIndicatorDays)

	rows, err := s.GetRecentHistory(stock.ID, days)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrNoDataAvailable, "No price history cached for "+stock.Symbol)
	}

	report := &IndicatorReport{
		Symbol:     stock.Symbol,
		Dates:      make([]time.Time, len(rows)),
		Closes:     make([]float64, len(rows)),
		Indicators: make(map[string]interface{}, len(requests)),
	}
	bars := indicators.Bars{
		Open:   make([]float64, len(rows)),
		Close:  report.Closes,
		Volume: make([]int64, len(rows)),
	}
	for i, row := range rows {
		report.Dates[i] = row.Date
		report.Closes[i], _ = row.Close.Float64()
		bars.Open[i], _ = row.Open.Float64()
		bars.Volume[i] = row.Volume
	}
	for _, req := range requests {
		report.Indicators[req.Key()] = indicators.Compute(req, bars)
	}
	return report, nil
}

// SearchStocks matches cached stocks by symbol or name. Results are ranked
// exact symbol, exact name, symbol prefix, name prefix, then by shorter
// symbol and alphabetically. Queries under two characters match nothing.
func (s *stockService) SearchStocks(query string, limit int) ([]models.Stock, error) {
	q := strings.ToUpper(strings.TrimSpace(query))
	if len(q) < 2 {
		return []models.Stock{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	pattern := "%" + stripWildcards(q) + "%"
	var candidates []models.Stock
	if err := s.db.
		Where("UPPER(symbol) LIKE ? OR UPPER(name) LIKE ?", pattern, pattern).
		Order("symbol").
		Limit(maxSearchLimit * 4).
		Find(&candidates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	rank := func(st models.Stock) int {
		sym, name := strings.ToUpper(st.Symbol), strings.ToUpper(st.Name)
		switch {
		case sym == q:
			return 0
		case name == q:
			return 1
		case strings.HasPrefix(sym, q):
			return 2
		case strings.HasPrefix(name, q):
			return 3
		default:
			return 4
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := rank(candidates[i]), rank(candidates[j])
		if ri != rj {
			return ri < rj
		}
		if len(candidates[i].Symbol) != len(candidates[j].Symbol) {
			return len(candidates[i].Symbol) < len(candidates[j].Symbol)
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// stripWildcards drops LIKE metacharacters, whose escape syntax differs
// between the supported databases.
func stripWildcards(s string) string {
	return strings.NewReplacer(`%`, "", `_`, "", `\`, "").Replace(s)
}

// Backfill replaces the entire cached history of an existing stock with
// period of daily bars and returns the number of bars written.
func (s *stockService) Backfill(ctx context.Context, raw string, period marketdata.Period) (int, error) {
	sym, err := symbol.Normalize(raw)
	if err != nil {
		return 0, invalidSymbol(raw)
	}
	if period == "" {
		period = marketdata.DefaultBackfill
	}

	unlock, err := s.locker.Lock(ctx, sym)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, fmt.Errorf("acquire lock for %s: %w", sym, err))
	}
	defer unlock()

	stock, err := s.GetStock(sym)
	if err != nil {
		return 0, err
	}

	history := s.provider.History(ctx, sym, period, marketdata.IntervalDay)
	switch history.Kind {
	case marketdata.KindError:
		return 0, apperrors.Wrap(apperrors.ErrProviderUnavailable, history.Err)
	case marketdata.KindNoData:
		return 0, apperrors.Wrap(apperrors.ErrNoDataAvailable, fmt.Errorf("%s: %s", sym, history.Reason))
	}

	var written int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, txErr := replaceHistory(tx, stock.ID, history.Bars, true)
		written = n
		return txErr
	})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrPersistenceFailure, err)
	}

	s.log.Infow("History backfilled", "symbol", sym, "period", string(period), "bars", written)
	return written, nil
}

// DeleteStock removes a stock with its history, holdings, and watchlist
// entries.
func (s *stockService) DeleteStock(ctx context.Context, raw string) error {
	sym, err := symbol.Normalize(raw)
	if err != nil {
		return invalidSymbol(raw)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stock, txErr := s.findBySymbol(forUpdate(tx), sym)
		if txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		if stock == nil {
			return apperrors.ErrStockNotFound
		}
		for _, child := range []interface{}{&models.StockHistory{}, &models.UserStock{}, &models.WatchlistItem{}} {
			if txErr := tx.Where("stock_id = ?", stock.ID).Delete(child).Error; txErr != nil {
				return apperrors.Wrap(apperrors.ErrPersistenceFailure, txErr)
			}
		}
		if txErr := tx.Delete(stock).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrPersistenceFailure, txErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.publisher.PublishStockRemoved(ctx, sym); err != nil {
		s.log.Warnw("Failed to publish stock event", "symbol", sym, "error", err)
	}
	return nil
}

// PruneHistory deletes bars dated before olderThan.
func (s *stockService) PruneHistory(olderThan time.Time) (int64, error) {
	result := s.db.Where("date < ?", models.TradingDay(olderThan)).Delete(&models.StockHistory{})
	if result.Error != nil {
		return 0, apperrors.Wrap(apperrors.ErrPersistenceFailure, result.Error)
	}
	return result.RowsAffected, nil
}
