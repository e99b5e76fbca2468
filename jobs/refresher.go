// Package jobs runs the background work of the server.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"stock-trader/database"
	"stock-trader/models"
)

const batchSize = 100

// QuoteRefresher fetches a fresh quote bypassing any cache.
type QuoteRefresher interface {
	Refresh(ctx context.Context, symbol string) (*models.Quote, error)
}

// Refresher keeps the quotes of every held symbol warm and logs their prices.
type Refresher struct {
	store   *database.Store
	quoter  QuoteRefresher
	timeout time.Duration
	log     *logrus.Logger
	now     func() time.Time
}

// NewRefresher is constructor. Each run is bounded by timeout.
func NewRefresher(store *database.Store, quoter QuoteRefresher, timeout time.Duration, log *logrus.Logger) *Refresher {
	return &Refresher{
		store:   store,
		quoter:  quoter,
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// Run refreshes every held symbol once and returns how many prices were stored.
// A symbol that fails to refresh is logged and skipped.
func (r *Refresher) Run(ctx context.Context) (int, error) {
	symbols, err := r.store.HeldSymbols(ctx)
	if err != nil {
		return 0, err
	}

	prices := make([]models.StockPrice, 0, len(symbols))
	for _, symbol := range symbols {
		quote, err := r.quoter.Refresh(ctx, symbol)
		if err != nil {
			r.log.WithField("symbol", symbol).Warnf("refresh failed: %v", err)
			continue
		}
		prices = append(prices, models.StockPrice{
			Symbol:    quote.Symbol,
			Price:     models.NewMoney(quote.Price),
			Timestamp: r.now().UTC(),
		})
	}
	if len(prices) == 0 {
		return 0, nil
	}

	if err := database.CreateInBatches(ctx, r.store, prices, batchSize); err != nil {
		return 0, fmt.Errorf("failed to store prices: %w", err)
	}
	return len(prices), nil
}

// Schedule registers Run on a cron spec and starts the scheduler.
// An empty spec disables refreshing and returns a nil scheduler.
func (r *Refresher) Schedule(spec string) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}

	c := cron.New(cron.WithLogger(cron.PrintfLogger(r.log)), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		start := time.Now()
		n, err := r.Run(ctx)
		if err != nil {
			r.log.Errorf("quote refresh failed: %v", err)
			return
		}
		r.log.WithFields(logrus.Fields{"prices": n, "took": time.Since(start)}).Info("quotes refreshed")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
