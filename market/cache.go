package market

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/cache/v8"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stock-trader/models"
)

// PriceRecorder keeps the prices fetched from upstream.
type PriceRecorder interface {
	RecordPrice(ctx context.Context, p *models.StockPrice) error
}

// cachedQuote is the msgpack form of a quote.
type cachedQuote struct {
	Symbol string
	Name   string
	Price  string
}

// CachedQuoter serves quotes from Redis and a local TinyLFU, asking the
// upstream Quoter at most once per symbol and TTL.
type CachedQuoter struct {
	upstream Quoter
	cache    *cache.Cache
	ttl      time.Duration
	recorder PriceRecorder
	log      *logrus.Logger
}

// NewCachedQuoter wraps upstream. recorder may be nil.
func NewCachedQuoter(upstream Quoter, rdb redis.UniversalClient, ttl time.Duration, recorder PriceRecorder, log *logrus.Logger) *CachedQuoter {
	return &CachedQuoter{
		upstream: upstream,
		cache: cache.New(&cache.Options{
			Redis:      rdb,
			LocalCache: cache.NewTinyLFU(1000, time.Minute),
		}),
		ttl:      ttl,
		recorder: recorder,
		log:      log,
	}
}

func key(symbol string) string {
	return fmt.Sprintf("stock:%s:quote", symbol)
}

// Lookup returns the cached quote or fetches, caches and records it.
func (q *CachedQuoter) Lookup(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = Normalize(symbol)
	if symbol == "" {
		return nil, ErrNotFound
	}

	var cq cachedQuote
	err := q.cache.Once(&cache.Item{
		Ctx:   ctx,
		Key:   key(symbol),
		Value: &cq,
		TTL:   q.ttl,
		Do: func(item *cache.Item) (interface{}, error) {
			quote, err := q.upstream.Lookup(item.Context(), symbol)
			if err != nil {
				return nil, err
			}
			q.record(item.Context(), quote)
			return toCached(quote), nil
		},
	})
	if err != nil {
		return nil, err
	}
	return fromCached(&cq)
}

// Refresh fetches symbol upstream and replaces the cached quote.
func (q *CachedQuoter) Refresh(ctx context.Context, symbol string) (*models.Quote, error) {
	quote, err := q.upstream.Lookup(ctx, Normalize(symbol))
	if err != nil {
		return nil, err
	}
	err = q.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key(Normalize(symbol)),
		Value: toCached(quote),
		TTL:   q.ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cache price: %w", err)
	}
	return quote, nil
}

func (q *CachedQuoter) record(ctx context.Context, quote *models.Quote) {
	if q.recorder == nil {
		return
	}
	err := q.recorder.RecordPrice(ctx, &models.StockPrice{
		Symbol:    quote.Symbol,
		Price:     models.NewMoney(quote.Price),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		q.log.WithField("symbol", quote.Symbol).Error(err)
	}
}

func toCached(quote *models.Quote) *cachedQuote {
	return &cachedQuote{Symbol: quote.Symbol, Name: quote.Name, Price: quote.Price.String()}
}

func fromCached(cq *cachedQuote) (*models.Quote, error) {
	price, err := decimal.NewFromString(cq.Price)
	if err != nil {
		return nil, fmt.Errorf("corrupt cached price %q: %w", cq.Price, err)
	}
	return &models.Quote{Symbol: cq.Symbol, Name: cq.Name, Price: price}, nil
}
