package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-trader/models"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeAlphaVantage serves GLOBAL_QUOTE and SYMBOL_SEARCH for a fixed set of prices.
func fakeAlphaVantage(t *testing.T, prices map[string]string, names map[string]string) (*httptest.Server, *int32) {
	t.Helper()
	var quotes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("apikey"))
		switch q.Get("function") {
		case "GLOBAL_QUOTE":
			atomic.AddInt32(&quotes, 1)
			symbol := q.Get("symbol")
			switch {
			case symbol == "LIMIT":
				fmt.Fprint(w, `{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`)
			case prices[symbol] != "":
				fmt.Fprintf(w, `{"Global Quote": {"01. symbol": %q, "05. price": %q}}`, symbol, prices[symbol])
			default:
				fmt.Fprint(w, `{"Global Quote": {}}`)
			}
		case "SYMBOL_SEARCH":
			kw := q.Get("keywords")
			if name, ok := names[kw]; ok {
				fmt.Fprintf(w, `{"bestMatches": [{"1. symbol": "%sX", "2. name": "Other"}, {"1. symbol": %q, "2. name": %q}]}`, kw, kw, name)
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &quotes
}

func TestAlphaVantage_Lookup(t *testing.T) {
	srv, _ := fakeAlphaVantage(t,
		map[string]string{"IBM": "123.4500", "NONAME": "1.00", "LIMIT": "1"},
		map[string]string{"IBM": "International Business Machines Corp"})
	av := NewAlphaVantage(srv.URL, "test-key", time.Second, quietLogger())

	testTable := []struct {
		name      string
		symbol    string
		expect    *models.Quote
		expectErr error
	}{
		{
			name:   "OK with normalized symbol",
			symbol: " ibm ",
			expect: &models.Quote{Symbol: "IBM", Name: "International Business Machines Corp", Price: decimal.RequireFromString("123.45")},
		},
		{
			name:   "OK with name falling back to symbol",
			symbol: "NONAME",
			expect: &models.Quote{Symbol: "NONAME", Name: "NONAME", Price: decimal.NewFromInt(1)},
		},
		{name: "Failed if symbol is unknown", symbol: "ZZZZ", expectErr: ErrNotFound},
		{name: "Failed if symbol is empty", symbol: "  ", expectErr: ErrNotFound},
		{name: "Failed if rate limited", symbol: "LIMIT", expectErr: ErrUnavailable},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			quote, err := av.Lookup(context.Background(), testCase.symbol)
			if testCase.expectErr != nil {
				assert.ErrorIs(t, err, testCase.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.expect.Symbol, quote.Symbol)
			assert.Equal(t, testCase.expect.Name, quote.Name)
			assert.True(t, testCase.expect.Price.Equal(quote.Price), quote.Price.String())
		})
	}
}

func TestAlphaVantage_Lookup_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	av := NewAlphaVantage(srv.URL, "test-key", time.Second, quietLogger())
	_, err := av.Lookup(context.Background(), "IBM")
	assert.ErrorIs(t, err, ErrUnavailable)
}

type recorder struct {
	prices []models.StockPrice
}

func (r *recorder) RecordPrice(_ context.Context, p *models.StockPrice) error {
	r.prices = append(r.prices, *p)
	return nil
}

func TestCachedQuoter(t *testing.T) {
	srv, quotes := fakeAlphaVantage(t, map[string]string{"IBM": "100.5"}, nil)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rec := &recorder{}
	q := NewCachedQuoter(NewAlphaVantage(srv.URL, "test-key", time.Second, quietLogger()), rdb, time.Minute, rec, quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		quote, err := q.Lookup(ctx, "ibm")
		require.NoError(t, err)
		assert.Equal(t, "IBM", quote.Symbol)
		assert.True(t, decimal.RequireFromString("100.5").Equal(quote.Price))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(quotes))
	require.Len(t, rec.prices, 1)
	assert.Equal(t, "IBM", rec.prices[0].Symbol)
	assert.True(t, mr.Exists("stock:IBM:quote"))

	_, err := q.Lookup(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("stock:NOPE:quote"))

	_, err = q.Refresh(ctx, "IBM")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(quotes))
	assert.Len(t, rec.prices, 1)
}
