// Package market looks up stock quotes.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stock-trader/models"
)

var (
	ErrNotFound    = errors.New("symbol not found")
	ErrUnavailable = errors.New("market data unavailable")
)

// Quoter returns the current quote of a symbol.
type Quoter interface {
	Lookup(ctx context.Context, symbol string) (*models.Quote, error)
}

type AlphaVantageResponse struct {
	GlobalQuote struct {
		Symbol string `json:"01. symbol"`
		Price  string `json:"05. price"`
	} `json:"Global Quote"`
	BestMatches []struct {
		Symbol string `json:"1. symbol"`
		Name   string `json:"2. name"`
	} `json:"bestMatches"`
	// set instead of data when the key is rate limited or invalid
	Note        string `json:"Note"`
	Information string `json:"Information"`
	Error       string `json:"Error Message"`
}

// AlphaVantage is a Quoter backed by the Alpha Vantage API.
type AlphaVantage struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logrus.Logger
}

// NewAlphaVantage initializes a client for baseURL (the "/query" endpoint).
func NewAlphaVantage(baseURL, apiKey string, timeout time.Duration, log *logrus.Logger) *AlphaVantage {
	return &AlphaVantage{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Lookup fetches the price with GLOBAL_QUOTE and the company name with
// SYMBOL_SEARCH. A failed name search falls back to the symbol.
func (a *AlphaVantage) Lookup(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = Normalize(symbol)
	if symbol == "" {
		return nil, ErrNotFound
	}

	var result AlphaVantageResponse
	if err := a.get(ctx, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {symbol}}, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, ErrNotFound
	}
	if result.Note != "" || result.Information != "" {
		a.log.WithField("symbol", symbol).Warnf("alpha vantage refused the request: %s%s", result.Note, result.Information)
		return nil, ErrUnavailable
	}
	if result.GlobalQuote.Price == "" {
		return nil, ErrNotFound
	}

	price, err := decimal.NewFromString(result.GlobalQuote.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price %q: %w", result.GlobalQuote.Price, err)
	}
	if result.GlobalQuote.Symbol != "" {
		symbol = result.GlobalQuote.Symbol
	}

	return &models.Quote{Symbol: symbol, Name: a.name(ctx, symbol), Price: price}, nil
}

func (a *AlphaVantage) name(ctx context.Context, symbol string) string {
	var result AlphaVantageResponse
	if err := a.get(ctx, url.Values{"function": {"SYMBOL_SEARCH"}, "keywords": {symbol}}, &result); err != nil {
		a.log.WithField("symbol", symbol).Debugf("symbol search failed: %v", err)
		return symbol
	}
	for _, m := range result.BestMatches {
		if strings.EqualFold(m.Symbol, symbol) && m.Name != "" {
			return m.Name
		}
	}
	return symbol
}

func (a *AlphaVantage) get(ctx context.Context, params url.Values, data interface{}) error {
	params.Set("apikey", a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status code %d", ErrUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(data); err != nil {
		return fmt.Errorf("failed to parse stock data: %w", err)
	}
	return nil
}

// Normalize turns user input into a ticker symbol.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
