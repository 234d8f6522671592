package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoTickers reports an empty ticker list.
var ErrNoTickers = fmt.Errorf("%w: no tickers provided", ErrBadRequest)

// Quote is the day summary of one ticker.
type Quote struct {
	CurrentPrice    float64 `json:"current_price"`
	DeltaPercentage float64 `json:"delta_percentage"`
	DayLow          float64 `json:"day_low"`
	DayHigh         float64 `json:"day_high"`
	Currency        string  `json:"currency"`
}

// QuoteError is reported in place of a Quote for tickers without data.
type QuoteError struct {
	Error string `json:"error"`
}

// Stocks quotes tickers against their previous close.
type Stocks struct {
	quotes quoteClient
}

// NewStocks creates the service.
func NewStocks(client Getter, baseURL string) *Stocks {
	return &Stocks{quotes: newQuoteClient(client, baseURL)}
}

// Quotes accepts a comma-separated ticker list and returns one entry per
// ticker, keyed as given: a Quote, or a QuoteError when no data exists.
func (s *Stocks) Quotes(ctx context.Context, tickers string) (map[string]any, error) {
	if strings.TrimSpace(tickers) == "" {
		return nil, ErrNoTickers
	}
	results := make(map[string]any)
	for _, ticker := range strings.Split(tickers, ",") {
		symbol := strings.ToUpper(strings.TrimSpace(ticker))
		if symbol == "" {
			continue
		}
		q, err := s.quote(ctx, symbol)
		switch {
		case errors.Is(err, errNoData):
			results[ticker] = QuoteError{Error: "No data available"}
		case err != nil:
			return nil, err
		default:
			results[ticker] = q
		}
	}
	return results, nil
}

func (s *Stocks) quote(ctx context.Context, symbol string) (Quote, error) {
	series, err := s.quotes.daily(ctx, symbol, "2d")
	if err != nil {
		return Quote{}, err
	}
	if len(series.Bars) < 2 {
		return Quote{}, errNoData
	}
	today := series.Bars[len(series.Bars)-1]
	yesterday := series.Bars[len(series.Bars)-2]
	if yesterday.Close == 0 {
		return Quote{}, errNoData
	}
	currency := series.Currency
	if currency == "" {
		currency = "USD"
	}
	return Quote{
		CurrentPrice:    round2(today.Close),
		DeltaPercentage: round2((today.Close - yesterday.Close) / yesterday.Close * 100),
		DayLow:          round2(today.Low),
		DayHigh:         round2(today.High),
		Currency:        currency,
	}, nil
}
