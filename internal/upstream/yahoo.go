package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	collyfetcher "github.com/warka/warka/internal/fetcher/colly"
)

// DefaultQuotesURL is Yahoo Finance's chart API root.
const DefaultQuotesURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// errNoData reports a ticker the quote API knows nothing about.
var errNoData = errors.New("no data available")

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency string `json:"currency"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
					Low   []*float64 `json:"low"`
					High  []*float64 `json:"high"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// bar is one daily candle.
type bar struct {
	Close, Low, High float64
}

type series struct {
	Currency string
	Bars     []bar
}

type quoteClient struct {
	client  Getter
	baseURL string
}

func newQuoteClient(client Getter, baseURL string) quoteClient {
	if baseURL == "" {
		baseURL = DefaultQuotesURL
	}
	return quoteClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// daily returns the daily bars for ticker over span ("1d", "2d", ...).
// Unknown tickers yield errNoData.
func (q quoteClient) daily(ctx context.Context, ticker, span string) (series, error) {
	u := fmt.Sprintf("%s/%s?range=%s&interval=1d", q.baseURL, url.PathEscape(ticker), url.QueryEscape(span))
	var resp chartResponse
	if err := q.client.GetJSON(ctx, collyfetcher.Request{URL: u}, &resp); err != nil {
		if errors.Is(err, collyfetcher.ErrStatus) {
			return series{}, errNoData
		}
		return series{}, fmt.Errorf("%w: quote %s: %w", ErrUpstream, ticker, err)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return series{}, errNoData
	}
	r := resp.Chart.Result[0]
	quote := r.Indicators.Quote[0]
	out := series{Currency: r.Meta.Currency}
	for i, c := range quote.Close {
		if c == nil {
			continue
		}
		b := bar{Close: *c, Low: *c, High: *c}
		if i < len(quote.Low) && quote.Low[i] != nil {
			b.Low = *quote.Low[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			b.High = *quote.High[i]
		}
		out.Bars = append(out.Bars, b)
	}
	if len(out.Bars) == 0 {
		return series{}, errNoData
	}
	return out, nil
}

// lastClose returns the most recent close of ticker.
func (q quoteClient) lastClose(ctx context.Context, ticker string) (float64, error) {
	s, err := q.daily(ctx, ticker, "1d")
	if err != nil {
		return 0, err
	}
	return s.Bars[len(s.Bars)-1].Close, nil
}
