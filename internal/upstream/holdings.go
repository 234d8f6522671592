package upstream

import (
	"context"
	"fmt"
)

// Position is a fixed quantity of one ticker.
type Position struct {
	Ticker   string  `mapstructure:"ticker"`
	Quantity float64 `mapstructure:"quantity"`
	// FXTicker converts the quote currency to the portfolio currency, e.g. "USDEUR=X".
	FXTicker string `mapstructure:"fx_ticker"`
	// NetFactor scales the value in the net total, e.g. 0.55 after tax. 0 means 1.
	NetFactor float64 `mapstructure:"net_factor"`
}

// Holding is one row of the valuation table.
type Holding struct {
	Ticker     string  `json:"ticker"`
	Value      float64 `json:"value"`
	Type       string  `json:"type"`
	Percentage float64 `json:"percentage"`
}

// Valuation is the /holdings payload.
type Valuation struct {
	Stocks                  []Holding `json:"stocks"`
	TotalValueGross         float64   `json:"total_value_gross"`
	TotalValueApproximation float64   `json:"total_value_approximation"`
}

// Holdings values a fixed portfolio at the latest close.
type Holdings struct {
	quotes    quoteClient
	cash      float64
	positions []Position
}

// NewHoldings creates the service.
func NewHoldings(client Getter, baseURL string, cash float64, positions []Position) *Holdings {
	return &Holdings{quotes: newQuoteClient(client, baseURL), cash: cash, positions: positions}
}

// Value prices every position and returns rows for cash, each position and
// the gross and net totals. Totals carry 100 percent.
func (h *Holdings) Value(ctx context.Context) (Valuation, error) {
	rates := make(map[string]float64)
	rows := []Holding{{Ticker: "Cash", Value: h.cash, Type: "cash"}}
	gross, net := h.cash, h.cash
	for _, p := range h.positions {
		price, err := h.quotes.lastClose(ctx, p.Ticker)
		if err != nil {
			return Valuation{}, fmt.Errorf("price %s: %w", p.Ticker, err)
		}
		value := p.Quantity * price
		if p.FXTicker != "" {
			rate, ok := rates[p.FXTicker]
			if !ok {
				rate, err = h.quotes.lastClose(ctx, p.FXTicker)
				if err != nil {
					return Valuation{}, fmt.Errorf("fx %s: %w", p.FXTicker, err)
				}
				rates[p.FXTicker] = rate
			}
			value *= rate
		}
		factor := p.NetFactor
		if factor == 0 {
			factor = 1
		}
		gross += value
		net += value * factor
		rows = append(rows, Holding{Ticker: p.Ticker, Value: value, Type: "stock"})
	}
	for i := range rows {
		if gross != 0 {
			rows[i].Percentage = round2(rows[i].Value / gross * 100)
		}
	}
	rows = append(rows,
		Holding{Ticker: "Total (Gross)", Value: gross, Type: "total", Percentage: 100},
		Holding{Ticker: "Total (Net)", Value: net, Type: "total", Percentage: 100},
	)
	return Valuation{Stocks: rows, TotalValueGross: gross, TotalValueApproximation: net}, nil
}
