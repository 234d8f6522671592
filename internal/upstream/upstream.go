// Package upstream wraps the third-party APIs behind the dashboard's
// collaborator endpoints. Each service returns the JSON shape the frontend
// renders.
package upstream

import (
	"context"
	"errors"
	"math"

	collyfetcher "github.com/warka/warka/internal/fetcher/colly"
)

var (
	// ErrUpstream wraps failures talking to a third-party API.
	ErrUpstream = errors.New("upstream request failed")
	// ErrBadRequest reports missing or malformed caller input.
	ErrBadRequest = errors.New("bad request")
	// ErrNotConfigured reports a service whose credentials are missing.
	ErrNotConfigured = errors.New("service not configured")
)

// Getter fetches and decodes JSON; *collyfetcher.Fetcher satisfies it.
type Getter interface {
	GetJSON(ctx context.Context, request collyfetcher.Request, out any) error
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
