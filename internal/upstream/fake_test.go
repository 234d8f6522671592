package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	collyfetcher "github.com/warka/warka/internal/fetcher/colly"
)

// fakeGetter answers GetJSON from canned bodies matched by URL prefix.
type fakeGetter struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	urls   []string
}

func (g *fakeGetter) GetJSON(_ context.Context, req collyfetcher.Request, out any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.urls = append(g.urls, req.URL)
	for prefix, err := range g.errs {
		if strings.HasPrefix(req.URL, prefix) {
			return err
		}
	}
	for prefix, body := range g.bodies {
		if strings.HasPrefix(req.URL, prefix) {
			return json.Unmarshal([]byte(body), out)
		}
	}
	return fmt.Errorf("%w: %s returned 404", collyfetcher.ErrStatus, req.URL)
}

func chartBody(currency string, closes ...float64) string {
	parts := make([]string, len(closes))
	lows := make([]string, len(closes))
	highs := make([]string, len(closes))
	for i, c := range closes {
		parts[i] = fmt.Sprint(c)
		lows[i] = fmt.Sprint(c - 1)
		highs[i] = fmt.Sprint(c + 1)
	}
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"currency":%q},"indicators":{"quote":[{"close":[%s],"low":[%s],"high":[%s]}]}}],"error":null}}`,
		currency, strings.Join(parts, ","), strings.Join(lows, ","), strings.Join(highs, ","))
}
