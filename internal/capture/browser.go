package capture

import (
	"context"
	"time"
)

// Viewport is the CSS pixel size the page is rendered at; it matches the
// physical size of the target display.
type Viewport struct {
	Width  int
	Height int
}

// Request describes one browser session.
type Request struct {
	URL               string
	Viewport          Viewport
	Settle            time.Duration
	NavigationTimeout time.Duration
}

// Raster is the screenshot produced by a Browser.
type Raster struct {
	PNG []byte
	// Effective window.innerWidth/innerHeight reported by the page.
	InnerWidth  int
	InnerHeight int
}

// Browser launches an isolated browser session, renders the page, waits for it
// to settle and returns a viewport screenshot. Implementations must release
// every browser resource before returning.
type Browser interface {
	Screenshot(ctx context.Context, req Request) (Raster, error)
}
