package capture

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLaunchTimeoutDefault(t *testing.T) {
	t.Parallel()

	b := NewChromedpBrowser(ChromedpConfig{}, nil)
	if got := b.launchTimeout(); got != 30*time.Second {
		t.Fatalf("expected default launch timeout, got %v", got)
	}
	b.cfg.LaunchTimeout = time.Second
	if got := b.launchTimeout(); got != time.Second {
		t.Fatalf("expected override to be used, got %v", got)
	}
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, sleepContext(context.Background(), 0))
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestAllocatorOptionsIncludeOverrides(t *testing.T) {
	t.Parallel()

	base := NewChromedpBrowser(ChromedpConfig{}, nil).allocatorOptions(Viewport{Width: 400, Height: 300})
	custom := NewChromedpBrowser(ChromedpConfig{ExecPath: "/usr/bin/chromium", UserAgent: "warka"}, nil).
		allocatorOptions(Viewport{Width: 400, Height: 300})
	require.Len(t, custom, len(base)+2)
}

func TestChromedpScreenshot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if _, err := exec.LookPath("google-chrome"); err != nil {
		if _, err := exec.LookPath("chromium"); err != nil {
			t.Skip("chrome not installed")
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body style="margin:0;background:#fff">`+
			`<div style="width:50%;height:100%;background:#000"></div></body></html>`)
	}))
	defer srv.Close()

	b := NewChromedpBrowser(ChromedpConfig{LaunchTimeout: 20 * time.Second}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	raster, err := b.Screenshot(ctx, Request{
		URL:      srv.URL,
		Viewport: Viewport{Width: 200, Height: 100},
	})
	require.NoError(t, err)
	w, h, samples, err := ToMonochrome(raster.PNG, DefaultThreshold)
	require.NoError(t, err)
	require.Equal(t, 200, w)
	require.Equal(t, 100, h)
	require.Equal(t, byte(0), samples[0])
	require.Equal(t, byte(255), samples[199])
}
