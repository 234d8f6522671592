package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warka/warka/internal/frame"
	"github.com/warka/warka/internal/storage"
)

type fakeObjects map[string][]byte

func (o fakeObjects) GetObject(_ context.Context, path string) ([]byte, error) {
	data, ok := o[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, path)
	}
	return data, nil
}

func bmpOf(t *testing.T, w, h int, fill byte) []byte {
	t.Helper()
	f, err := frame.New(w, h, bytes.Repeat([]byte{fill}, w*h), frame.Meta{})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, frame.EncodeBMP(&buf, f))
	return buf.Bytes()
}

func TestRestoreLoadsLatestBitmap(t *testing.T) {
	t.Parallel()
	store := frame.NewStore()
	e := newTestEngine(t, &fakeBrowser{}, store, WithArchive(&fakeArchive{}, "frames"))

	ok, err := e.Restore(context.Background(), fakeObjects{"frames/latest.bmp": bmpOf(t, 4, 2, frame.White)})
	require.NoError(t, err)
	require.True(t, ok)

	f, err := store.Current()
	require.NoError(t, err)
	require.Equal(t, "restored", f.Meta().ID)
	require.Equal(t, bytes.Repeat([]byte{255}, 8), f.Window(0, 8))
}

func TestRestoreMissingArchive(t *testing.T) {
	t.Parallel()
	store := frame.NewStore()
	e := newTestEngine(t, &fakeBrowser{}, store)

	ok, err := e.Restore(context.Background(), fakeObjects{})
	require.NoError(t, err)
	require.False(t, ok)
	_, err = store.Current()
	require.ErrorIs(t, err, frame.ErrNoFrame)
}

func TestRestoreIgnoresWrongSize(t *testing.T) {
	t.Parallel()
	store := frame.NewStore()
	e := newTestEngine(t, &fakeBrowser{}, store)

	ok, err := e.Restore(context.Background(), fakeObjects{"latest.bmp": bmpOf(t, 2, 2, frame.Black)})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRestoreDoesNotReplaceCapturedFrame(t *testing.T) {
	t.Parallel()
	store := frame.NewStore()
	e := newTestEngine(t, &fakeBrowser{png: encodePNG(t, 4, 2, checker)}, store)

	captured, err := e.Capture(context.Background())
	require.NoError(t, err)

	ok, err := e.Restore(context.Background(), fakeObjects{"latest.bmp": bmpOf(t, 4, 2, frame.Black)})
	require.NoError(t, err)
	require.False(t, ok)
	current, err := store.Current()
	require.NoError(t, err)
	require.Same(t, captured, current)
}

type brokenObjects struct{}

func (brokenObjects) GetObject(context.Context, string) ([]byte, error) {
	return nil, errors.New("permission denied")
}

func TestRestoreErrors(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &fakeBrowser{}, frame.NewStore())

	_, err := e.Restore(context.Background(), nil)
	require.Error(t, err)

	_, err = e.Restore(context.Background(), brokenObjects{})
	require.ErrorContains(t, err, "permission denied")

	_, err = e.Restore(context.Background(), fakeObjects{"latest.bmp": []byte("junk")})
	require.Error(t, err)
}

type blockingObjects struct {
	started chan struct{}
	release chan struct{}
	data    []byte
}

func (o *blockingObjects) GetObject(ctx context.Context, _ string) ([]byte, error) {
	close(o.started)
	select {
	case <-o.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return o.data, nil
}

func TestCaptureDuringRestoreRunsBrowser(t *testing.T) {
	t.Parallel()
	store := frame.NewStore()
	b := &fakeBrowser{png: encodePNG(t, 4, 2, checker)}
	e := newTestEngine(t, b, store)
	src := &blockingObjects{
		started: make(chan struct{}),
		release: make(chan struct{}),
		data:    bmpOf(t, 4, 2, frame.Black),
	}

	type result struct {
		ok  bool
		err error
	}
	restored := make(chan result, 1)
	go func() {
		ok, err := e.Restore(context.Background(), src)
		restored <- result{ok, err}
	}()
	<-src.started

	captured, err := e.Capture(context.Background())
	require.NoError(t, err)
	require.NotNil(t, captured)
	require.Equal(t, int32(1), b.calls.Load())

	close(src.release)
	res := <-restored
	require.NoError(t, res.err)
	require.False(t, res.ok)

	current, err := store.Current()
	require.NoError(t, err)
	require.Same(t, captured, current)
}

func TestRestoredFrameIsStale(t *testing.T) {
	t.Parallel()
	store := frame.NewStore()
	e := newTestEngine(t, &fakeBrowser{}, store)

	ok, err := e.Restore(context.Background(), fakeObjects{"latest.bmp": bmpOf(t, 4, 2, frame.White)})
	require.NoError(t, err)
	require.True(t, ok)

	f, err := store.Current()
	require.NoError(t, err)
	require.True(t, f.Meta().CapturedAt.IsZero())
}
