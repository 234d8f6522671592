package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/warka/warka/internal/frame"
	"github.com/warka/warka/internal/storage"
)

// ObjectGetter reads archived artifacts back.
type ObjectGetter interface {
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Restore loads the latest archived bitmap into the store so readers have a
// frame before the first capture of this process. It reports false when no
// archived frame exists. A restored frame never replaces one already
// committed, and it carries a zero CapturedAt so freshness policies treat
// it as stale.
func (e *Engine) Restore(ctx context.Context, src ObjectGetter) (bool, error) {
	if src == nil {
		return false, errors.New("archive source is required")
	}
	v, err, _ := e.group.Do(restoreKey, func() (any, error) {
		return e.restoreOnce(ctx, src)
	})
	if err != nil {
		return false, err
	}
	ok, _ := v.(bool)
	return ok, nil
}

func (e *Engine) restoreOnce(ctx context.Context, src ObjectGetter) (bool, error) {
	key := path.Join(e.archivePrefix, "latest.bmp")
	data, err := src.GetObject(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	f, err := frame.DecodeBMP(bytes.NewReader(data), frame.Meta{
		ID:        "restored",
		SourceURL: e.cfg.TargetURL,
	})
	if err != nil {
		return false, fmt.Errorf("restore %s: %w", key, err)
	}
	if f.Width() != e.cfg.Width || f.Height() != e.cfg.Height {
		e.logger.Warn("archived frame size does not match display, ignoring",
			zap.Int("width", f.Width()),
			zap.Int("height", f.Height()),
		)
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastDigest != "" {
		return false, nil
	}
	if _, err := e.store.Set(f); err != nil {
		return false, fmt.Errorf("commit restored frame: %w", err)
	}
	e.lastDigest = f.Digest()
	e.logger.Info("restored archived frame", zap.String("digest", f.Digest()))
	return true, nil
}
