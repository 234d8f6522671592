// Package window serves byte ranges of the current frame to clients that
// cannot hold a whole image.
package window

import (
	"errors"
	"fmt"

	"github.com/warka/warka/internal/frame"
)

// ErrInvalidWindow reports a negative offset or limit.
var ErrInvalidWindow = errors.New("invalid window")

// Source yields the current frame; *frame.Store satisfies it.
type Source interface {
	Current() (*frame.Frame, error)
}

// Window is a slice of one frame's samples together with that frame. Offset
// is clamped to the frame length.
type Window struct {
	Offset int
	Bytes  []byte
	Frame  *frame.Frame
}

// Reader slices windows out of the current frame.
type Reader struct {
	src Source
}

// NewReader creates a Reader over src.
func NewReader(src Source) *Reader {
	return &Reader{src: src}
}

// Read returns samples[offset:min(offset+limit, len)] of the current frame.
// Ranges past the end are clamped, not rejected. The result is taken from a
// single snapshot even when a capture commits concurrently.
func (r *Reader) Read(offset, limit int) (Window, error) {
	if offset < 0 || limit < 0 {
		return Window{}, fmt.Errorf("%w: offset=%d limit=%d", ErrInvalidWindow, offset, limit)
	}
	f, err := r.src.Current()
	if err != nil {
		return Window{}, err
	}
	if offset > f.Len() {
		offset = f.Len()
	}
	return Window{Offset: offset, Bytes: f.Window(offset, limit), Frame: f}, nil
}
