package window

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warka/warka/internal/frame"
)

func newStore(t *testing.T, w, h int, samples []byte) *frame.Store {
	t.Helper()
	f, err := frame.New(w, h, samples, frame.Meta{ID: "f1"})
	require.NoError(t, err)
	s := frame.NewStore()
	_, err = s.Set(f)
	require.NoError(t, err)
	return s
}

func TestReadTwoByTwo(t *testing.T) {
	t.Parallel()
	r := NewReader(newStore(t, 2, 2, []byte{0, 255, 255, 0}))

	win, err := r.Read(1, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{255, 255}, win.Bytes)
	require.Equal(t, 1, win.Offset)
	require.Equal(t, "f1", win.Frame.Meta().ID)
}

func TestReadClamps(t *testing.T) {
	t.Parallel()
	samples := []byte{0, 255, 0, 255, 255, 255}
	r := NewReader(newStore(t, 3, 2, samples))

	tests := []struct {
		name          string
		offset, limit int
		want          []byte
		wantOffset    int
	}{
		{"exact", 0, 6, samples, 0},
		{"inside", 2, 3, samples[2:5], 2},
		{"limit past end", 0, 100, samples, 0},
		{"tail", 4, 10, samples[4:], 4},
		{"offset at end", 6, 1, []byte{}, 6},
		{"offset past end", 50, 5, []byte{}, 6},
		{"zero limit", 3, 0, []byte{}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			win, err := r.Read(tt.offset, tt.limit)
			require.NoError(t, err)
			require.Equal(t, tt.want, win.Bytes)
			require.Equal(t, tt.wantOffset, win.Offset)
		})
	}
}

func TestReadEmptyStore(t *testing.T) {
	t.Parallel()
	_, err := NewReader(frame.NewStore()).Read(0, 10)
	require.ErrorIs(t, err, frame.ErrNoFrame)
}

func TestReadRejectsNegative(t *testing.T) {
	t.Parallel()
	r := NewReader(newStore(t, 1, 1, []byte{255}))
	_, err := r.Read(-1, 1)
	require.True(t, errors.Is(err, ErrInvalidWindow))
	_, err = r.Read(0, -1)
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestReadWindowMatchesFrameForValidRanges(t *testing.T) {
	t.Parallel()
	samples := make([]byte, 64)
	for i := range samples {
		if i%3 == 0 {
			samples[i] = frame.White
		}
	}
	r := NewReader(newStore(t, 8, 8, samples))
	for offset := 0; offset <= len(samples); offset++ {
		for limit := 0; offset+limit <= len(samples); limit++ {
			win, err := r.Read(offset, limit)
			require.NoError(t, err)
			require.Len(t, win.Bytes, limit)
			require.Equal(t, samples[offset:offset+limit], win.Bytes)
		}
	}
}
