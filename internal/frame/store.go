package frame

import (
	"errors"
	"sync/atomic"
)

// ErrNoFrame is returned when no capture has ever completed.
var ErrNoFrame = errors.New("no frame available")

// Store owns the current Frame. Reads never block on a capture in progress;
// writes replace the pointer atomically.
type Store struct {
	current atomic.Pointer[Frame]
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Current returns the latest committed Frame or ErrNoFrame.
func (s *Store) Current() (*Frame, error) {
	f := s.current.Load()
	if f == nil {
		return nil, ErrNoFrame
	}
	return f, nil
}

// Set commits f as the current Frame and returns the one it replaced, which
// may be nil. A nil f is rejected.
func (s *Store) Set(f *Frame) (*Frame, error) {
	if f == nil {
		return nil, errors.New("frame is required")
	}
	return s.current.Swap(f), nil
}
