// Package frame holds the captured 1-bit display frame and the store that
// publishes it to readers.
//
// A Frame is immutable once built. Captures produce a new Frame and swap it
// into the Store wholesale; readers keep whatever pointer they loaded, so a
// window is always sliced from one complete snapshot.
package frame

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	// Black is the sample value of an unlit pixel.
	Black byte = 0
	// White is the sample value of a lit pixel.
	White byte = 255
)

// ErrInvalidFrame reports dimensions or samples that break the frame invariant.
var ErrInvalidFrame = errors.New("invalid frame")

// Meta describes where and when a frame was captured.
type Meta struct {
	ID         string
	SourceURL  string
	CapturedAt time.Time
}

// Frame is one complete captured-and-converted bitmap snapshot. Samples are
// stored one byte per pixel in row-major order, each Black or White.
type Frame struct {
	width   int
	height  int
	samples []byte
	digest  string
	meta    Meta
}

// New validates the dimensions and copies samples into a new Frame.
func New(width, height int, samples []byte, meta Meta) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidFrame, width, height)
	}
	if len(samples) != width*height {
		return nil, fmt.Errorf("%w: %d samples for %dx%d", ErrInvalidFrame, len(samples), width, height)
	}
	for i, s := range samples {
		if s != Black && s != White {
			return nil, fmt.Errorf("%w: sample %d has value %d", ErrInvalidFrame, i, s)
		}
	}
	owned := append([]byte(nil), samples...)
	sum := sha256.Sum256(owned)
	return &Frame{
		width:   width,
		height:  height,
		samples: owned,
		digest:  hex.EncodeToString(sum[:]),
		meta:    meta,
	}, nil
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.width }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.height }

// Len returns the number of samples, always Width*Height.
func (f *Frame) Len() int { return len(f.samples) }

// Digest returns the hex SHA-256 of the samples.
func (f *Frame) Digest() string { return f.digest }

// Meta returns the capture metadata.
func (f *Frame) Meta() Meta { return f.meta }

// Window copies samples[offset:min(offset+limit, Len)]. Offsets past the end
// yield an empty slice. Negative arguments are treated as zero.
func (f *Frame) Window(offset, limit int) []byte {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	n := len(f.samples)
	if offset >= n {
		return []byte{}
	}
	end := n
	if limit < n-offset {
		end = offset + limit
	}
	out := make([]byte, end-offset)
	copy(out, f.samples[offset:end])
	return out
}
