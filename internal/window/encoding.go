package window

import (
	"fmt"
	"strconv"
	"strings"
)

// Encoding is the text form a window is sent in.
type Encoding string

const (
	// Decimal writes each byte in base 10 with no separator: 0 -> "0", 255 -> "255".
	Decimal Encoding = "decimal"
	// Bit writes one ASCII digit per pixel, '1' for white and '0' for black.
	Bit Encoding = "bit"
	// Fixed3 writes each byte as a zero-padded 3-digit decimal.
	Fixed3 Encoding = "fixed3"
)

// ParseEncoding maps a query value to an Encoding; empty selects def.
func ParseEncoding(s string, def Encoding) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def, nil
	case Decimal:
		return Decimal, nil
	case Bit:
		return Bit, nil
	case Fixed3:
		return Fixed3, nil
	default:
		return "", fmt.Errorf("unknown encoding %q", s)
	}
}

// Append appends the encoded form of samples to dst.
func (e Encoding) Append(dst, samples []byte) []byte {
	switch e {
	case Bit:
		for _, b := range samples {
			if b >= 128 {
				dst = append(dst, '1')
			} else {
				dst = append(dst, '0')
			}
		}
	case Fixed3:
		for _, b := range samples {
			dst = append(dst, '0'+b/100, '0'+(b/10)%10, '0'+b%10)
		}
	default:
		for _, b := range samples {
			dst = strconv.AppendUint(dst, uint64(b), 10)
		}
	}
	return dst
}

// Encode returns the encoded form of samples.
func (e Encoding) Encode(samples []byte) []byte {
	size := len(samples)
	if e != Bit {
		size *= 3
	}
	return e.Append(make([]byte, 0, size), samples)
}
