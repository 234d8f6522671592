package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/warka/warka/internal/frame"
	"github.com/warka/warka/internal/metrics"
	"github.com/warka/warka/internal/window"
)

// image handles GET /image?offset=&limit=&encoding=. Missing offset or limit
// default to 0; negative or non-integer values are rejected with 400. The body
// is the encoded window, empty when offset is past the end of the frame.
func (s *Server) image(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := parseNonNegative(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseNonNegative(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	enc, err := window.ParseEncoding(q.Get("encoding"), s.opts.DefaultEncoding)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.deps.Refresher != nil {
		s.deps.Refresher.BeforeRead(r.Context())
	}

	win, err := s.deps.Reader.Read(offset, limit)
	switch {
	case errors.Is(err, frame.ErrNoFrame):
		writeError(w, http.StatusServiceUnavailable, frame.ErrNoFrame.Error())
		return
	case errors.Is(err, window.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("window read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body := enc.Encode(win.Bytes)
	metrics.ObserveWindowRead(string(enc), len(win.Bytes))

	etag := fmt.Sprintf(`"%s-%d-%d-%s"`, win.Frame.Digest(), win.Offset, len(win.Bytes), enc)
	h := w.Header()
	h.Set("ETag", etag)
	h.Set("X-Frame-Digest", win.Frame.Digest())
	h.Set("X-Frame-Length", strconv.Itoa(win.Frame.Len()))
	h.Set("X-Window-Offset", strconv.Itoa(win.Offset))
	h.Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("write window failed", zap.Error(err))
	}
}

// screenshot handles GET /screenshot: one synchronous capture, 204 on success
// and 500 on failure, never a body.
func (s *Server) screenshot(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Capturer.Capture(r.Context()); err != nil {
		s.logger.Warn("screenshot request failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// frameDTO omits captured_at for frames restored from the archive.
type frameDTO struct {
	ID         string     `json:"id"`
	SourceURL  string     `json:"source_url"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Length     int        `json:"length"`
	Digest     string     `json:"digest"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

func (s *Server) frameInfo(w http.ResponseWriter, _ *http.Request) {
	f, err := s.deps.Frames.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	meta := f.Meta()
	dto := frameDTO{
		ID:        meta.ID,
		SourceURL: meta.SourceURL,
		Width:     f.Width(),
		Height:    f.Height(),
		Length:    f.Len(),
		Digest:    f.Digest(),
	}
	if !meta.CapturedAt.IsZero() {
		dto.CapturedAt = &meta.CapturedAt
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) frameBitmap(w http.ResponseWriter, _ *http.Request) {
	f, err := s.deps.Frames.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := frame.EncodeBMP(&buf, f); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/bmp")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("ETag", `"`+f.Digest()+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("write bitmap failed", zap.Error(err))
	}
}

func parseNonNegative(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}
