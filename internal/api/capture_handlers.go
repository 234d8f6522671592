package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warka/warka/internal/capture"
	"github.com/warka/warka/internal/storage/postgres"
)

const (
	defaultCaptureLimit = 50
	maxCaptureLimit     = 500
	historyTimeout      = 3 * time.Second
)

// CaptureHistory reads recorded capture attempts.
type CaptureHistory interface {
	GetCapture(ctx context.Context, id string) (capture.Record, error)
	ListCaptures(ctx context.Context, status *string, limit, offset int) ([]capture.Record, error)
}

// CaptureHandler exposes read-only capture history endpoints.
type CaptureHandler struct {
	repo    CaptureHistory
	timeout time.Duration
	logger  *zap.Logger
}

// NewCaptureHandler wires the repository and logger.
func NewCaptureHandler(repo CaptureHistory, logger *zap.Logger) *CaptureHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaptureHandler{
		repo:    repo,
		timeout: historyTimeout,
		logger:  logger,
	}
}

// ListCaptures handles GET /captures?status=&limit=&offset=. It returns
// {"captures": [...]} on success, 400 for invalid filters, 503 when no
// history is configured, or 500 if the repository call fails.
func (h *CaptureHandler) ListCaptures(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "capture history unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultCaptureLimit, maxCaptureLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *string
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, parseErr := parseStatus(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &parsed
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	recs, err := h.repo.ListCaptures(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list captures failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list captures")
		return
	}
	out := make([]captureDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toCaptureDTO(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"captures": out})
}

// GetCapture handles GET /captures/{capture_id}. It returns {"capture": {...}},
// 400 for malformed IDs, 404 when the row is missing, 503 without history, or
// 500 otherwise.
func (h *CaptureHandler) GetCapture(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "capture history unavailable")
		return
	}
	id, err := parseCaptureID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.repo.GetCapture(ctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			writeError(w, http.StatusNotFound, "capture not found")
			return
		}
		h.logger.Error("get capture failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load capture")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"capture": toCaptureDTO(rec)})
}

func parseCaptureID(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "capture_id")
	if raw == "" {
		return "", errors.New("capture_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", errors.New("invalid capture_id")
	}
	return id.String(), nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (string, error) {
	switch strings.ToLower(input) {
	case "ok", "success":
		return "ok", nil
	case "failed", "error", "failure":
		return "failed", nil
	default:
		return "", errors.New("invalid status")
	}
}

type captureDTO struct {
	ID         string    `json:"id"`
	TargetURL  string    `json:"target_url"`
	Status     string    `json:"status"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	Digest     string    `json:"digest,omitempty"`
	BlobURI    string    `json:"blob_uri,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

func toCaptureDTO(rec capture.Record) captureDTO {
	return captureDTO{
		ID:         rec.ID,
		TargetURL:  rec.TargetURL,
		Status:     rec.Status,
		Width:      rec.Width,
		Height:     rec.Height,
		Digest:     rec.Digest,
		BlobURI:    rec.BlobURI,
		Error:      rec.Error,
		StartedAt:  rec.StartedAt,
		DurationMS: rec.Duration.Milliseconds(),
	}
}
