package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warka/warka/internal/capture"
	"github.com/warka/warka/internal/storage/postgres"
)

type mockHistory struct {
	recs       []capture.Record
	err        error
	lastStatus *string
	lastLimit  int
	lastOffset int
}

func (m *mockHistory) GetCapture(_ context.Context, id string) (capture.Record, error) {
	for _, rec := range m.recs {
		if rec.ID == id {
			return rec, nil
		}
	}
	if m.err != nil {
		return capture.Record{}, m.err
	}
	return capture.Record{}, postgres.ErrNotFound
}

func (m *mockHistory) ListCaptures(_ context.Context, status *string, limit, offset int) ([]capture.Record, error) {
	m.lastStatus, m.lastLimit, m.lastOffset = status, limit, offset
	return m.recs, m.err
}

func withCaptureIDParam(r *http.Request, id string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("capture_id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, ctx))
}

func TestCaptureHandlerListCaptures(t *testing.T) {
	t.Parallel()

	id := uuid.NewString()
	repo := &mockHistory{recs: []capture.Record{{
		ID:        id,
		TargetURL: "http://display.local/",
		Status:    "ok",
		Width:     800,
		Height:    480,
		StartedAt: time.Now().Add(-time.Minute),
		Duration:  6500 * time.Millisecond,
	}}}
	handler := NewCaptureHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/captures?status=success&limit=1000&offset=5", nil)
	rec := httptest.NewRecorder()
	handler.ListCaptures(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Captures []captureDTO `json:"captures"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Captures, 1)
	require.Equal(t, id, body.Captures[0].ID)
	require.Equal(t, int64(6500), body.Captures[0].DurationMS)
	require.NotNil(t, repo.lastStatus)
	require.Equal(t, "ok", *repo.lastStatus)
	require.Equal(t, maxCaptureLimit, repo.lastLimit)
	require.Equal(t, 5, repo.lastOffset)
}

func TestCaptureHandlerListCapturesInvalidFilters(t *testing.T) {
	t.Parallel()

	handler := NewCaptureHandler(&mockHistory{}, zap.NewNop())
	for _, q := range []string{"limit=-1", "offset=x", "status=pending"} {
		rec := httptest.NewRecorder()
		handler.ListCaptures(rec, httptest.NewRequest(http.MethodGet, "/captures?"+q, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestCaptureHandlerRepoErrors(t *testing.T) {
	t.Parallel()

	handler := NewCaptureHandler(&mockHistory{err: errors.New("connection refused")}, zap.NewNop())
	rec := httptest.NewRecorder()
	handler.ListCaptures(rec, httptest.NewRequest(http.MethodGet, "/captures", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	id := uuid.NewString()
	rec = httptest.NewRecorder()
	handler.GetCapture(rec, withCaptureIDParam(httptest.NewRequest(http.MethodGet, "/captures/"+id, nil), id))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCaptureHandlerGetCapture(t *testing.T) {
	t.Parallel()

	id := uuid.NewString()
	handler := NewCaptureHandler(&mockHistory{recs: []capture.Record{{ID: id, Status: "failed", Error: "capture navigate: timeout"}}}, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetCapture(rec, withCaptureIDParam(httptest.NewRequest(http.MethodGet, "/captures/"+id, nil), id))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "capture navigate: timeout")

	missing := uuid.NewString()
	rec = httptest.NewRecorder()
	handler.GetCapture(rec, withCaptureIDParam(httptest.NewRequest(http.MethodGet, "/captures/"+missing, nil), missing))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetCapture(rec, withCaptureIDParam(httptest.NewRequest(http.MethodGet, "/captures/nope", nil), "nope"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCaptureRoutesWithoutHistory(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Deps{}, Options{})

	require.Equal(t, http.StatusServiceUnavailable, env.get(t, "/captures").Code)
	require.Equal(t, http.StatusServiceUnavailable, env.get(t, "/captures/"+uuid.NewString()).Code)
}

func TestCaptureRoutesThroughRouter(t *testing.T) {
	t.Parallel()
	id := uuid.NewString()
	env := newTestEnv(t, Deps{History: &mockHistory{recs: []capture.Record{{ID: id, Status: "ok"}}}}, Options{})

	rec := env.get(t, "/captures/"+id)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), id)
}
