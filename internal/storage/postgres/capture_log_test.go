package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/warka/warka/internal/capture"
)

var captureColumns = []string{
	"id", "target_url", "status", "width", "height", "digest", "blob_uri", "error_message", "started_at", "duration_ms",
}

func TestNewCaptureLogWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewCaptureLogWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewCaptureLogWithPool(mock, "captures; DROP TABLE x")
	require.ErrorContains(t, err, "invalid table name")

	log, err := NewCaptureLogWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "captures", log.table)
}

func TestNewCaptureLogRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewCaptureLog(context.Background(), CaptureLogConfig{})
	require.ErrorContains(t, err, "database.dsn is required")
}

func TestRecordCaptureInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	log, err := NewCaptureLogWithPool(mock, "captures")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := capture.Record{
		ID:        "0190-cap",
		TargetURL: "http://localhost:5173/",
		Status:    "ok",
		Width:     800,
		Height:    480,
		Digest:    "abc123",
		BlobURI:   "gs://bucket/frames/0190-cap/screenshot.bmp",
		StartedAt: now,
		Duration:  6500 * time.Millisecond,
	}

	mock.ExpectExec("INSERT INTO captures").
		WithArgs(rec.ID, rec.TargetURL, rec.Status, rec.Width, rec.Height, rec.Digest, rec.BlobURI, "", now, int64(6500)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, log.RecordCapture(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCaptureErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	log, err := NewCaptureLogWithPool(mock, "captures")
	require.NoError(t, err)

	require.Error(t, log.RecordCapture(context.Background(), capture.Record{}))

	mock.ExpectExec("INSERT INTO captures").WillReturnError(errors.New("connection refused"))
	err = log.RecordCapture(context.Background(), capture.Record{ID: "x", StartedAt: time.Now()})
	require.ErrorContains(t, err, "insert capture")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	log, err := NewCaptureLogWithPool(mock, "frames")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS frames").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, log.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCapture(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	log, err := NewCaptureLogWithPool(mock, "captures")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT (.+) FROM captures").
		WithArgs("cap-1").
		WillReturnRows(pgxmock.NewRows(captureColumns).
			AddRow("cap-1", "http://x/", "failed", 0, 0, "", "", "capture navigate: timeout", now, int64(20000)))

	rec, err := log.GetCapture(context.Background(), "cap-1")
	require.NoError(t, err)
	require.Equal(t, "failed", rec.Status)
	require.Equal(t, "capture navigate: timeout", rec.Error)
	require.Equal(t, 20*time.Second, rec.Duration)
	require.Equal(t, now, rec.StartedAt)

	mock.ExpectQuery("SELECT (.+) FROM captures").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	_, err = log.GetCapture(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCaptures(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	log, err := NewCaptureLogWithPool(mock, "captures")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	status := "ok"
	mock.ExpectQuery("SELECT (.+) FROM captures").
		WithArgs(&status, 10, 0).
		WillReturnRows(pgxmock.NewRows(captureColumns).
			AddRow("b", "http://x/", "ok", 800, 480, "d2", "mem://b", "", now, int64(7000)).
			AddRow("a", "http://x/", "ok", 800, 480, "d1", "mem://a", "", now.Add(-time.Minute), int64(6000)))

	recs, err := log.ListCaptures(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "b", recs[0].ID)
	require.Equal(t, 800, recs[0].Width)
	require.Equal(t, 6*time.Second, recs[1].Duration)
	require.NoError(t, mock.ExpectationsWereMet())
}
