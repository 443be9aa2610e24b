package processing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bryanwahyu/sheet-scraper/internal/application"
	appfiles "github.com/bryanwahyu/sheet-scraper/internal/application/files"
	domain "github.com/bryanwahyu/sheet-scraper/internal/domain/files"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/db/sqlite"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/scraper"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/spreadsheet"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/storage"
)

type env struct {
	repo      *sqlstore.FileRepository
	blobs     *storage.Local
	dir       string
	processor *Processor
	svc       *appfiles.Service
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newEnv(t *testing.T, s domain.Scraper) *env {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Connect(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlstore.EnsureSchema(ctx, db, sqlite.Dialect))

	dir := t.TempDir()
	blobs, err := storage.NewLocal(dir)
	require.NoError(t, err)

	if s == nil {
		s = scraper.NewStub(quiet)
	}
	clock := application.ClockFunc(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) })
	e := &env{
		repo:  sqlstore.NewFileRepository(db, sqlite.Dialect),
		blobs: blobs,
		dir:   dir,
	}
	e.processor = &Processor{
		Repo:    e.repo,
		Blobs:   blobs,
		Scraper: s,
		Sheets:  spreadsheet.Excel{},
		Clock:   clock,
		Log:     quiet,
	}
	e.svc = &appfiles.Service{Repo: e.repo, Blobs: blobs, Queue: Inline{Runner: e.processor}, Clock: clock, Log: quiet}
	return e
}

func sheet(t *testing.T, column ...string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, v := range column {
		if v == "" {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue("Sheet1", cell, v))
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func (e *env) upload(t *testing.T, name string, data []byte) *domain.File {
	t.Helper()
	f, err := e.svc.Upload(context.Background(), appfiles.UploadCommand{
		Filename: name,
		Size:     int64(len(data)),
		Body:     bytes.NewReader(data),
	})
	require.NoError(t, err)
	got, err := e.repo.Get(context.Background(), f.ID)
	require.NoError(t, err)
	return got
}

func outputRows(t *testing.T, e *env, f *domain.File) [][]string {
	t.Helper()
	rc, err := e.blobs.Open(context.Background(), f.OutputKey)
	require.NoError(t, err)
	defer rc.Close()
	wb, err := excelize.OpenReader(rc)
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(spreadsheet.OutputSheet)
	require.NoError(t, err)
	return rows
}

func TestProcessFirstColumnWithBlank(t *testing.T) {
	e := newEnv(t, nil)
	f := e.upload(t, "items.xlsx", sheet(t, "id", "A1", "", "A2", "A3"))

	assert.Equal(t, domain.StatusDone, f.Status)
	assert.Equal(t, "output_items.xlsx.xlsx", f.OutputFilename)
	assert.NotEqual(t, f.InputKey, f.OutputKey)

	recs, err := e.repo.ListRecordsByFile(context.Background(), f.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, want := range []string{"A1", "A2", "A3"} {
		assert.Equal(t, want, recs[i].ItemID)
		assert.Equal(t, domain.RecordDone, recs[i].Status)
	}

	assert.Equal(t, [][]string{
		{"id", "scraped_data"},
		{"A1", "Data for A1"},
		{"A2", "Data for A2"},
		{"A3", "Data for A3"},
	}, outputRows(t, e, f))
}

func TestProcessUnreadableMarksFailed(t *testing.T) {
	e := newEnv(t, nil)
	f := e.upload(t, "broken.xlsx", []byte("definitely not a spreadsheet"))

	assert.Equal(t, domain.StatusFailed, f.Status)
	assert.Contains(t, f.Error, "read spreadsheet")
	assert.Empty(t, f.OutputFilename)

	recs, err := e.repo.ListRecordsByFile(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

type flakyScraper struct{ fail string }

func (s flakyScraper) Scrape(_ context.Context, id string) (string, error) {
	if id == s.fail {
		return "", errors.New("upstream unavailable")
	}
	return "Data for " + id, nil
}

func TestProcessRowFailureIsRecorded(t *testing.T) {
	e := newEnv(t, flakyScraper{fail: "A2"})
	f := e.upload(t, "items.xlsx", sheet(t, "id", "A1", "A2", "A3"))
	require.Equal(t, domain.StatusDone, f.Status)

	recs, err := e.repo.ListRecordsByFile(context.Background(), f.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, domain.RecordFailed, recs[1].Status)

	rows := outputRows(t, e, f)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"A2"}, rows[2])
}

func TestProcessDeletedFileDiscardsOutput(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, e.blobs.Put(ctx, "inputs/orphan.xlsx", bytes.NewReader(sheet(t, "id", "X")), -1, ""))

	err := e.processor.Run(ctx, domain.Job{FileID: 4242, InputKey: "inputs/orphan.xlsx", Filename: "orphan.xlsx"})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(e.dir, "outputs"))
	if err == nil {
		assert.Empty(t, entries)
	}
	recs, err := e.repo.ListRecordsByFile(ctx, 4242)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestProcessCancelledLeavesProcessing(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, e.blobs.Put(ctx, "inputs/c.xlsx", bytes.NewReader(sheet(t, "id", "A1")), -1, ""))
	f := &domain.File{InputFilename: "c.xlsx", InputKey: "inputs/c.xlsx"}
	require.NoError(t, e.repo.Create(ctx, f))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err := e.processor.Run(cctx, domain.Job{FileID: f.ID, InputKey: f.InputKey, Filename: f.InputFilename})
	require.Error(t, err)

	got, err := e.repo.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)

	// a later run picks it up again
	require.NoError(t, e.processor.Run(ctx, domain.Job{FileID: f.ID, InputKey: f.InputKey, Filename: f.InputFilename}))
	got, err = e.repo.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, got.Status)
}

func TestProcessMissingInputMarksFailed(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	f := &domain.File{InputFilename: "gone.xlsx", InputKey: "inputs/gone.xlsx"}
	require.NoError(t, e.repo.Create(ctx, f))

	err := e.processor.Run(ctx, domain.Job{FileID: f.ID, InputKey: f.InputKey, Filename: f.InputFilename})
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)

	got, err := e.repo.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
}

type jobRecorder struct {
	jobs []domain.Job
}

func (q *jobRecorder) Submit(_ context.Context, job domain.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func TestProcessSameJobTwiceKeepsOneRun(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	q := &jobRecorder{}
	e.svc.Queue = q

	f, err := e.svc.Upload(ctx, appfiles.UploadCommand{
		Filename: "dup.xlsx",
		Body:     bytes.NewReader(sheet(t, "id", "A1", "A2", "A3")),
	})
	require.NoError(t, err)

	// the upload is still processing, so a resume queues it again
	n, err := e.svc.ResumePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, q.jobs, 2)

	for _, job := range q.jobs {
		require.NoError(t, e.processor.Run(ctx, job))
	}

	recs, err := e.repo.ListRecordsByFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	got, err := e.repo.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, got.Status)
	entries, err := os.ReadDir(filepath.Join(e.dir, "outputs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "outputs/"+entries[0].Name(), got.OutputKey)
}
