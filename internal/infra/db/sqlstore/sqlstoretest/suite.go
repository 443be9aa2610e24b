// Package sqlstoretest holds the repository checks shared by every SQL engine.
package sqlstoretest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/sheet-scraper/internal/domain/files"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/db/sqlstore"
)

// Run exercises a FileRepository against an empty database with the schema applied.
func Run(t *testing.T, db *sql.DB, d sqlstore.Dialect) {
	t.Helper()
	repo := sqlstore.NewFileRepository(db, d)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	newFile := func(t *testing.T, name string) *domain.File {
		t.Helper()
		f := &domain.File{InputFilename: name, InputKey: "inputs/" + name, Checksum: "abc", CreatedAt: now}
		require.NoError(t, repo.Create(ctx, f))
		return f
	}

	t.Run("create assigns increasing ids", func(t *testing.T) {
		a := newFile(t, "a.xlsx")
		b := newFile(t, "a.xlsx")
		assert.Greater(t, int64(b.ID), int64(a.ID))
		assert.Equal(t, domain.StatusProcessing, a.Status)

		got, err := repo.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "a.xlsx", got.InputFilename)
		assert.Equal(t, "inputs/a.xlsx", got.InputKey)
		assert.Equal(t, "abc", got.Checksum)
		assert.Empty(t, got.OutputFilename)
		assert.False(t, got.HasOutput())
		assert.WithinDuration(t, now, got.CreatedAt, time.Second)
		assert.True(t, got.ProcessedAt.IsZero())
	})

	t.Run("get unknown is not found", func(t *testing.T) {
		_, err := repo.Get(ctx, 987654)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("complete writes records and output together", func(t *testing.T) {
		f := newFile(t, "items.xlsx")
		err := repo.Complete(ctx, f.ID, domain.Completion{
			OutputFilename: "output_items.xlsx.xlsx",
			OutputKey:      "outputs/x.xlsx",
			ProcessedAt:    now.Add(time.Minute),
			Records: []domain.ScrapeRecord{
				{ItemID: "A1", Status: domain.RecordDone, CreatedAt: now},
				{ItemID: "A2", Status: domain.RecordDone, CreatedAt: now},
				{ItemID: "A3", Status: domain.RecordFailed, CreatedAt: now},
			},
		})
		require.NoError(t, err)

		got, err := repo.Get(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDone, got.Status)
		assert.Equal(t, "output_items.xlsx.xlsx", got.OutputFilename)
		assert.Equal(t, "outputs/x.xlsx", got.OutputKey)
		assert.False(t, got.ProcessedAt.IsZero())

		recs, err := repo.ListRecordsByFile(ctx, f.ID)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, "A1", recs[0].ItemID)
		assert.Equal(t, "A3", recs[2].ItemID)
		assert.Equal(t, domain.RecordFailed, recs[2].Status)
		for _, r := range recs {
			assert.Equal(t, f.ID, r.FileID)
		}

		all, err := repo.ListRecords(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(all), 3)

		outputs, err := repo.ListWithOutput(ctx)
		require.NoError(t, err)
		ids := map[domain.FileID]bool{}
		for _, o := range outputs {
			assert.NotEmpty(t, o.OutputFilename)
			ids[o.ID] = true
		}
		assert.True(t, ids[f.ID])
	})

	t.Run("complete on missing file writes nothing", func(t *testing.T) {
		const missing = domain.FileID(123456)
		err := repo.Complete(ctx, missing, domain.Completion{
			OutputFilename: "output_x.xlsx",
			OutputKey:      "outputs/y.xlsx",
			ProcessedAt:    now,
			Records:        []domain.ScrapeRecord{{ItemID: "Z", Status: domain.RecordDone}},
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		recs, err := repo.ListRecordsByFile(ctx, missing)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("complete twice keeps the first run", func(t *testing.T) {
		f := newFile(t, "twice.xlsx")
		first := domain.Completion{
			OutputFilename: "output_twice.xlsx.xlsx",
			OutputKey:      "outputs/first.xlsx",
			ProcessedAt:    now,
			Records:        []domain.ScrapeRecord{{ItemID: "A1", Status: domain.RecordDone}},
		}
		require.NoError(t, repo.Complete(ctx, f.ID, first))

		second := first
		second.OutputKey = "outputs/second.xlsx"
		err := repo.Complete(ctx, f.ID, second)
		assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

		got, err := repo.Get(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, "outputs/first.xlsx", got.OutputKey)
		recs, err := repo.ListRecordsByFile(ctx, f.ID)
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})

	t.Run("complete skips failed files", func(t *testing.T) {
		f := newFile(t, "gave-up.xlsx")
		require.NoError(t, repo.MarkFailed(ctx, f.ID, "queue full", now))
		err := repo.Complete(ctx, f.ID, domain.Completion{
			OutputFilename: "output_gave-up.xlsx.xlsx", OutputKey: "outputs/z.xlsx", ProcessedAt: now,
		})
		assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	})

	t.Run("list with output skips unprocessed files", func(t *testing.T) {
		f := newFile(t, "pending.xlsx")
		outputs, err := repo.ListWithOutput(ctx)
		require.NoError(t, err)
		for _, o := range outputs {
			assert.NotEqual(t, f.ID, o.ID)
		}

		all, err := repo.List(ctx)
		require.NoError(t, err)
		found := false
		for _, o := range all {
			found = found || o.ID == f.ID
		}
		assert.True(t, found)
	})

	t.Run("mark failed keeps done files", func(t *testing.T) {
		failed := newFile(t, "bad.xlsx")
		require.NoError(t, repo.MarkFailed(ctx, failed.ID, "boom", now))
		got, err := repo.Get(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, got.Status)
		assert.Equal(t, "boom", got.Error)

		done := newFile(t, "good.xlsx")
		require.NoError(t, repo.Complete(ctx, done.ID, domain.Completion{
			OutputFilename: "output_good.xlsx.xlsx", OutputKey: "outputs/g.xlsx", ProcessedAt: now,
		}))
		require.NoError(t, repo.MarkFailed(ctx, done.ID, "late", now))
		got, err = repo.Get(ctx, done.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDone, got.Status)
		assert.Empty(t, got.Error)
	})

	t.Run("list by status", func(t *testing.T) {
		f := newFile(t, "waiting.xlsx")
		pending, err := repo.ListByStatus(ctx, domain.StatusProcessing)
		require.NoError(t, err)
		found := false
		for _, p := range pending {
			assert.Equal(t, domain.StatusProcessing, p.Status)
			found = found || p.ID == f.ID
		}
		assert.True(t, found)
	})
}
