package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bryanwahyu/sheet-scraper/internal/application"
	appfiles "github.com/bryanwahyu/sheet-scraper/internal/application/files"
	domain "github.com/bryanwahyu/sheet-scraper/internal/domain/files"
	"github.com/bryanwahyu/sheet-scraper/internal/metrics"
)

const outputContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Processor runs one job: read the sheet, scrape every item, write the
// output and commit all records together.
type Processor struct {
	Repo    domain.Repository
	Blobs   domain.BlobStore
	Scraper domain.Scraper
	Sheets  domain.SheetCodec
	Clock   application.Clock
	Log     *slog.Logger
}

// Run processes the job and records the outcome on the file record.
// A cancelled context leaves the file in processing so it can be resumed.
func (p *Processor) Run(ctx context.Context, job domain.Job) error {
	start := time.Now()
	log := p.logger().With("file_id", job.FileID)

	err := p.process(ctx, job, log)
	switch {
	case err == nil:
		metrics.ObserveRun("done", time.Since(start).Seconds())
		return nil
	case errors.Is(err, domain.ErrNotFound):
		log.Warn("file record gone, output discarded")
		metrics.ObserveRun("skipped", time.Since(start).Seconds())
		return nil
	case errors.Is(err, domain.ErrAlreadyProcessed):
		log.Warn("file already processed, output discarded", "err", err)
		metrics.ObserveRun("skipped", time.Since(start).Seconds())
		return nil
	case ctx.Err() != nil:
		log.Warn("processing interrupted", "err", err)
		metrics.ObserveRun("interrupted", time.Since(start).Seconds())
		return err
	}

	log.Error("processing failed", "err", err)
	metrics.ObserveRun("failed", time.Since(start).Seconds())
	if mErr := p.Repo.MarkFailed(ctx, job.FileID, err.Error(), p.clock().Now()); mErr != nil {
		log.Error("mark file failed", "err", mErr)
	}
	return err
}

func (p *Processor) process(ctx context.Context, job domain.Job, log *slog.Logger) error {
	rc, err := p.Blobs.Open(ctx, job.InputKey)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	ids, err := p.Sheets.ReadItemIDs(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	log.Info("processing file", "items", len(ids))

	records := make([]domain.ScrapeRecord, 0, len(ids))
	rows := make([]domain.ResultRow, 0, len(ids))
	failed := 0
	for _, id := range ids {
		data, err := p.Scraper.Scrape(ctx, id)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		status := domain.RecordDone
		if err != nil {
			log.Warn("scrape failed", "item_id", id, "err", err)
			status = domain.RecordFailed
			data = ""
			failed++
		}
		records = append(records, domain.ScrapeRecord{
			FileID:    job.FileID,
			ItemID:    id,
			Status:    status,
			CreatedAt: p.clock().Now(),
		})
		rows = append(rows, domain.ResultRow{ItemID: id, Data: data})
	}

	var buf bytes.Buffer
	if err := p.Sheets.WriteResults(&buf, rows); err != nil {
		return fmt.Errorf("build output: %w", err)
	}
	outKey := appfiles.OutputKey()
	if err := p.Blobs.Put(ctx, outKey, &buf, int64(buf.Len()), outputContentType); err != nil {
		return fmt.Errorf("store output: %w", err)
	}

	err = p.Repo.Complete(ctx, job.FileID, domain.Completion{
		OutputFilename: domain.OutputFilenameFor(job.Filename),
		OutputKey:      outKey,
		ProcessedAt:    p.clock().Now(),
		Records:        records,
	})
	if err != nil {
		if dErr := p.Blobs.Delete(context.WithoutCancel(ctx), outKey); dErr != nil {
			log.Error("delete orphaned output", "key", outKey, "err", dErr)
		}
		return err
	}

	metrics.AddRows(string(domain.RecordDone), len(records)-failed)
	metrics.AddRows(string(domain.RecordFailed), failed)
	log.Info("processing done", "items", len(records), "failed", failed)
	return nil
}

func (p *Processor) clock() application.Clock {
	return application.ClockOrSystem(p.Clock)
}

func (p *Processor) logger() *slog.Logger {
	if p.Log == nil {
		return slog.Default()
	}
	return p.Log
}
