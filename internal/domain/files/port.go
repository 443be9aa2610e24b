package files

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrBlobNotFound = errors.New("blob not found")
	ErrNoOutput     = errors.New("output not available")
	ErrQueueFull    = errors.New("processing queue is full")

	ErrAlreadyProcessed = errors.New("file already processed")
)

// Repository port (persistence of file and row records)
type Repository interface {
	Create(ctx context.Context, f *File) error
	Get(ctx context.Context, id FileID) (*File, error)
	List(ctx context.Context) ([]*File, error)
	ListWithOutput(ctx context.Context) ([]*File, error)
	ListByStatus(ctx context.Context, status Status) ([]*File, error)
	MarkFailed(ctx context.Context, id FileID, reason string, at time.Time) error

	// Complete re-checks the file, inserts all records and sets the output
	// in a single transaction. ErrNotFound when the file no longer exists,
	// ErrAlreadyProcessed when it is no longer in processing.
	Complete(ctx context.Context, id FileID, c Completion) error

	ListRecords(ctx context.Context) ([]*ScrapeRecord, error)
	ListRecordsByFile(ctx context.Context, id FileID) ([]*ScrapeRecord, error)
}

// BlobStore port (input and output spreadsheets)
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Queue accepts processing jobs.
type Queue interface {
	Submit(ctx context.Context, job Job) error
}

// Scraper derives the data for one item identifier.
type Scraper interface {
	Scrape(ctx context.Context, itemID string) (string, error)
}

// SheetCodec reads identifiers from an uploaded spreadsheet and writes the result sheet.
type SheetCodec interface {
	ReadItemIDs(r io.Reader) ([]string, error)
	WriteResults(w io.Writer, rows []ResultRow) error
}
