package files

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/bryanwahyu/sheet-scraper/internal/application"
	domain "github.com/bryanwahyu/sheet-scraper/internal/domain/files"
	"github.com/bryanwahyu/sheet-scraper/internal/metrics"
)

// Service implements the upload, listing and download use-cases.
// It is safe for concurrent use.
type Service struct {
	Repo  domain.Repository
	Blobs domain.BlobStore
	Queue domain.Queue
	Clock application.Clock
	Log   *slog.Logger
}

// UploadCommand carries one received spreadsheet.
type UploadCommand struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Upload stores the bytes under a generated key, creates the file record and
// submits the processing job. The record is returned even when submission
// fails; it is then marked failed.
func (s *Service) Upload(ctx context.Context, cmd UploadCommand) (*domain.File, error) {
	if strings.TrimSpace(cmd.Filename) == "" {
		return nil, errors.New("filename is required")
	}
	clock := application.ClockOrSystem(s.Clock)

	key := InputKey(cmd.Filename)
	digest := xxhash.New()
	body := io.TeeReader(cmd.Body, digest)
	size := cmd.Size
	if size == 0 {
		size = -1
	}
	if err := s.Blobs.Put(ctx, key, body, size, cmd.ContentType); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	f := &domain.File{
		InputFilename: cmd.Filename,
		InputKey:      key,
		Checksum:      hex.EncodeToString(digest.Sum(nil)),
		Status:        domain.StatusProcessing,
		CreatedAt:     clock.Now(),
	}
	if err := s.Repo.Create(ctx, f); err != nil {
		_ = s.Blobs.Delete(context.WithoutCancel(ctx), key)
		return nil, fmt.Errorf("create file record: %w", err)
	}
	metrics.IncUpload()

	job := domain.Job{FileID: f.ID, InputKey: f.InputKey, Filename: f.InputFilename}
	if err := s.Queue.Submit(ctx, job); err != nil {
		reason := err.Error()
		if mErr := s.Repo.MarkFailed(context.WithoutCancel(ctx), f.ID, reason, clock.Now()); mErr != nil {
			s.logger().Error("mark file failed", "file_id", f.ID, "err", mErr)
		}
		f.Status = domain.StatusFailed
		f.Error = reason
		return f, fmt.Errorf("submit file %d: %w", f.ID, err)
	}

	s.logger().Info("file uploaded", "file_id", f.ID, "filename", f.InputFilename, "checksum", f.Checksum)
	return f, nil
}

func (s *Service) Get(ctx context.Context, id domain.FileID) (*domain.File, error) {
	return s.Repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*domain.File, error) {
	return s.Repo.List(ctx)
}

func (s *Service) ListOutputs(ctx context.Context) ([]*domain.File, error) {
	return s.Repo.ListWithOutput(ctx)
}

func (s *Service) ListRecords(ctx context.Context) ([]*domain.ScrapeRecord, error) {
	return s.Repo.ListRecords(ctx)
}

// ListRecordsByFile returns ErrNotFound when there are no records, whether or
// not the file exists.
func (s *Service) ListRecordsByFile(ctx context.Context, id domain.FileID) ([]*domain.ScrapeRecord, error) {
	recs, err := s.Repo.ListRecordsByFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("records for file %d: %w", id, domain.ErrNotFound)
	}
	return recs, nil
}

// OpenInput returns the record and a reader for the uploaded spreadsheet.
func (s *Service) OpenInput(ctx context.Context, id domain.FileID) (*domain.File, io.ReadCloser, error) {
	f, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.Blobs.Open(ctx, f.InputKey)
	if err != nil {
		return f, nil, err
	}
	return f, rc, nil
}

// OpenOutput is OpenInput for the generated spreadsheet; ErrNoOutput until processed.
func (s *Service) OpenOutput(ctx context.Context, id domain.FileID) (*domain.File, io.ReadCloser, error) {
	f, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !f.HasOutput() || f.OutputKey == "" {
		return f, nil, fmt.Errorf("file %d: %w", id, domain.ErrNoOutput)
	}
	rc, err := s.Blobs.Open(ctx, f.OutputKey)
	if err != nil {
		return f, nil, err
	}
	return f, rc, nil
}

// ResumePending resubmits files left in processing by an earlier shutdown.
func (s *Service) ResumePending(ctx context.Context) (int, error) {
	pending, err := s.Repo.ListByStatus(ctx, domain.StatusProcessing)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range pending {
		job := domain.Job{FileID: f.ID, InputKey: f.InputKey, Filename: f.InputFilename}
		if err := s.Queue.Submit(ctx, job); err != nil {
			return n, fmt.Errorf("resume file %d: %w", f.ID, err)
		}
		n++
	}
	if n > 0 {
		s.logger().Info("resumed pending files", "count", n)
	}
	return n, nil
}

func (s *Service) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

// InputKey is the blob key of a new upload; the extension is kept for content sniffing.
func InputKey(filename string) string {
	return "inputs/" + uuid.NewString() + strings.ToLower(filepath.Ext(filename))
}

// OutputKey is the blob key of a new result spreadsheet.
func OutputKey() string {
	return "outputs/" + uuid.NewString() + ".xlsx"
}
