package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/bryanwahyu/sheet-scraper/internal/domain/files"
)

type FileRepository struct {
	db *sql.DB
	d  Dialect
}

func NewFileRepository(db *sql.DB, d Dialect) *FileRepository {
	return &FileRepository{db: db, d: d}
}

const fileColumns = `id, input_filename, input_key, checksum,
       COALESCE(output_filename, ''), COALESCE(output_key, ''),
       status, COALESCE(error_message, ''), created_date, processed_at`

// Create inserts a file record and sets f.ID
func (r *FileRepository) Create(ctx context.Context, f *domain.File) error {
	q := `INSERT INTO files (input_filename, input_key, checksum, status, created_date)
VALUES (?,?,?,?,?)`
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	created = created.UTC()
	status := f.Status
	if status == "" {
		status = domain.StatusProcessing
	}
	args := []any{f.InputFilename, f.InputKey, f.Checksum, string(status), created}

	if r.d.ReturningID {
		var id int64
		if err := r.db.QueryRowContext(ctx, r.d.Rebind(q+" RETURNING id"), args...).Scan(&id); err != nil {
			return fmt.Errorf("insert file: %w", err)
		}
		f.ID = domain.FileID(id)
	} else {
		res, err := r.db.ExecContext(ctx, r.d.Rebind(q), args...)
		if err != nil {
			return fmt.Errorf("insert file: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert file id: %w", err)
		}
		f.ID = domain.FileID(id)
	}
	f.Status = status
	f.CreatedAt = created
	return nil
}

// Get by ID
func (r *FileRepository) Get(ctx context.Context, id domain.FileID) (*domain.File, error) {
	q := `SELECT ` + fileColumns + ` FROM files WHERE id=?`
	f, err := scanFile(r.db.QueryRowContext(ctx, r.d.Rebind(q), int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get file %d: %w", id, err)
	}
	return f, nil
}

func (r *FileRepository) List(ctx context.Context) ([]*domain.File, error) {
	return r.queryFiles(ctx, `SELECT `+fileColumns+` FROM files ORDER BY id`)
}

// ListWithOutput returns only files whose output filename is set and non-empty.
func (r *FileRepository) ListWithOutput(ctx context.Context) ([]*domain.File, error) {
	return r.queryFiles(ctx, `SELECT `+fileColumns+` FROM files
WHERE output_filename IS NOT NULL AND output_filename <> '' ORDER BY id`)
}

func (r *FileRepository) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.File, error) {
	return r.queryFiles(ctx, `SELECT `+fileColumns+` FROM files WHERE status=? ORDER BY id`, string(status))
}

// MarkFailed records a failed run. Files that already completed are left alone.
func (r *FileRepository) MarkFailed(ctx context.Context, id domain.FileID, reason string, at time.Time) error {
	q := `UPDATE files SET status=?, error_message=?, processed_at=? WHERE id=? AND status<>?`
	_, err := r.db.ExecContext(ctx, r.d.Rebind(q),
		string(domain.StatusFailed), reason, at.UTC(), int64(id), string(domain.StatusDone))
	if err != nil {
		return fmt.Errorf("mark file %d failed: %w", id, err)
	}
	return nil
}

// Complete writes the whole run in one transaction; nothing is visible on failure.
// Only a file still in processing is completed.
func (r *FileRepository) Complete(ctx context.Context, id domain.FileID, c domain.Completion) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// claim the file first; a second run of the same job must not add records
	q := `UPDATE files SET output_filename=?, output_key=?, status=?, error_message=NULL, processed_at=? WHERE id=? AND status=?`
	res, err := tx.ExecContext(ctx, r.d.Rebind(q),
		c.OutputFilename, c.OutputKey, string(domain.StatusDone), c.ProcessedAt.UTC(), int64(id), string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("update file %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update file %d: %w", id, err)
	}
	if n == 0 {
		var status string
		err = tx.QueryRowContext(ctx, r.d.Rebind(`SELECT status FROM files WHERE id=?`), int64(id)).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("file %d: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("refetch file %d: %w", id, err)
		}
		return fmt.Errorf("file %d is %s: %w", id, status, domain.ErrAlreadyProcessed)
	}

	if len(c.Records) > 0 {
		stmt, perr := tx.PrepareContext(ctx, r.d.Rebind(
			`INSERT INTO scrape_records (file_id, item_id, status, created_date) VALUES (?,?,?,?)`))
		if perr != nil {
			return fmt.Errorf("prepare records: %w", perr)
		}
		defer stmt.Close()
		for _, rec := range c.Records {
			status := rec.Status
			if status == "" {
				status = domain.RecordPending
			}
			created := rec.CreatedAt
			if created.IsZero() {
				created = c.ProcessedAt
			}
			if _, err = stmt.ExecContext(ctx, int64(id), rec.ItemID, string(status), created.UTC()); err != nil {
				return fmt.Errorf("insert record %q: %w", rec.ItemID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *FileRepository) ListRecords(ctx context.Context) ([]*domain.ScrapeRecord, error) {
	return r.queryRecords(ctx, `SELECT id, file_id, item_id, status, created_date FROM scrape_records ORDER BY id`)
}

func (r *FileRepository) ListRecordsByFile(ctx context.Context, id domain.FileID) ([]*domain.ScrapeRecord, error) {
	return r.queryRecords(ctx, `SELECT id, file_id, item_id, status, created_date
FROM scrape_records WHERE file_id=? ORDER BY id`, int64(id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*domain.File, error) {
	var (
		f         domain.File
		id        int64
		status    string
		processed sql.NullTime
	)
	if err := row.Scan(
		&id, &f.InputFilename, &f.InputKey, &f.Checksum,
		&f.OutputFilename, &f.OutputKey,
		&status, &f.Error, &f.CreatedAt, &processed,
	); err != nil {
		return nil, err
	}
	f.ID = domain.FileID(id)
	f.Status = domain.Status(strings.TrimSpace(status))
	if processed.Valid {
		f.ProcessedAt = processed.Time
	}
	return &f, nil
}

func (r *FileRepository) queryFiles(ctx context.Context, q string, args ...any) ([]*domain.File, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	out := []*domain.File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FileRepository) queryRecords(ctx context.Context, q string, args ...any) ([]*domain.ScrapeRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := []*domain.ScrapeRecord{}
	for rows.Next() {
		var (
			rec    domain.ScrapeRecord
			fileID int64
			status string
		)
		if err := rows.Scan(&rec.ID, &fileID, &rec.ItemID, &status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.FileID = domain.FileID(fileID)
		rec.Status = domain.RecordStatus(status)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
