package files

import (
	"strings"
	"time"
)

// FileID is the generated identifier of an uploaded spreadsheet.
type FileID int64

// Status of a file record
type Status string

const (
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// File is the metadata row for one uploaded spreadsheet and its generated output.
// InputKey and OutputKey address the blobs; the filenames are client metadata only.
type File struct {
	ID             FileID    `json:"id"`
	InputFilename  string    `json:"input_filename"`
	InputKey       string    `json:"input_key"`
	Checksum       string    `json:"checksum"`
	OutputFilename string    `json:"output_filename,omitempty"`
	OutputKey      string    `json:"output_key,omitempty"`
	Status         Status    `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_date"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// HasOutput reports whether processing produced an output spreadsheet.
func (f *File) HasOutput() bool {
	return strings.TrimSpace(f.OutputFilename) != ""
}

// OutputFilenameFor derives the download name of the result spreadsheet.
func OutputFilenameFor(inputFilename string) string {
	return "output_" + inputFilename + ".xlsx"
}

// RecordStatus of a single processed row
type RecordStatus string

const (
	RecordPending RecordStatus = "pending"
	RecordDone    RecordStatus = "done"
	RecordFailed  RecordStatus = "failed"
)

// ScrapeRecord is the outcome of processing one identifier from the first column.
type ScrapeRecord struct {
	ID        int64        `json:"id"`
	FileID    FileID       `json:"file_id"`
	ItemID    string       `json:"item_id"`
	Status    RecordStatus `json:"status"`
	CreatedAt time.Time    `json:"created_date"`
}

// ResultRow is one data row of the output spreadsheet.
type ResultRow struct {
	ItemID string
	Data   string
}

// Completion is everything a successful run writes back in one transaction.
type Completion struct {
	OutputFilename string
	OutputKey      string
	ProcessedAt    time.Time
	Records        []ScrapeRecord
}

// Job is the unit of work handed to the processing queue after an upload.
type Job struct {
	FileID   FileID
	InputKey string
	Filename string
}
