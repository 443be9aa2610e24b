package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	domain "github.com/bryanwahyu/sheet-scraper/internal/domain/files"
)

const (
	OutputSheet = "Sheet1"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var ErrNoSheet = errors.New("workbook has no sheets")

// Excel reads and writes xlsx workbooks.
type Excel struct{}

// ReadItemIDs returns the first column of the first sheet below the header row.
// Leading blank rows are skipped before the header; blank cells are dropped.
func (Excel) ReadItemIDs(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheets[0], err)
	}

	ids := []string{}
	header := false
	for _, row := range rows {
		if !header {
			if isBlankRow(row) {
				continue
			}
			header = true
			continue
		}
		// whitespace-only cells count as empty and yield no item
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		ids = append(ids, row[0])
	}
	return ids, nil
}

// WriteResults writes the two-column result sheet (id, scraped_data).
func (Excel) WriteResults(w io.Writer, rows []domain.ResultRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(OutputSheet, "A1", &[]any{"id", "scraped_data"}); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(OutputSheet, cell, &[]any{row.ItemID, row.Data}); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
