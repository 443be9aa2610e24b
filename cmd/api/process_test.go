package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	domain "github.com/bryanwahyu/sheet-scraper/internal/domain/files"
)

func TestProcessCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
database:
  driver: sqlite
  path: `+filepath.Join(dir, "files.db")+`
storage:
  backend: local
  dir: `+filepath.Join(dir, "uploads")+`
log:
  level: error
`), 0o644))
	for _, k := range []string{"SCRAPER_PORT", "SCRAPER_DB_DRIVER", "SCRAPER_DB_DSN", "SCRAPER_STORAGE_BACKEND", "SCRAPER_UPLOAD_DIR", "SCRAPER_LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	wb := excelize.NewFile()
	require.NoError(t, wb.SetCellValue("Sheet1", "A1", "id"))
	require.NoError(t, wb.SetCellValue("Sheet1", "A2", "A1"))
	require.NoError(t, wb.SetCellValue("Sheet1", "A3", "A2"))
	sheetPath := filepath.Join(dir, "items.xlsx")
	require.NoError(t, wb.SaveAs(sheetPath))
	require.NoError(t, wb.Close())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"process", sheetPath, "--config", cfgPath})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	var rec domain.File
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, domain.StatusDone, rec.Status)
	assert.Equal(t, "items.xlsx", rec.InputFilename)
	assert.Equal(t, "output_items.xlsx.xlsx", rec.OutputFilename)
	assert.FileExists(t, filepath.Join(dir, "uploads", filepath.FromSlash(rec.OutputKey)))
}
