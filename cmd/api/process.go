package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	appfiles "github.com/bryanwahyu/sheet-scraper/internal/application/files"
	"github.com/bryanwahyu/sheet-scraper/internal/application/processing"
	domain "github.com/bryanwahyu/sheet-scraper/internal/domain/files"
)

var processCmd = &cobra.Command{
	Use:   "process <spreadsheet>",
	Short: "Upload and process one spreadsheet synchronously",
	Long: `Store a local spreadsheet, process it in the foreground and print the file record.

Example:
  sheetscraper process ./items.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, configPath(cmd))
		if err != nil {
			return err
		}
		defer a.Close()

		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}

		svc := a.service(processing.Inline{Runner: a.processor})
		rec, err := svc.Upload(ctx, appfiles.UploadCommand{
			Filename:    filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Size:        info.Size(),
			Body:        f,
		})
		if err != nil {
			return err
		}

		// reload: the inline run updated the record
		rec, err = svc.Get(ctx, rec.ID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}
		if rec.Status != domain.StatusDone {
			return fmt.Errorf("file %d %s: %s", rec.ID, rec.Status, rec.Error)
		}
		return nil
	},
}
