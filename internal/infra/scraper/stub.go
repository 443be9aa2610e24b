package scraper

import (
	"context"
	"log/slog"
)

// Stub derives a fixed placeholder value per item. No network access.
type Stub struct {
	Log *slog.Logger
}

func NewStub(log *slog.Logger) *Stub {
	if log == nil {
		log = slog.Default()
	}
	return &Stub{Log: log}
}

func (s *Stub) Scrape(ctx context.Context, itemID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.Log.Info("scraping data", "item_id", itemID)
	return "Data for " + itemID, nil
}
