package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/progress"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// StoreSink persists job log lines through a scrape.LogStore. Each batch is
// written with one AppendLogs call so entries keep their emit order.
type StoreSink struct {
	store  scrape.LogStore
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided log store.
func NewStoreSink(store scrape.LogStore, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: store, logger: logger}
}

// Consume forwards StageLog events and ignores the rest.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.store == nil {
		return nil
	}
	entries := make([]scrape.LogEntry, 0, len(batch))
	for _, evt := range batch {
		if evt.Stage == progress.StageLog {
			entries = append(entries, evt.LogEntry())
		}
	}
	if len(entries) == 0 {
		return nil
	}
	if err := s.store.AppendLogs(ctx, entries); err != nil {
		return fmt.Errorf("append %d log entries: %w", len(entries), err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
