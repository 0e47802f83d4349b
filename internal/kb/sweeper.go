package kb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/autocrew/autocrew/internal/storage"
)

// SweepStore abstracts the queries the sweeper needs.
type SweepStore interface {
	ListStuckDocuments(ctx context.Context, olderThan time.Duration, limit int) ([]storage.Document, error)
	SetDocumentError(ctx context.Context, docID, message string) error
}

const sweepBatchSize = 50

// Sweeper marks documents stuck in "processing" as errors. Uploads
// transition their document to a terminal state on completion, so a
// long-lived "processing" row means the process died mid-upload; the
// sweeper is the recovery path for those orphans.
//
// The sweeper is an explicit value owned by the serve command: it is
// constructed with its dependencies and runs only while its context
// lives, never as an import-time side effect.
type Sweeper struct {
	store  SweepStore
	maxAge time.Duration
	poll   time.Duration
	logger *slog.Logger
}

// NewSweeper creates a Sweeper. maxAge is how long a document may sit
// in "processing" before it is declared dead; poll defaults to one
// minute if <= 0.
func NewSweeper(store SweepStore, maxAge, poll time.Duration) *Sweeper {
	if poll <= 0 {
		poll = time.Minute
	}
	return &Sweeper{store: store, maxAge: maxAge, poll: poll, logger: slog.Default()}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := s.RunOnce(ctx)
		if err != nil {
			s.logger.Error("sweep iteration failed", "error", err)
		} else if n > 0 {
			s.logger.Warn("swept stuck documents", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.poll):
		}
	}
}

// RunOnce performs a single sweep and returns how many documents were
// moved to the error state. Per-document failures are isolated; one
// bad row does not stop the batch.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	stuck, err := s.store.ListStuckDocuments(ctx, s.maxAge, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing stuck documents: %w", err)
	}

	swept := 0
	for _, doc := range stuck {
		msg := fmt.Sprintf("processing abandoned after %s", s.maxAge)
		if err := s.store.SetDocumentError(ctx, doc.DocID, msg); err != nil {
			s.logger.Error("failed to sweep document", "doc_id", doc.DocID, "error", err)
			continue
		}
		swept++
	}
	return swept, nil
}
