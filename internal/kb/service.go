// Package kb manages the knowledge-base document lifecycle: optimistic
// metadata creation, handoff to the external embedding webhook, the
// transactional move to "indexed", and rollback when the pipeline
// fails partway.
package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/autocrew/autocrew/internal/storage"
	"github.com/autocrew/autocrew/internal/tables"
)

// DocumentStore abstracts the relational operations the service needs.
type DocumentStore interface {
	GetCrew(ctx context.Context, id string) (storage.Crew, error)
	InsertDocument(ctx context.Context, d storage.Document) error
	GetDocument(ctx context.Context, docID string) (storage.Document, error)
	SetDocumentError(ctx context.Context, docID, message string) error
	IndexDocumentAndActivateCrew(ctx context.Context, docID, crewID string, chunkCount int) error
	DeleteDocumentWithChunks(ctx context.Context, docID, vectorTable string) error
}

// Processor abstracts the embedding webhook call.
type Processor interface {
	Process(ctx context.Context, crewCode, docID, filename string, file []byte) (ProcessResult, error)
}

// Service drives document uploads through their state machine:
// processing -> indexed, processing -> error, or processing -> deleted
// (rollback). No request leaves a document in "processing" on its own
// completion.
type Service struct {
	store   DocumentStore
	webhook Processor
	logger  *slog.Logger
}

func NewService(store DocumentStore, webhook Processor) *Service {
	return &Service{store: store, webhook: webhook, logger: slog.Default()}
}

// UploadRequest describes an incoming knowledge-base file.
type UploadRequest struct {
	CrewID   string
	Filename string
	Data     []byte
}

// CreateDocumentMetadata inserts the metadata row in "processing"
// state. Called before the webhook is invoked, deliberately: a crash
// mid-upload leaves a recoverable trace rather than silent data loss.
func (s *Service) CreateDocumentMetadata(ctx context.Context, d storage.Document) error {
	d.Status = storage.DocStatusProcessing
	d.ChunkCount = 0
	if err := s.store.InsertDocument(ctx, d); err != nil {
		return fmt.Errorf("creating document metadata: %w", err)
	}
	return nil
}

// MarkDocumentAsError moves a document to the error terminal state.
// Best effort: its own failure is logged, not retried.
func (s *Service) MarkDocumentAsError(ctx context.Context, docID, message string) {
	if err := s.store.SetDocumentError(ctx, docID, message); err != nil {
		s.logger.Error("failed to mark document as error", "doc_id", docID, "error", err)
	}
}

// RollbackDocument deletes the metadata row and, when the vector table
// is known, any partially written chunks. A failure here means the
// system cannot restore consistency unaided: it is logged CRITICAL for
// operator cleanup and returned to the caller.
func (s *Service) RollbackDocument(ctx context.Context, docID, vectorTable string) error {
	if err := s.store.DeleteDocumentWithChunks(ctx, docID, vectorTable); err != nil {
		s.logger.Error("CRITICAL: document rollback failed, manual cleanup required",
			"doc_id", docID, "vector_table", vectorTable, "error", err)
		return fmt.Errorf("rolling back document %s: %w", docID, err)
	}
	s.logger.Info("rolled back document", "doc_id", docID)
	return nil
}

// Upload runs the full pipeline: metadata creation, webhook handoff,
// and exactly one terminal transition.
//
//   - webhook success: document -> indexed (with the crew's activation
//     flags updated on its first success)
//   - webhook-reported failure or non-OK response: document -> error
//   - timeout: document -> error with a timeout message (no rollback)
//   - anything else thrown after metadata creation: rollback, error
//     propagates
func (s *Service) Upload(ctx context.Context, req UploadRequest) (storage.Document, error) {
	crew, err := s.store.GetCrew(ctx, req.CrewID)
	if err != nil {
		return storage.Document{}, fmt.Errorf("loading crew %s: %w", req.CrewID, err)
	}
	if crew.Type != tables.TypeCustomerSupport {
		return storage.Document{}, fmt.Errorf("crew %s is not a customer_support crew", req.CrewID)
	}

	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(req.Filename)), ".")

	// Cheap validation before any row exists or webhook spend happens.
	pageCount := 0
	if fileType == "pdf" {
		pageCount, err = InspectPDF(req.Data)
		if err != nil {
			return storage.Document{}, fmt.Errorf("rejecting unparseable PDF %q: %w", req.Filename, err)
		}
	}

	doc := storage.Document{
		DocID:     uuid.New().String(),
		ClientID:  crew.ClientID,
		CrewID:    crew.ID,
		Filename:  req.Filename,
		FileType:  fileType,
		FileSize:  int64(len(req.Data)),
		PageCount: pageCount,
		Status:    storage.DocStatusProcessing,
	}
	if err := s.CreateDocumentMetadata(ctx, doc); err != nil {
		return storage.Document{}, err
	}

	result, err := s.webhook.Process(ctx, crew.CrewCode, doc.DocID, req.Filename, req.Data)
	if err != nil {
		return s.handleProcessFailure(ctx, doc, crew, err)
	}

	if err := s.store.IndexDocumentAndActivateCrew(ctx, doc.DocID, crew.ID, result.ChunkCount); err != nil {
		// Unexpected failure after the webhook wrote chunks: take the
		// full rollback path so no chunks outlive their metadata.
		vectorTable := result.VectorTable
		if vectorTable == "" {
			vectorTable = crew.Config.VectorTable
		}
		if rbErr := s.RollbackDocument(ctx, doc.DocID, vectorTable); rbErr != nil {
			return storage.Document{}, rbErr
		}
		return storage.Document{}, fmt.Errorf("finalizing document %s: %w", doc.DocID, err)
	}

	doc.Status = storage.DocStatusIndexed
	doc.ChunkCount = result.ChunkCount
	s.logger.Info("document indexed", "doc_id", doc.DocID, "crew_id", crew.ID,
		"chunks", result.ChunkCount, "model", result.EmbeddingsModel)
	return doc, nil
}

func (s *Service) handleProcessFailure(ctx context.Context, doc storage.Document, crew storage.Crew, err error) (storage.Document, error) {
	var whErr *WebhookError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg := fmt.Sprintf("processing timeout after %s", DefaultProcessTimeout)
		s.MarkDocumentAsError(ctx, doc.DocID, msg)
		doc.Status = storage.DocStatusError
		doc.ErrorMessage = msg
		return doc, fmt.Errorf("document %s: %s", doc.DocID, msg)

	case errors.As(err, &whErr):
		s.MarkDocumentAsError(ctx, doc.DocID, whErr.Message)
		doc.Status = storage.DocStatusError
		doc.ErrorMessage = whErr.Message
		return doc, err

	default:
		// Transport or decode failure with unknown webhook state: remove
		// the trace instead of leaving a lie in the metadata.
		if rbErr := s.RollbackDocument(ctx, doc.DocID, crew.Config.VectorTable); rbErr != nil {
			return storage.Document{}, rbErr
		}
		return storage.Document{}, fmt.Errorf("processing document %s: %w", doc.DocID, err)
	}
}
