package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/autocrew/autocrew/internal/tables"
)

// InsertDocument creates the metadata row for an upload. Callers insert
// with status "processing" before invoking the external webhook so a
// crash mid-upload leaves a recoverable trace instead of silent loss.
func (s *Store) InsertDocument(ctx context.Context, d Document) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kb_documents (doc_id, client_id, crew_id, filename, file_type, file_size, page_count, chunk_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.DocID, d.ClientID, d.CrewID, d.Filename, d.FileType, d.FileSize, d.PageCount, d.ChunkCount, d.Status,
	)
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", d.DocID, err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, docID string) (Document, error) {
	var d Document
	err := s.pool.QueryRow(ctx, `
		SELECT doc_id, client_id, crew_id, filename, file_type, file_size, page_count, chunk_count, status, error_message, created_at, updated_at
		FROM kb_documents WHERE doc_id = $1`, docID,
	).Scan(&d.DocID, &d.ClientID, &d.CrewID, &d.Filename, &d.FileType, &d.FileSize,
		&d.PageCount, &d.ChunkCount, &d.Status, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("getting document %s: %w", docID, err)
	}
	return d, nil
}

// SetDocumentError moves a document to the error terminal state.
func (s *Store) SetDocumentError(ctx context.Context, docID, message string) error {
	res, err := s.pool.Exec(ctx, `
		UPDATE kb_documents SET status = $1, error_message = $2, updated_at = now()
		WHERE doc_id = $3`, DocStatusError, message, docID)
	if err != nil {
		return fmt.Errorf("marking document %s as error: %w", docID, err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IndexDocumentAndActivateCrew runs in a single transaction:
// the document moves to "indexed" with its final chunk count, and on
// the crew's first successful upload the activation flags in its
// config are updated. Both writes commit or neither does; readers
// never observe the intermediate state.
func (s *Store) IndexDocumentAndActivateCrew(ctx context.Context, docID, crewID string, chunkCount int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning index transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, `
		UPDATE kb_documents SET status = $1, chunk_count = $2, updated_at = now()
		WHERE doc_id = $3`, DocStatusIndexed, chunkCount, docID)
	if err != nil {
		return fmt.Errorf("indexing document %s: %w", docID, err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}

	crew, err := getCrewTx(ctx, tx, crewID)
	if err != nil {
		return fmt.Errorf("loading crew %s: %w", crewID, err)
	}

	if !crew.Config.ActivationState.DocumentsUploaded {
		crew.Config.ActivationState.DocumentsUploaded = true
		crew.Config.ActivationState.Recompute()
		if err := updateCrewConfigTx(ctx, tx, crewID, crew.Config); err != nil {
			return fmt.Errorf("activating crew %s: %w", crewID, err)
		}
	}

	return tx.Commit(ctx)
}

func getCrewTx(ctx context.Context, tx pgx.Tx, crewID string) (Crew, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, client_id, crew_code, name, type, status, webhook_url, config, table_seq, created_at
		FROM crews WHERE id = $1`, crewID)
	c, err := scanCrew(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Crew{}, ErrNotFound
	}
	return c, err
}

func updateCrewConfigTx(ctx context.Context, tx pgx.Tx, crewID string, cfg CrewConfig) error {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling crew config: %w", err)
	}
	_, err = tx.Exec(ctx, `UPDATE crews SET config = $1 WHERE id = $2`, configJSON, crewID)
	return err
}

// DeleteDocumentWithChunks removes the metadata row and, when
// vectorTable is non-empty, any partially written chunks, in one
// transaction. The table name is re-validated before interpolation
// even though it came out of a crew config.
func (s *Store) DeleteDocumentWithChunks(ctx context.Context, docID, vectorTable string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning rollback transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if vectorTable != "" {
		name, err := tables.SanitizeTableName(vectorTable)
		if err != nil {
			return fmt.Errorf("refusing chunk delete: %w", err)
		}
		if _, err := tx.Exec(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1", name), docID); err != nil {
			return fmt.Errorf("deleting chunks for %s from %s: %w", docID, name, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM kb_documents WHERE doc_id = $1`, docID); err != nil {
		return fmt.Errorf("deleting document %s: %w", docID, err)
	}

	return tx.Commit(ctx)
}

// ListStuckDocuments returns documents still "processing" after
// olderThan. These are rows orphaned by a crash between metadata
// creation and a terminal transition.
func (s *Store) ListStuckDocuments(ctx context.Context, olderThan time.Duration, limit int) ([]Document, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.pool.Query(ctx, `
		SELECT doc_id, client_id, crew_id, filename, file_type, file_size, page_count, chunk_count, status, error_message, created_at, updated_at
		FROM kb_documents
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC LIMIT $3`, DocStatusProcessing, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("listing stuck documents: %w", err)
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.DocID, &d.ClientID, &d.CrewID, &d.Filename, &d.FileType, &d.FileSize,
			&d.PageCount, &d.ChunkCount, &d.Status, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// ListDocumentsByCrew returns a crew's documents, newest first.
func (s *Store) ListDocumentsByCrew(ctx context.Context, crewID string, limit int) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc_id, client_id, crew_id, filename, file_type, file_size, page_count, chunk_count, status, error_message, created_at, updated_at
		FROM kb_documents WHERE crew_id = $1 ORDER BY created_at DESC LIMIT $2`, crewID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing documents for crew %s: %w", crewID, err)
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.DocID, &d.ClientID, &d.CrewID, &d.Filename, &d.FileType, &d.FileSize,
			&d.PageCount, &d.ChunkCount, &d.Status, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}
