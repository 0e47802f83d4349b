package kb

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ledongthuc/pdf"
	"github.com/pgvector/pgvector-go"

	"github.com/autocrew/autocrew/internal/tables"
)

// InspectPDF parses the file and returns its page count. Used to
// populate document metadata and to reject broken PDFs before they
// cost a webhook round trip.
func InspectPDF(data []byte) (int, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing PDF: %w", err)
	}
	return r.NumPage(), nil
}

// Chunk is one embedded slice of a document in a crew's vector table.
type Chunk struct {
	ID        string
	DocID     string
	Content   string
	Embedding pgvector.Vector
	CreatedAt time.Time
}

// Querier is the slice of pgxpool.Pool chunk reads need.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ChunkReader provides admin reads against a crew's dynamically named
// vector table. Every table name is validated before interpolation.
type ChunkReader struct {
	db Querier
}

func NewChunkReader(db Querier) *ChunkReader {
	return &ChunkReader{db: db}
}

// CountChunks returns the number of chunks stored for a document.
func (r *ChunkReader) CountChunks(ctx context.Context, vectorTable, docID string) (int, error) {
	name, err := tables.SanitizeTableName(vectorTable)
	if err != nil {
		return 0, fmt.Errorf("refusing chunk count: %w", err)
	}

	var count int
	err = r.db.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE doc_id = $1", name), docID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks in %s: %w", name, err)
	}
	return count, nil
}

// ListChunks returns up to limit chunks for a document, including
// their embeddings, for admin inspection.
func (r *ChunkReader) ListChunks(ctx context.Context, vectorTable, docID string, limit int) ([]Chunk, error) {
	name, err := tables.SanitizeTableName(vectorTable)
	if err != nil {
		return nil, fmt.Errorf("refusing chunk listing: %w", err)
	}

	rows, err := r.db.Query(ctx,
		fmt.Sprintf(`SELECT id, doc_id, content, embedding, created_at
			FROM %s WHERE doc_id = $1 ORDER BY created_at ASC LIMIT $2`, name),
		docID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing chunks in %s: %w", name, err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.Content, &c.Embedding, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
