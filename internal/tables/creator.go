package tables

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the slice of pgxpool.Pool the creator needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// systemTables is the hard denylist for DropTable: the fixed relational
// schema plus migration bookkeeping. Enforced independently of the
// __ prefix so the guard holds even for attacker-influenced input.
var systemTables = map[string]bool{
	"users":          true,
	"clients":        true,
	"crews":          true,
	"conversations":  true,
	"kb_documents":   true,
	"schema_version": true,
}

// embeddingDim matches the dimension produced by the processing
// webhook's embedding model.
const embeddingDim = 1536

// Creator issues DDL for crew backing tables.
type Creator struct {
	db     Execer
	logger *slog.Logger
}

// NewCreator wraps a database handle for DDL operations.
func NewCreator(db Execer) *Creator {
	return &Creator{db: db, logger: slog.Default()}
}

// CreateVectorTable validates name and creates the embedding table with
// its HNSW and GIN indexes. All three statements must succeed; a
// failure propagates to the caller, which owns any higher-level
// rollback.
func (c *Creator) CreateVectorTable(ctx context.Context, name string) error {
	if _, err := SanitizeTableName(name); err != nil {
		return fmt.Errorf("refusing vector table DDL: %w", err)
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		doc_id UUID NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d),
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, name, embeddingDim)
	if _, err := c.db.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("creating vector table %s: %w", name, err)
	}

	hnswSQL := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops)`,
		name, name)
	if _, err := c.db.Exec(ctx, hnswSQL); err != nil {
		return fmt.Errorf("creating HNSW index on %s: %w", name, err)
	}

	ginSQL := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_metadata ON %s USING gin (metadata)`,
		name, name)
	if _, err := c.db.Exec(ctx, ginSQL); err != nil {
		return fmt.Errorf("creating GIN index on %s: %w", name, err)
	}

	c.logger.Info("created vector table", "table", name)
	return nil
}

// CreateHistoriesTable validates name and creates the conversation
// histories table with B-tree indexes on session_id and created_at.
func (c *Creator) CreateHistoriesTable(ctx context.Context, name string) error {
	if _, err := SanitizeTableName(name); err != nil {
		return fmt.Errorf("refusing histories table DDL: %w", err)
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, name)
	if _, err := c.db.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("creating histories table %s: %w", name, err)
	}

	sessionSQL := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_session_id ON %s (session_id)`, name, name)
	if _, err := c.db.Exec(ctx, sessionSQL); err != nil {
		return fmt.Errorf("creating session_id index on %s: %w", name, err)
	}

	createdSQL := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at)`, name, name)
	if _, err := c.db.Exec(ctx, createdSQL); err != nil {
		return fmt.Errorf("creating created_at index on %s: %w", name, err)
	}

	c.logger.Info("created histories table", "table", name)
	return nil
}

// DropTable drops a crew backing table by name. It never returns an
// error: deprovisioning must survive a single bad drop, so every
// rejection and every database failure is logged and swallowed.
//
// The checks here deliberately do not call SanitizeTableName. DropTable
// must be safe on input that never passed through the generator,
// including legacy table names without the __ prefix, so it enforces
// its own guards: non-empty, not a system table, [a-z0-9_] only,
// within the identifier limit, and containing the vector or histories
// marker that only crew backing tables carry.
func (c *Creator) DropTable(ctx context.Context, name string) {
	if name == "" {
		c.logger.Warn("drop table skipped: empty table name")
		return
	}
	if systemTables[name] {
		c.logger.Error("drop table refused: system table", "table", name)
		return
	}
	if !identifierChars.MatchString(name) {
		c.logger.Error("drop table refused: invalid characters", "table", name)
		return
	}
	if len(name) > maxIdentifierLen {
		c.logger.Error("drop table refused: name too long", "table", name, "length", len(name))
		return
	}
	if !strings.Contains(name, KindVector) && !strings.Contains(name, KindHistories) {
		c.logger.Error("drop table refused: not a crew backing table", "table", name)
		return
	}

	if _, err := c.db.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", name)); err != nil {
		c.logger.Error("drop table failed", "table", name, "error", err)
		return
	}
	c.logger.Info("dropped table", "table", name)
}
