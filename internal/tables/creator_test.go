package tables

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

// fakeExecer records executed SQL and optionally fails every call.
type fakeExecer struct {
	calls []string
	err   error
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, sql)
	return pgconn.CommandTag{}, f.err
}

func TestCreateVectorTable(t *testing.T) {
	db := &fakeExecer{}
	c := NewCreator(db)

	if err := c.CreateVectorTable(context.Background(), "__acme_001_support_vector_001"); err != nil {
		t.Fatalf("CreateVectorTable: %v", err)
	}

	if len(db.calls) != 3 {
		t.Fatalf("DDL calls = %d, want 3 (table + HNSW + GIN)", len(db.calls))
	}
	if !strings.Contains(db.calls[0], "CREATE TABLE") || !strings.Contains(db.calls[0], "__acme_001_support_vector_001") {
		t.Errorf("first statement is not the table DDL: %q", db.calls[0])
	}
	if !strings.Contains(db.calls[0], "vector(1536)") {
		t.Errorf("table DDL missing embedding column: %q", db.calls[0])
	}
	if !strings.Contains(db.calls[1], "USING hnsw") {
		t.Errorf("second statement is not the HNSW index: %q", db.calls[1])
	}
	if !strings.Contains(db.calls[2], "USING gin") {
		t.Errorf("third statement is not the GIN index: %q", db.calls[2])
	}
}

func TestCreateVectorTableRejectsInvalidName(t *testing.T) {
	db := &fakeExecer{}
	c := NewCreator(db)

	err := c.CreateVectorTable(context.Background(), "invalid_table")
	if err == nil {
		t.Fatal("expected error for invalid name")
	}
	if len(db.calls) != 0 {
		t.Errorf("DDL calls = %d, want 0 before validation passes", len(db.calls))
	}
}

func TestCreateVectorTablePropagatesDDLError(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection refused")}
	c := NewCreator(db)

	err := c.CreateVectorTable(context.Background(), "__acme_001_support_vector_001")
	if err == nil {
		t.Fatal("expected DDL error to propagate")
	}
	if len(db.calls) != 1 {
		t.Errorf("DDL calls = %d, want 1 (no partial-success path)", len(db.calls))
	}
}

func TestCreateHistoriesTable(t *testing.T) {
	db := &fakeExecer{}
	c := NewCreator(db)

	if err := c.CreateHistoriesTable(context.Background(), "__acme_001_support_histories_001"); err != nil {
		t.Fatalf("CreateHistoriesTable: %v", err)
	}

	if len(db.calls) != 3 {
		t.Fatalf("DDL calls = %d, want 3 (table + 2 indexes)", len(db.calls))
	}
	if !strings.Contains(db.calls[1], "session_id") {
		t.Errorf("second statement is not the session_id index: %q", db.calls[1])
	}
	if !strings.Contains(db.calls[2], "created_at") {
		t.Errorf("third statement is not the created_at index: %q", db.calls[2])
	}
}

func TestCreateHistoriesTableRejectsInvalidName(t *testing.T) {
	db := &fakeExecer{}
	c := NewCreator(db)

	if err := c.CreateHistoriesTable(context.Background(), "__acme_001_support_vector"); err == nil {
		t.Fatal("expected error for structurally invalid name")
	}
	if len(db.calls) != 0 {
		t.Errorf("DDL calls = %d, want 0", len(db.calls))
	}
}

// TestDropTableNeverErrors exercises every rejection path plus a
// simulated database failure; DropTable must swallow all of them.
func TestDropTableNeverErrors(t *testing.T) {
	names := []string{
		"",
		"users",
		"clients",
		"crews",
		"kb_documents",
		"NOT_LOWERCASE_vector",
		"bad;name_vector",
		"__" + strings.Repeat("a", 70) + "_vector_001",
		"plain_table_no_marker",
		"__acme_001_support_vector_001",
	}
	for _, name := range names {
		c := NewCreator(&fakeExecer{err: errors.New("boom")})
		// Any panic or returned error would fail compilation/test here;
		// DropTable has no error to return by contract.
		c.DropTable(context.Background(), name)
	}
}

func TestDropTableSkipsSystemTables(t *testing.T) {
	for _, name := range []string{"users", "clients", "crews", "conversations", "kb_documents", "schema_version"} {
		db := &fakeExecer{}
		c := NewCreator(db)
		c.DropTable(context.Background(), name)
		if len(db.calls) != 0 {
			t.Errorf("DropTable(%q) issued %d database calls, want 0", name, len(db.calls))
		}
	}
}

func TestDropTableRequiresBackingTableMarker(t *testing.T) {
	db := &fakeExecer{}
	c := NewCreator(db)
	c.DropTable(context.Background(), "acme_001_support_widgets_001")
	if len(db.calls) != 0 {
		t.Errorf("DropTable without vector/histories marker issued %d calls, want 0", len(db.calls))
	}
}

func TestDropTableRejectsUppercase(t *testing.T) {
	db := &fakeExecer{}
	c := NewCreator(db)
	c.DropTable(context.Background(), "__Acme_Support_vector_001")
	if len(db.calls) != 0 {
		t.Errorf("DropTable with uppercase issued %d calls, want 0", len(db.calls))
	}
}

// Both the new __-prefixed form and legacy unprefixed crew tables are
// droppable; exactly one DROP per valid name.
func TestDropTableAcceptsCrewPatternNames(t *testing.T) {
	for _, name := range []string{
		"__acme_001_support_vector_001",
		"__acme_001_support_histories_001",
		"acme_001_support_vector_001", // legacy, no prefix
		"legacy_histories",
	} {
		db := &fakeExecer{}
		c := NewCreator(db)
		c.DropTable(context.Background(), name)
		if len(db.calls) != 1 {
			t.Errorf("DropTable(%q) issued %d calls, want 1", name, len(db.calls))
			continue
		}
		if !strings.Contains(db.calls[0], "DROP TABLE IF EXISTS "+name) {
			t.Errorf("DropTable(%q) SQL = %q", name, db.calls[0])
		}
	}
}
