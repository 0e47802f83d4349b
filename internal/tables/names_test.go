package tables

import (
	"strings"
	"testing"
)

func TestNormalizeClientCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ACME-001", "acme_001"},
		{"acme_001", "acme_001"},
		{"Globex-Corp-42", "globex_corp_42"},
		{"plain", "plain"},
	}
	for _, c := range cases {
		if got := NormalizeClientCode(c.in); got != c.want {
			t.Errorf("NormalizeClientCode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeClientCodeIdempotent(t *testing.T) {
	once := NormalizeClientCode("ACME-001")
	twice := NormalizeClientCode(once)
	if once != twice {
		t.Errorf("normalization not idempotent: %q -> %q", once, twice)
	}
}

func TestCrewTypeShortName(t *testing.T) {
	if got := CrewTypeShortName(TypeCustomerSupport); got != "support" {
		t.Errorf("customer_support = %q, want %q", got, "support")
	}
	if got := CrewTypeShortName(TypeLeadGeneration); got != "leadgen" {
		t.Errorf("lead_generation = %q, want %q", got, "leadgen")
	}
	// Unknown types get the defensive fallback, not an error.
	if got := CrewTypeShortName("something_else"); got != "crew" {
		t.Errorf("unknown type = %q, want %q", got, "crew")
	}
	if got := CrewTypeShortName(""); got != "crew" {
		t.Errorf("empty type = %q, want %q", got, "crew")
	}
}

func TestVectorTableName(t *testing.T) {
	got := VectorTableName("ACME-001", TypeCustomerSupport, 1)
	want := "__acme_001_support_vector_001"
	if got != want {
		t.Errorf("VectorTableName = %q, want %q", got, want)
	}
}

func TestHistoriesTableName(t *testing.T) {
	got := HistoriesTableName("ACME-001", TypeCustomerSupport, 12)
	want := "__acme_001_support_histories_012"
	if got != want {
		t.Errorf("HistoriesTableName = %q, want %q", got, want)
	}
}

// TestSanitizeRoundTrip verifies that every generated name passes
// sanitization and comes back unchanged.
func TestSanitizeRoundTrip(t *testing.T) {
	clients := []string{"ACME-001", "globex", "X-9", "a-b-c-d"}
	types := []string{TypeCustomerSupport, TypeLeadGeneration, "unknown"}

	for _, client := range clients {
		for _, crewType := range types {
			for _, name := range []string{
				VectorTableName(client, crewType, 1),
				HistoriesTableName(client, crewType, 999),
			} {
				got, err := SanitizeTableName(name)
				if err != nil {
					t.Errorf("SanitizeTableName(%q) failed: %v", name, err)
					continue
				}
				if got != name {
					t.Errorf("SanitizeTableName(%q) = %q, want input unchanged", name, got)
				}
			}
		}
	}
}

func TestSanitizeRejectsLongNames(t *testing.T) {
	name := "__" + strings.Repeat("a", 70) + "_vector_001"
	_, err := SanitizeTableName(name)
	if err == nil {
		t.Fatal("expected error for oversized name")
	}
	if !strings.Contains(err.Error(), "exceeds PostgreSQL limit") {
		t.Errorf("error = %q, want mention of PostgreSQL limit", err)
	}
}

// Length is checked first: an oversized name fails on length even when
// it also violates other rules.
func TestSanitizeLengthCheckedFirst(t *testing.T) {
	name := strings.Repeat("A", 80)
	_, err := SanitizeTableName(name)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "exceeds PostgreSQL limit") {
		t.Errorf("error = %q, want length failure before prefix/charset", err)
	}
}

func TestSanitizeRejectsMissingPrefix(t *testing.T) {
	for _, name := range []string{"acme_support_vector_001", "_acme_vector_001", "invalid_table"} {
		_, err := SanitizeTableName(name)
		if err == nil {
			t.Errorf("SanitizeTableName(%q) succeeded, want prefix error", name)
			continue
		}
		if !strings.Contains(err.Error(), "Must start with __") {
			t.Errorf("SanitizeTableName(%q) error = %q, want prefix message", name, err)
		}
	}
}

func TestSanitizeRejectsBadCharacters(t *testing.T) {
	for _, name := range []string{
		"__acme_Support_vector_001",   // uppercase
		"__acme;drop_vector_001",      // injection attempt
		"__acme support_vector_001",   // space
		"__acme-001_support_vector_001", // dash survives only pre-normalization
	} {
		_, err := SanitizeTableName(name)
		if err == nil {
			t.Errorf("SanitizeTableName(%q) succeeded, want charset error", name)
			continue
		}
		if !strings.Contains(err.Error(), "Invalid table name format") {
			t.Errorf("SanitizeTableName(%q) error = %q, want charset message", name, err)
		}
	}
}

func TestSanitizeRejectsWrongStructure(t *testing.T) {
	for _, name := range []string{
		"__acme_001_support_vector",     // missing sequence
		"__acme_001_support_vector_1",   // sequence not 3 digits
		"__acme_001_support_tables_001", // unknown kind
		"__acme_001_support",            // no kind at all
	} {
		_, err := SanitizeTableName(name)
		if err == nil {
			t.Errorf("SanitizeTableName(%q) succeeded, want structure error", name)
			continue
		}
		if !strings.Contains(err.Error(), "doesn't match expected format") {
			t.Errorf("SanitizeTableName(%q) error = %q, want structure message", name, err)
		}
	}
}
