// Package tables derives and validates the dynamically named PostgreSQL
// tables that back customer-support crews, and issues the DDL for them.
//
// Table names are derived, never user-supplied, but every name is still
// validated before it reaches DDL: the identifier is the asset being
// protected against SQL injection.
package tables

import (
	"fmt"
	"regexp"
	"strings"
)

// Crew types understood by the platform.
const (
	TypeCustomerSupport = "customer_support"
	TypeLeadGeneration  = "lead_generation"
)

// Backing table kinds.
const (
	KindVector    = "vector"
	KindHistories = "histories"
)

// maxIdentifierLen is the PostgreSQL identifier limit (NAMEDATALEN-1).
const maxIdentifierLen = 63

// tablePattern is the full structural form of a crew backing table:
// __{normalized_client}_{crew_type_short}_{vector|histories}_{3-digit seq}.
var tablePattern = regexp.MustCompile(`^__[a-z0-9][a-z0-9_]*_(vector|histories)_[0-9]{3}$`)

var identifierChars = regexp.MustCompile(`^[a-z0-9_]+$`)

// NormalizeClientCode lowercases a client code and replaces dashes with
// underscores so it can be embedded in a PostgreSQL identifier.
// Idempotent on already-normalized input.
func NormalizeClientCode(code string) string {
	return strings.ReplaceAll(strings.ToLower(code), "-", "_")
}

// CrewTypeShortName maps a crew type to the short token used in table
// names. Unrecognized types fall back to "crew" rather than failing;
// the name still has to pass SanitizeTableName before any DDL runs.
func CrewTypeShortName(crewType string) string {
	switch crewType {
	case TypeCustomerSupport:
		return "support"
	case TypeLeadGeneration:
		return "leadgen"
	default:
		return "crew"
	}
}

// VectorTableName builds the embedding table name for a crew.
func VectorTableName(clientCode, crewType string, seq int) string {
	return buildTableName(clientCode, crewType, KindVector, seq)
}

// HistoriesTableName builds the conversation-histories table name for a crew.
func HistoriesTableName(clientCode, crewType string, seq int) string {
	return buildTableName(clientCode, crewType, KindHistories, seq)
}

func buildTableName(clientCode, crewType, kind string, seq int) string {
	return fmt.Sprintf("__%s_%s_%s_%03d",
		NormalizeClientCode(clientCode), CrewTypeShortName(crewType), kind, seq)
}

// SanitizeTableName validates a candidate table name before it is used
// in DDL. Checks run in order and fail fast; on success the unchanged
// name is returned (validating identity, not a transformer).
func SanitizeTableName(name string) (string, error) {
	if len(name) > maxIdentifierLen {
		return "", fmt.Errorf("table name %q is %d bytes, exceeds PostgreSQL limit of %d", name, len(name), maxIdentifierLen)
	}
	if !strings.HasPrefix(name, "__") {
		return "", fmt.Errorf("invalid table name %q: Must start with __", name)
	}
	if !identifierChars.MatchString(name) {
		return "", fmt.Errorf("Invalid table name format: %q", name)
	}
	if !tablePattern.MatchString(name) {
		return "", fmt.Errorf("table name %q doesn't match expected format __{client}_{type}_{vector|histories}_{seq}", name)
	}
	return name, nil
}
