package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Crew statuses.
const (
	CrewStatusActive   = "active"
	CrewStatusInactive = "inactive"
	CrewStatusError    = "error"
)

// Document statuses. A document is created as "processing" before the
// external webhook is called and must end "indexed", "error", or
// deleted; it is never left in "processing" after its request
// completes.
const (
	DocStatusProcessing = "processing"
	DocStatusIndexed    = "indexed"
	DocStatusError      = "error"
)

// Client is a tenant organization.
type Client struct {
	ID          string
	ClientCode  string // short stable slug, e.g. ACME-001
	CompanyName string
	Plan        string
	Status      string
	CreatedAt   time.Time
}

// Crew is an automation unit belonging to a client.
type Crew struct {
	ID         string
	ClientID   string // references clients.client_code
	CrewCode   string
	Name       string
	Type       string // customer_support | lead_generation
	Status     string
	WebhookURL string
	Config     CrewConfig
	TableSeq   int
	CreatedAt  time.Time
}

// CrewConfig is the typed form of the crews.config JSONB column.
type CrewConfig struct {
	VectorTable     string          `json:"vector_table,omitempty"`
	HistoriesTable  string          `json:"histories_table,omitempty"`
	Widget          WidgetSettings  `json:"widget"`
	SupportContact  SupportContact  `json:"support_contact"`
	ActivationState ActivationState `json:"activation_state"`
}

// SupportContact is where escalated conversations get handed off.
type SupportContact struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// WidgetSettings holds the embeddable chat widget customization.
type WidgetSettings struct {
	PrimaryColor string `json:"primary_color,omitempty"`
	Greeting     string `json:"greeting,omitempty"`
	Position     string `json:"position,omitempty"`
}

// ActivationState tracks the two onboarding flags and their derived
// readiness bit.
type ActivationState struct {
	DocumentsUploaded bool `json:"documents_uploaded"`
	SupportConfigured bool `json:"support_configured"`
	ActivationReady   bool `json:"activation_ready"`
}

// Recompute re-derives ActivationReady from the two source flags.
// ActivationReady is never written directly.
func (a *ActivationState) Recompute() {
	a.ActivationReady = a.DocumentsUploaded && a.SupportConfigured
}

// Document is a knowledge-base document's processing-state metadata.
// DocID doubles as the correlation key with the embedding webhook.
type Document struct {
	DocID        string
	ClientID     string
	CrewID       string
	Filename     string
	FileType     string
	FileSize     int64
	PageCount    int
	ChunkCount   int
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Conversation is a recorded widget session.
type Conversation struct {
	ID        string
	ClientID  string
	CrewID    string
	SessionID string
	StartedAt time.Time
}
