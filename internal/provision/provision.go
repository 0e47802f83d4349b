// Package provision orchestrates crew lifecycle: record creation plus
// backing-table creation for customer-support crews, deprovisioning,
// and whole-client teardown.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/autocrew/autocrew/internal/storage"
	"github.com/autocrew/autocrew/internal/tables"
)

// ErrInvalidCrewType is returned when a provisioning request names a
// crew type that is not customer_support or lead_generation.
var ErrInvalidCrewType = errors.New("invalid crew type")

// CrewStore abstracts the relational operations provisioning needs.
type CrewStore interface {
	GetClient(ctx context.Context, clientCode string) (storage.Client, error)
	CreateCrew(ctx context.Context, c storage.Crew) error
	GetCrew(ctx context.Context, id string) (storage.Crew, error)
	ListCrewsByClient(ctx context.Context, clientCode string) ([]storage.Crew, error)
	UpdateCrewConfig(ctx context.Context, id string, cfg storage.CrewConfig) error
	DeleteCrew(ctx context.Context, id string) error
	NextTableSeq(ctx context.Context, clientCode string) (int, error)
	DeleteClient(ctx context.Context, clientCode string) error
	DeleteConversationsByClient(ctx context.Context, clientCode string) (int64, error)
}

// TableManager abstracts backing-table DDL.
type TableManager interface {
	CreateVectorTable(ctx context.Context, name string) error
	CreateHistoriesTable(ctx context.Context, name string) error
	DropTable(ctx context.Context, name string)
}

// Provisioner creates and destroys crews and their backing tables.
type Provisioner struct {
	store  CrewStore
	tables TableManager
	logger *slog.Logger
}

func New(store CrewStore, tm TableManager) *Provisioner {
	return &Provisioner{store: store, tables: tm, logger: slog.Default()}
}

// Input describes a crew to provision.
type Input struct {
	ClientCode string
	Name       string
	Type       string // customer_support | lead_generation
	WebhookURL string
	Widget     storage.WidgetSettings
}

// ProvisionCrew inserts the crew record and, for customer-support
// crews, creates the vector and histories tables and records their
// names in the crew config. If table creation fails after the record
// insert, the record is deleted and any created table dropped before
// the error returns, so a partially provisioned crew is never
// observable. Returns the crew and the number of tables created.
func (p *Provisioner) ProvisionCrew(ctx context.Context, in Input) (storage.Crew, int, error) {
	if in.Name == "" {
		return storage.Crew{}, 0, fmt.Errorf("crew name is required")
	}
	if in.Type != tables.TypeCustomerSupport && in.Type != tables.TypeLeadGeneration {
		return storage.Crew{}, 0, fmt.Errorf("unknown crew type %q: %w", in.Type, ErrInvalidCrewType)
	}

	client, err := p.store.GetClient(ctx, in.ClientCode)
	if err != nil {
		return storage.Crew{}, 0, fmt.Errorf("loading client %s: %w", in.ClientCode, err)
	}

	crew := storage.Crew{
		ID:         uuid.New().String(),
		ClientID:   client.ClientCode,
		CrewCode:   generateCrewCode(client.ClientCode),
		Name:       in.Name,
		Type:       in.Type,
		Status:     storage.CrewStatusActive,
		WebhookURL: in.WebhookURL,
		Config:     storage.CrewConfig{Widget: in.Widget},
	}

	if in.Type == tables.TypeCustomerSupport {
		seq, err := p.store.NextTableSeq(ctx, client.ClientCode)
		if err != nil {
			return storage.Crew{}, 0, err
		}
		crew.TableSeq = seq
		crew.Config.VectorTable = tables.VectorTableName(client.ClientCode, in.Type, seq)
		crew.Config.HistoriesTable = tables.HistoriesTableName(client.ClientCode, in.Type, seq)
	}

	if err := p.store.CreateCrew(ctx, crew); err != nil {
		return storage.Crew{}, 0, fmt.Errorf("inserting crew record: %w", err)
	}

	if in.Type != tables.TypeCustomerSupport {
		p.logger.Info("provisioned crew", "crew_id", crew.ID, "type", crew.Type, "tables_created", 0)
		return crew, 0, nil
	}

	// Both tables must exist or neither; creation runs concurrently and
	// any failure triggers the compensating path below.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.tables.CreateVectorTable(gctx, crew.Config.VectorTable) })
	g.Go(func() error { return p.tables.CreateHistoriesTable(gctx, crew.Config.HistoriesTable) })

	if err := g.Wait(); err != nil {
		p.compensate(ctx, crew)
		return storage.Crew{}, 0, fmt.Errorf("creating backing tables: %w", err)
	}

	if err := p.store.UpdateCrewConfig(ctx, crew.ID, crew.Config); err != nil {
		p.compensate(ctx, crew)
		return storage.Crew{}, 0, fmt.Errorf("recording table names: %w", err)
	}

	p.logger.Info("provisioned crew", "crew_id", crew.ID, "type", crew.Type, "tables_created", 2)
	return crew, 2, nil
}

// compensate undoes a half-finished provisioning: drop whatever tables
// exist (tolerant) and remove the crew record.
func (p *Provisioner) compensate(ctx context.Context, crew storage.Crew) {
	if crew.Config.VectorTable != "" {
		p.tables.DropTable(ctx, crew.Config.VectorTable)
	}
	if crew.Config.HistoriesTable != "" {
		p.tables.DropTable(ctx, crew.Config.HistoriesTable)
	}
	if err := p.store.DeleteCrew(ctx, crew.ID); err != nil {
		p.logger.Error("compensating crew delete failed", "crew_id", crew.ID, "error", err)
	}
}

// DeprovisionCrew drops the crew's backing tables (tolerant of
// individual drop failures) and deletes the crew record.
func (p *Provisioner) DeprovisionCrew(ctx context.Context, crewID string) error {
	crew, err := p.store.GetCrew(ctx, crewID)
	if err != nil {
		return fmt.Errorf("loading crew %s: %w", crewID, err)
	}

	if crew.Config.VectorTable != "" {
		p.tables.DropTable(ctx, crew.Config.VectorTable)
	}
	if crew.Config.HistoriesTable != "" {
		p.tables.DropTable(ctx, crew.Config.HistoriesTable)
	}

	if err := p.store.DeleteCrew(ctx, crewID); err != nil {
		return fmt.Errorf("deleting crew record %s: %w", crewID, err)
	}

	p.logger.Info("deprovisioned crew", "crew_id", crewID, "crew_code", crew.CrewCode)
	return nil
}

// TeardownResult reports the outcome of a whole-client deletion.
type TeardownResult struct {
	CrewsDeleted         int   `json:"crewsDeleted"`
	FailedCrewDeletions  int   `json:"failedCrewDeletions"`
	ConversationsDeleted int64 `json:"conversationsDeleted"`
}

// DeleteClient deprovisions every crew owned by the client with
// per-crew error isolation, deletes the client's conversations, then
// the client record. A failing crew does not abort the loop; failures
// are counted and reported.
func (p *Provisioner) DeleteClient(ctx context.Context, clientCode string) (TeardownResult, error) {
	var result TeardownResult

	crews, err := p.store.ListCrewsByClient(ctx, clientCode)
	if err != nil {
		return result, fmt.Errorf("listing crews for %s: %w", clientCode, err)
	}

	for _, crew := range crews {
		if err := p.DeprovisionCrew(ctx, crew.ID); err != nil {
			p.logger.Error("crew deprovisioning failed during client teardown",
				"client", clientCode, "crew_id", crew.ID, "error", err)
			result.FailedCrewDeletions++
			continue
		}
		result.CrewsDeleted++
	}

	deleted, err := p.store.DeleteConversationsByClient(ctx, clientCode)
	if err != nil {
		return result, err
	}
	result.ConversationsDeleted = deleted

	if err := p.store.DeleteClient(ctx, clientCode); err != nil {
		return result, fmt.Errorf("deleting client %s: %w", clientCode, err)
	}

	p.logger.Info("client deleted", "client", clientCode,
		"crews_deleted", result.CrewsDeleted, "failed_crew_deletions", result.FailedCrewDeletions)
	return result, nil
}

// generateCrewCode builds a short stable crew identifier like
// ACME-001-CRW-1A2B3C4D.
func generateCrewCode(clientCode string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("%s-CRW-%s", clientCode, suffix)
}
