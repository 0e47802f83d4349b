package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateCrew(ctx context.Context, c Crew) error {
	configJSON, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("marshaling crew config: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO crews (id, client_id, crew_code, name, type, status, webhook_url, config, table_seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.ClientID, c.CrewCode, c.Name, c.Type, c.Status, c.WebhookURL, configJSON, c.TableSeq,
	)
	if err != nil {
		return fmt.Errorf("creating crew %s: %w", c.CrewCode, err)
	}
	return nil
}

func (s *Store) GetCrew(ctx context.Context, id string) (Crew, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, client_id, crew_code, name, type, status, webhook_url, config, table_seq, created_at
		FROM crews WHERE id = $1`, id)
	c, err := scanCrew(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Crew{}, ErrNotFound
	}
	if err != nil {
		return Crew{}, fmt.Errorf("getting crew %s: %w", id, err)
	}
	return c, nil
}

func (s *Store) ListCrewsByClient(ctx context.Context, clientCode string) ([]Crew, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_id, crew_code, name, type, status, webhook_url, config, table_seq, created_at
		FROM crews WHERE client_id = $1 ORDER BY created_at ASC`, clientCode,
	)
	if err != nil {
		return nil, fmt.Errorf("listing crews for %s: %w", clientCode, err)
	}
	defer rows.Close()

	var results []Crew
	for rows.Next() {
		c, err := scanCrew(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func scanCrew(row pgx.Row) (Crew, error) {
	var c Crew
	var configJSON []byte
	if err := row.Scan(&c.ID, &c.ClientID, &c.CrewCode, &c.Name, &c.Type, &c.Status,
		&c.WebhookURL, &configJSON, &c.TableSeq, &c.CreatedAt); err != nil {
		return Crew{}, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &c.Config); err != nil {
			return Crew{}, fmt.Errorf("decoding config for crew %s: %w", c.ID, err)
		}
	}
	return c, nil
}

// UpdateCrewConfig replaces the crew's config blob.
func (s *Store) UpdateCrewConfig(ctx context.Context, id string, cfg CrewConfig) error {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling crew config: %w", err)
	}
	res, err := s.pool.Exec(ctx, `UPDATE crews SET config = $1 WHERE id = $2`, configJSON, id)
	if err != nil {
		return fmt.Errorf("updating config for crew %s: %w", id, err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateCrewStatus(ctx context.Context, id, status string) error {
	res, err := s.pool.Exec(ctx, `UPDATE crews SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("updating status for crew %s: %w", id, err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCrew(ctx context.Context, id string) error {
	res, err := s.pool.Exec(ctx, `DELETE FROM crews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting crew %s: %w", id, err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NextTableSeq allocates the next backing-table sequence number for a
// client. max+1 over all crews (not a live-row count) so sequence
// numbers are never reused while a legacy table might still exist.
func (s *Store) NextTableSeq(ctx context.Context, clientCode string) (int, error) {
	var max int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(table_seq), 0) FROM crews WHERE client_id = $1`, clientCode,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("allocating table sequence for %s: %w", clientCode, err)
	}
	return max + 1, nil
}
