package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateClient(ctx context.Context, c Client) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clients (id, client_code, company_name, plan, status)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.ClientCode, c.CompanyName, c.Plan, c.Status,
	)
	if err != nil {
		return fmt.Errorf("creating client %s: %w", c.ClientCode, err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, clientCode string) (Client, error) {
	var c Client
	err := s.pool.QueryRow(ctx, `
		SELECT id, client_code, company_name, plan, status, created_at
		FROM clients WHERE client_code = $1`, clientCode,
	).Scan(&c.ID, &c.ClientCode, &c.CompanyName, &c.Plan, &c.Status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, ErrNotFound
	}
	if err != nil {
		return Client{}, fmt.Errorf("getting client %s: %w", clientCode, err)
	}
	return c, nil
}

func (s *Store) ListClients(ctx context.Context, limit int) ([]Client, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_code, company_name, plan, status, created_at
		FROM clients ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	var results []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.ClientCode, &c.CompanyName, &c.Plan, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (s *Store) DeleteClient(ctx context.Context, clientCode string) error {
	res, err := s.pool.Exec(ctx, `DELETE FROM clients WHERE client_code = $1`, clientCode)
	if err != nil {
		return fmt.Errorf("deleting client %s: %w", clientCode, err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversationsByClient removes all conversation rows for a
// client as part of tenant teardown. Returns the number deleted.
func (s *Store) DeleteConversationsByClient(ctx context.Context, clientCode string) (int64, error) {
	res, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE client_id = $1`, clientCode)
	if err != nil {
		return 0, fmt.Errorf("deleting conversations for %s: %w", clientCode, err)
	}
	return res.RowsAffected(), nil
}
