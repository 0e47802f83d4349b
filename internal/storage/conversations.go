package storage

import (
	"context"
	"fmt"
)

func (s *Store) SaveConversation(ctx context.Context, c Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, client_id, crew_id, session_id)
		VALUES ($1, $2, $3, $4)`,
		c.ID, c.ClientID, c.CrewID, c.SessionID,
	)
	if err != nil {
		return fmt.Errorf("saving conversation %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) ListConversationsByCrew(ctx context.Context, crewID string, limit int) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_id, crew_id, session_id, started_at
		FROM conversations WHERE crew_id = $1 ORDER BY started_at DESC LIMIT $2`, crewID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing conversations for crew %s: %w", crewID, err)
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.ClientID, &c.CrewID, &c.SessionID, &c.StartedAt); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}
