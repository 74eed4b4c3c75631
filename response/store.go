package response

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the read side for consumers outside the lifecycle transaction.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListForTicket returns every response on the ticket in submission order.
func (s *Store) ListForTicket(ctx context.Context, ticketID string) ([]MemberResponse, error) {
	const query = `
		SELECT id, ticket_id, member_code, member_name, status, facilities, comment, submitted_by, created_at, updated_at
		FROM responses
		WHERE ticket_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("response: list for ticket: %w", err)
	}
	defer rows.Close()

	out := make([]MemberResponse, 0, 8)
	for rows.Next() {
		rec, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("response: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("response: iterate: %w", err)
	}
	return out, nil
}
