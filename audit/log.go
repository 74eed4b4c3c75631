package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one recorded status transition. Entries are append-only: nothing
// in this package (or the schema) updates or deletes them.
type Entry struct {
	ID         string
	TicketID   string
	Seq        int
	FromStatus string
	ToStatus   string
	Actor      *string
	Note       *string
	CreatedAt  time.Time
}

// Log records ticket status transitions.
type Log struct {
	pool *pgxpool.Pool
}

func NewLog(pool *pgxpool.Pool) *Log {
	return &Log{pool: pool}
}

// Append writes one transition inside the caller's transaction. The per-ticket
// seq is assigned from the current maximum, which is safe because the caller
// holds the ticket row lock for the whole mutation.
func (l *Log) Append(ctx context.Context, tx pgx.Tx, ticketID, fromStatus, toStatus string, actor, note *string) error {
	const insertSQL = `
		INSERT INTO audit_entries (ticket_id, seq, from_status, to_status, actor, note)
		VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_entries WHERE ticket_id = $1), $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, insertSQL, ticketID, fromStatus, toStatus, actor, note); err != nil {
		return fmt.Errorf("audit: append entry: %w", err)
	}
	return nil
}

// ListForTicket returns the ticket's full transition history, oldest first.
func (l *Log) ListForTicket(ctx context.Context, ticketID string) ([]Entry, error) {
	const query = `
		SELECT id, ticket_id, seq, from_status, to_status, actor, note, created_at
		FROM audit_entries
		WHERE ticket_id = $1
		ORDER BY seq ASC
	`

	rows, err := l.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, 8)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TicketID, &e.Seq, &e.FromStatus, &e.ToStatus, &e.Actor, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate entries: %w", err)
	}
	return entries, nil
}
