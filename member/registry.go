package member

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrEmptyCode signals a member code that normalizes to nothing.
	ErrEmptyCode = errors.New("member: empty member code")
	// ErrTicketNotFound is returned when the owning ticket row is missing.
	ErrTicketNotFound = errors.New("member: ticket not found")
)

// Registry maintains the per-ticket set of members expected to respond. All
// methods operate inside the caller's transaction; the orchestrator is
// responsible for holding the ticket row lock so concurrent registrations of
// different unknown members cannot interleave.
type Registry struct{}

func NewRegistry() *Registry {
	return &Registry{}
}

// Ensure returns the ticket's ref for code, appending a new one with
// registeredAt stamped if the code was previously unknown. The second return
// reports whether a new ref was added. Registration is idempotent: a known
// code returns the existing ref unchanged.
func (r *Registry) Ensure(ctx context.Context, tx pgx.Tx, ticketID, code, displayName string, registeredAt time.Time) (Ref, bool, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Ref{}, false, ErrEmptyCode
	}

	var raw []byte
	if err := tx.QueryRow(ctx, `SELECT expected_members FROM tickets WHERE id=$1`, ticketID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ref{}, false, ErrTicketNotFound
		}
		return Ref{}, false, fmt.Errorf("member: load expected members: %w", err)
	}

	var refs []Ref
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &refs); err != nil {
			return Ref{}, false, fmt.Errorf("member: decode expected members: %w", err)
		}
	}

	for _, ref := range refs {
		if ref.Code == normalized {
			return ref, false, nil
		}
	}

	ref := Ref{
		Code:         normalized,
		DisplayName:  strings.TrimSpace(displayName),
		RegisteredAt: registeredAt.UTC(),
	}
	refs = append(refs, ref)

	encoded, err := json.Marshal(refs)
	if err != nil {
		return Ref{}, false, fmt.Errorf("member: encode expected members: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE tickets SET expected_members=$2, updated_at=now() WHERE id=$1`, ticketID, encoded); err != nil {
		return Ref{}, false, fmt.Errorf("member: store expected members: %w", err)
	}

	return ref, true, nil
}
