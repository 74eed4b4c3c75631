package response

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"locateflow/member"
)

var (
	// ErrInvalidStatus signals a response status outside clear/not_clear.
	ErrInvalidStatus = errors.New("response: invalid response status")
	// ErrEmptyMemberCode signals a member code that normalizes to nothing.
	ErrEmptyMemberCode = errors.New("response: empty member code")
)

// Repository owns the per-(ticket, member) response rows. All writes run
// inside the caller's transaction under the ticket row lock, so the
// select-then-write upsert below cannot race with itself.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Upsert inserts the member's response or overwrites the existing row for the
// same (ticket, normalized code). The second return reports whether a new row
// was created. created_at survives overwrites; updated_at always advances.
// The ticket's legacy summary fields are recomputed from the full response
// set before returning.
func (r *Repository) Upsert(ctx context.Context, tx pgx.Tx, params UpsertParams) (MemberResponse, bool, error) {
	code := member.NormalizeCode(params.MemberCode)
	if code == "" {
		return MemberResponse{}, false, ErrEmptyMemberCode
	}
	if !params.Status.Valid() {
		return MemberResponse{}, false, ErrInvalidStatus
	}

	var existingID string
	err := tx.QueryRow(ctx, `SELECT id FROM responses WHERE ticket_id=$1 AND member_code=$2`, params.TicketID, code).Scan(&existingID)

	var (
		rec        MemberResponse
		wasCreated bool
	)
	switch {
	case err == nil:
		const updateSQL = `
			UPDATE responses
			SET member_name=$2, status=$3, facilities=$4, comment=$5, submitted_by=$6, updated_at=now()
			WHERE id=$1
			RETURNING id, ticket_id, member_code, member_name, status, facilities, comment, submitted_by, created_at, updated_at
		`
		row := tx.QueryRow(ctx, updateSQL, existingID, params.MemberName, params.Status, params.Facilities, params.Comment, params.SubmittedBy)
		if rec, err = scanResponse(row); err != nil {
			return MemberResponse{}, false, fmt.Errorf("response: overwrite: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		const insertSQL = `
			INSERT INTO responses (ticket_id, member_code, member_name, status, facilities, comment, submitted_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, ticket_id, member_code, member_name, status, facilities, comment, submitted_by, created_at, updated_at
		`
		row := tx.QueryRow(ctx, insertSQL, params.TicketID, code, params.MemberName, params.Status, params.Facilities, params.Comment, params.SubmittedBy)
		if rec, err = scanResponse(row); err != nil {
			return MemberResponse{}, false, fmt.Errorf("response: insert: %w", err)
		}
		wasCreated = true
	default:
		return MemberResponse{}, false, fmt.Errorf("response: lookup existing: %w", err)
	}

	if err := r.refreshLegacySummary(ctx, tx, params.TicketID); err != nil {
		return MemberResponse{}, false, err
	}

	return rec, wasCreated, nil
}

// Codes returns the member codes that have responded on the ticket, in
// submission order. Its length is the received count used by status
// computation.
func (r *Repository) Codes(ctx context.Context, tx pgx.Tx, ticketID string) ([]string, error) {
	rows, err := tx.Query(ctx, `SELECT member_code FROM responses WHERE ticket_id=$1 ORDER BY created_at ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("response: list codes: %w", err)
	}
	defer rows.Close()

	codes := make([]string, 0, 8)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("response: scan code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("response: iterate codes: %w", err)
	}
	return codes, nil
}

func (r *Repository) refreshLegacySummary(ctx context.Context, tx pgx.Tx, ticketID string) error {
	rows, err := tx.Query(ctx, `SELECT status, created_at FROM responses WHERE ticket_id=$1`, ticketID)
	if err != nil {
		return fmt.Errorf("response: load summary inputs: %w", err)
	}
	defer rows.Close()

	all := make([]MemberResponse, 0, 8)
	for rows.Next() {
		var rec MemberResponse
		if err := rows.Scan(&rec.Status, &rec.CreatedAt); err != nil {
			return fmt.Errorf("response: scan summary input: %w", err)
		}
		all = append(all, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("response: iterate summary inputs: %w", err)
	}

	summary, latest, ok := SummarizeLegacy(all)
	if !ok {
		return nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tickets
		SET legacy_response_status=$2, legacy_response_date=$3, updated_at=now()
		WHERE id=$1
	`, ticketID, summary, latest); err != nil {
		return fmt.Errorf("response: store legacy summary: %w", err)
	}
	return nil
}

// SummarizeLegacy derives the legacy summary fields from the full response
// set: positive if every response is clear, conditional otherwise, and the
// most recent created_at as the response date. ok is false for an empty set,
// in which case the stored summary is left untouched.
func SummarizeLegacy(all []MemberResponse) (status string, latest time.Time, ok bool) {
	if len(all) == 0 {
		return "", time.Time{}, false
	}
	status = LegacyPositive
	for _, rec := range all {
		if rec.Status != StatusClear {
			status = LegacyConditional
		}
		if rec.CreatedAt.After(latest) {
			latest = rec.CreatedAt
		}
	}
	return status, latest, true
}

func scanResponse(row pgx.Row) (MemberResponse, error) {
	var rec MemberResponse
	return rec, row.Scan(
		&rec.ID,
		&rec.TicketID,
		&rec.MemberCode,
		&rec.MemberName,
		&rec.Status,
		&rec.Facilities,
		&rec.Comment,
		&rec.SubmittedBy,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
}
