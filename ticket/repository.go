package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"locateflow/member"
)

var (
	// ErrNotFound is returned when no ticket exists for the identifier.
	ErrNotFound = errors.New("ticket: not found")
	// ErrInvalidTransition signals a manual transition from a status that
	// does not permit it.
	ErrInvalidTransition = errors.New("ticket: invalid status transition")
	// ErrConflict surfaces storage-level contention after bounded retry.
	ErrConflict = errors.New("ticket: concurrent update conflict")
)

// Repository is the data access the lifecycle service requires.
type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, t Ticket) (Ticket, error)
	Get(ctx context.Context, id string) (Ticket, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Ticket, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Ticket, error)
	SetLawfulStart(ctx context.Context, tx pgx.Tx, id string, day time.Time) (Ticket, error)
	SetSubmittedRef(ctx context.Context, tx pgx.Tx, id string, ref string) (Ticket, error)
	SetExpiry(ctx context.Context, tx pgx.Tx, id string, day time.Time) (Ticket, error)
	List(ctx context.Context, filters Filters) ([]Ticket, int, error)
	ListExpirable(ctx context.Context, asOf time.Time) ([]string, error)
	Delete(ctx context.Context, id string) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const ticketColumns = `id, status::text, county, city, address, requested_at, lawful_start_date, expires_at, submitted_ref, expected_members, legacy_response_status, legacy_response_date, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, t Ticket) (Ticket, error) {
	members, err := encodeMembers(t.ExpectedMembers)
	if err != nil {
		return Ticket{}, err
	}

	const query = `
        INSERT INTO tickets (id, status, county, city, address, requested_at, expected_members)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2::ticket_status, $3, $4, $5, $6, $7)
        RETURNING ` + ticketColumns

	row := tx.QueryRow(ctx, query,
		t.ID,
		t.Status,
		t.County,
		t.City,
		t.Address,
		t.RequestedAt,
		members,
	)
	created, err := scanTicket(row)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`

	t, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, fmt.Errorf("ticket: get: %w", err)
	}
	return t, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1 FOR UPDATE`

	t, err := scanTicket(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, fmt.Errorf("ticket: get for update: %w", err)
	}
	return t, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Ticket, error) {
	const query = `
        UPDATE tickets
        SET status = $2::ticket_status, updated_at = now()
        WHERE id = $1
        RETURNING ` + ticketColumns

	t, err := scanTicket(tx.QueryRow(ctx, query, id, status))
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: update status: %w", err)
	}
	return t, nil
}

func (r *PGRepository) SetLawfulStart(ctx context.Context, tx pgx.Tx, id string, day time.Time) (Ticket, error) {
	const query = `
        UPDATE tickets
        SET lawful_start_date = $2, updated_at = now()
        WHERE id = $1
        RETURNING ` + ticketColumns

	t, err := scanTicket(tx.QueryRow(ctx, query, id, day))
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: set lawful start: %w", err)
	}
	return t, nil
}

func (r *PGRepository) SetSubmittedRef(ctx context.Context, tx pgx.Tx, id string, ref string) (Ticket, error) {
	const query = `
        UPDATE tickets
        SET submitted_ref = $2, updated_at = now()
        WHERE id = $1
        RETURNING ` + ticketColumns

	t, err := scanTicket(tx.QueryRow(ctx, query, id, ref))
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: set submitted ref: %w", err)
	}
	return t, nil
}

func (r *PGRepository) SetExpiry(ctx context.Context, tx pgx.Tx, id string, day time.Time) (Ticket, error) {
	const query = `
        UPDATE tickets
        SET expires_at = $2, updated_at = now()
        WHERE id = $1
        RETURNING ` + ticketColumns

	t, err := scanTicket(tx.QueryRow(ctx, query, id, day))
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: set expiry: %w", err)
	}
	return t, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Ticket, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	where := []string{"1=1"}
	args := []any{}

	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d::ticket_status", len(args)+1))
		args = append(args, filters.Status)
	}
	if filters.County != "" {
		where = append(where, fmt.Sprintf("county=$%d", len(args)+1))
		args = append(args, filters.County)
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")

	query := fmt.Sprintf(`SELECT %s FROM tickets%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, whereClause, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ticket: query list: %w", err)
	}
	defer rows.Close()

	list := []Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ticket: scan list row: %w", err)
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ticket: iterate list: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM tickets%s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ticket: count list: %w", err)
	}

	return list, total, nil
}

// ListExpirable returns ids of non-terminal tickets whose marking validity
// window has lapsed as of asOf.
func (r *PGRepository) ListExpirable(ctx context.Context, asOf time.Time) ([]string, error) {
	const query = `
        SELECT id
        FROM tickets
        WHERE expires_at IS NOT NULL
          AND expires_at < $1
          AND status NOT IN ('ready_to_dig', 'cancelled', 'expired')
        ORDER BY expires_at ASC
    `

	rows, err := r.pool.Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("ticket: list expirable: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ticket: scan expirable id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ticket: iterate expirable: %w", err)
	}
	return ids, nil
}

// Delete removes the ticket; responses and audit entries go with it via the
// schema's cascade rules.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ticket: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTicket(row pgx.Row) (Ticket, error) {
	var (
		t   Ticket
		raw []byte
	)
	err := row.Scan(
		&t.ID,
		&t.Status,
		&t.County,
		&t.City,
		&t.Address,
		&t.RequestedAt,
		&t.LawfulStartDate,
		&t.ExpiresAt,
		&t.SubmittedRef,
		&raw,
		&t.LegacyResponseStatus,
		&t.LegacyResponseDate,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return Ticket{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &t.ExpectedMembers); err != nil {
			return Ticket{}, fmt.Errorf("ticket: decode expected members: %w", err)
		}
	}
	return t, nil
}

func encodeMembers(refs []member.Ref) ([]byte, error) {
	if refs == nil {
		refs = []member.Ref{}
	}
	encoded, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("ticket: encode expected members: %w", err)
	}
	return encoded, nil
}
