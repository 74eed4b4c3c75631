package member

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested member does not exist in the directory.
var ErrNotFound = errors.New("member: not found")

// Profile is a utility operator known to the system, independent of any
// ticket. Expected member lists seeded with only a code fall back to the
// directory for the display name.
type Profile struct {
	ID        string
	Code      string
	Name      string
	Active    bool
	CreatedAt time.Time
}

// Directory provides read access to the utility member directory.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory wires a pgxpool-backed directory.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// GetByCode fetches a member profile by its normalized code.
func (d *Directory) GetByCode(ctx context.Context, code string) (Profile, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Profile{}, ErrEmptyCode
	}

	const query = `
		SELECT id, code, name, active, created_at
		FROM members
		WHERE code = $1
	`

	var profile Profile
	err := d.pool.QueryRow(ctx, query, normalized).Scan(
		&profile.ID,
		&profile.Code,
		&profile.Name,
		&profile.Active,
		&profile.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("member: query by code: %w", err)
	}

	return profile, nil
}

// List fetches up to limit member profiles ordered by code.
func (d *Directory) List(ctx context.Context, limit int) ([]Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT id, code, name, active, created_at
		FROM members
		ORDER BY code ASC
		LIMIT $1
	`

	rows, err := d.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("member: list: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0, limit)
	for rows.Next() {
		var profile Profile
		if err := rows.Scan(&profile.ID, &profile.Code, &profile.Name, &profile.Active, &profile.CreatedAt); err != nil {
			return nil, fmt.Errorf("member: scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("member: iterate profiles: %w", err)
	}

	return profiles, nil
}
