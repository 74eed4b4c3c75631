package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"locateflow/member"
	"locateflow/response"
)

const (
	maxResponseAttempts  = 3
	responseRetryBackoff = 25 * time.Millisecond
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type memberRegistry interface {
	Ensure(ctx context.Context, tx pgx.Tx, ticketID, code, displayName string, registeredAt time.Time) (member.Ref, bool, error)
}

type responseStore interface {
	Upsert(ctx context.Context, tx pgx.Tx, params response.UpsertParams) (response.MemberResponse, bool, error)
	Codes(ctx context.Context, tx pgx.Tx, ticketID string) ([]string, error)
}

type auditLog interface {
	Append(ctx context.Context, tx pgx.Tx, ticketID, fromStatus, toStatus string, actor, note *string) error
}

type complianceClock interface {
	LawfulStart(requestedAt time.Time) (time.Time, error)
	ExpiresAt(markedAt time.Time) time.Time
}

type memberDirectory interface {
	GetByCode(ctx context.Context, code string) (member.Profile, error)
}

// Lifecycle owns every mutation of the ticket aggregate. Each operation runs
// as one transaction with the ticket row locked, so the status, the expected
// member set, the response rows, and the audit trail always change together.
type Lifecycle struct {
	pool      TxBeginner
	repo      Repository
	members   memberRegistry
	responses responseStore
	audit     auditLog
	clock     complianceClock
	directory memberDirectory
	idGen     func() string
	now       func() time.Time
}

func NewLifecycle(pool TxBeginner, repo Repository, aud auditLog, clock complianceClock) *Lifecycle {
	return &Lifecycle{
		pool:      pool,
		repo:      repo,
		members:   member.NewRegistry(),
		responses: response.NewRepository(),
		audit:     aud,
		clock:     clock,
		idGen:     func() string { return uuid.NewString() },
		now:       time.Now,
	}
}

func (s *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	s.now = now
	return s
}

func (s *Lifecycle) WithIDGenerator(gen func() string) *Lifecycle {
	s.idGen = gen
	return s
}

// WithDirectory resolves display names for member seeds that carry only a
// code.
func (s *Lifecycle) WithDirectory(d memberDirectory) *Lifecycle {
	s.directory = d
	return s
}

func (s *Lifecycle) WithMemberRegistry(r memberRegistry) *Lifecycle {
	s.members = r
	return s
}

func (s *Lifecycle) WithResponseStore(r responseStore) *Lifecycle {
	s.responses = r
	return s
}

// Create opens a ticket in draft with its expected member list seeded and
// deduplicated by normalized code.
func (s *Lifecycle) Create(ctx context.Context, params CreateParams) (Ticket, error) {
	requestedAt := params.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = s.now()
	}

	now := s.now().UTC()
	refs := make([]member.Ref, 0, len(params.ExpectedMembers))
	for _, seed := range params.ExpectedMembers {
		code := member.NormalizeCode(seed.Code)
		if code == "" {
			return Ticket{}, member.ErrEmptyCode
		}
		name := strings.TrimSpace(seed.DisplayName)
		if name == "" && s.directory != nil {
			profile, err := s.directory.GetByCode(ctx, code)
			switch {
			case err == nil:
				name = profile.Name
			case errors.Is(err, member.ErrNotFound):
				// seed stays nameless
			default:
				return Ticket{}, err
			}
		}
		refs = append(refs, member.Ref{Code: code, DisplayName: name, RegisteredAt: now})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Create(ctx, tx, Ticket{
		ID:              s.idGen(),
		Status:          StatusDraft,
		County:          params.County,
		City:            params.City,
		Address:         params.Address,
		RequestedAt:     requestedAt,
		ExpectedMembers: member.Dedupe(refs),
	})
	if err != nil {
		return Ticket{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Ticket{}, fmt.Errorf("ticket: commit create: %w", err)
	}
	return created, nil
}

// SubmitForValidation moves a draft into the validation queue.
func (s *Lifecycle) SubmitForValidation(ctx context.Context, ticketID string, actor *string) (Ticket, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if t.Status != StatusDraft {
		return Ticket{}, fmt.Errorf("%w: submit for validation from %s", ErrInvalidTransition, t.Status)
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, ticketID, StatusValidPendingConfirm)
	if err != nil {
		return Ticket{}, err
	}
	if err := s.audit.Append(ctx, tx, ticketID, string(t.Status), string(updated.Status), actor, nil); err != nil {
		return Ticket{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Ticket{}, fmt.Errorf("ticket: commit submit for validation: %w", err)
	}
	return updated, nil
}

// ConfirmValidated acknowledges the validated ticket and stamps its lawful
// start date from the compliance clock. A calendar that cannot cover the
// requested year fails the whole operation with no mutation.
func (s *Lifecycle) ConfirmValidated(ctx context.Context, ticketID string, actor *string) (Ticket, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if t.Status != StatusValidPendingConfirm {
		return Ticket{}, fmt.Errorf("%w: confirm validated from %s", ErrInvalidTransition, t.Status)
	}

	lawfulStart, err := s.clock.LawfulStart(t.RequestedAt)
	if err != nil {
		return Ticket{}, err
	}
	if _, err := s.repo.SetLawfulStart(ctx, tx, ticketID, lawfulStart); err != nil {
		return Ticket{}, err
	}
	updated, err := s.repo.UpdateStatus(ctx, tx, ticketID, StatusReady)
	if err != nil {
		return Ticket{}, err
	}
	if err := s.audit.Append(ctx, tx, ticketID, string(t.Status), string(updated.Status), actor, nil); err != nil {
		return Ticket{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Ticket{}, fmt.Errorf("ticket: commit confirm validated: %w", err)
	}
	return updated, nil
}

// MarkSubmitted records that the ticket was filed with the one-call center
// under the given reference.
func (s *Lifecycle) MarkSubmitted(ctx context.Context, ticketID, reference string, actor *string) (Ticket, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if t.Status != StatusReady {
		return Ticket{}, fmt.Errorf("%w: mark submitted from %s", ErrInvalidTransition, t.Status)
	}

	if _, err := s.repo.SetSubmittedRef(ctx, tx, ticketID, reference); err != nil {
		return Ticket{}, err
	}
	updated, err := s.repo.UpdateStatus(ctx, tx, ticketID, StatusSubmitted)
	if err != nil {
		return Ticket{}, err
	}

	var note *string
	if trimmed := strings.TrimSpace(reference); trimmed != "" {
		note = &trimmed
	}
	if err := s.audit.Append(ctx, tx, ticketID, string(t.Status), string(updated.Status), actor, note); err != nil {
		return Ticket{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Ticket{}, fmt.Errorf("ticket: commit mark submitted: %w", err)
	}
	return updated, nil
}

// MarkReadyToDig closes out a fully-responded ticket: every member reported
// and the excavator may proceed.
func (s *Lifecycle) MarkReadyToDig(ctx context.Context, ticketID string, actor *string) (Ticket, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if t.Status == StatusReadyToDig {
		return t, nil
	}
	if t.Status != StatusResponsesIn {
		return Ticket{}, fmt.Errorf("%w: mark ready to dig from %s", ErrInvalidTransition, t.Status)
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, ticketID, StatusReadyToDig)
	if err != nil {
		return Ticket{}, err
	}
	if err := s.audit.Append(ctx, tx, ticketID, string(t.Status), string(updated.Status), actor, nil); err != nil {
		return Ticket{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Ticket{}, fmt.Errorf("ticket: commit mark ready to dig: %w", err)
	}
	return updated, nil
}

// Cancel side-exits the ticket from any non-terminal state. Cancelling an
// already-cancelled ticket is a no-op.
func (s *Lifecycle) Cancel(ctx context.Context, ticketID, reason string, actor *string) (Ticket, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if t.Status == StatusCancelled {
		return t, nil
	}
	if t.Status.Terminal() {
		return Ticket{}, fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, t.Status)
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, ticketID, StatusCancelled)
	if err != nil {
		return Ticket{}, err
	}

	var note *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		note = &trimmed
	}
	if err := s.audit.Append(ctx, tx, ticketID, string(t.Status), string(updated.Status), actor, note); err != nil {
		return Ticket{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Ticket{}, fmt.Errorf("ticket: commit cancel: %w", err)
	}
	return updated, nil
}

// MarkExpired side-exits the ticket once its marking validity window lapsed.
// Terminal states absorb the check: expiring a ticket that is ready to dig,
// cancelled, or already expired is a no-op with no audit entry.
func (s *Lifecycle) MarkExpired(ctx context.Context, ticketID string, actor *string) (Ticket, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if t.Status.Terminal() {
		return t, nil
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, ticketID, StatusExpired)
	if err != nil {
		return Ticket{}, err
	}
	if err := s.audit.Append(ctx, tx, ticketID, string(t.Status), string(updated.Status), actor, nil); err != nil {
		return Ticket{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Ticket{}, fmt.Errorf("ticket: commit mark expired: %w", err)
	}
	return updated, nil
}

// ExpireDue sweeps every non-terminal ticket whose expires_at has lapsed and
// marks it expired. Returns how many tickets were transitioned.
func (s *Lifecycle) ExpireDue(ctx context.Context) (int, error) {
	ids, err := s.repo.ListExpirable(ctx, s.now())
	if err != nil {
		return 0, err
	}

	actor := "expiry-sweep"
	expired := 0
	for _, id := range ids {
		if _, err := s.MarkExpired(ctx, id, &actor); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// RecordResponseParams carries one member's submission.
type RecordResponseParams struct {
	TicketID    string
	MemberCode  string
	MemberName  string
	Status      response.Status
	Facilities  *string
	Comment     *string
	SubmittedBy *string
}

// ResponseResult bundles the refreshed ticket, the stored response, and the
// progress summary derived in the same transaction.
type ResponseResult struct {
	Ticket             Ticket
	Response           response.MemberResponse
	WasCreated         bool
	ExpectedCount      int
	ReceivedCount      int
	PendingMemberCodes []string
}

// RecordResponse is the hot path: member registration, response upsert,
// status recompute, and audit append as one serialized unit per ticket.
// Serialization and deadlock failures retry the whole unit a bounded number
// of times before surfacing ErrConflict.
func (s *Lifecycle) RecordResponse(ctx context.Context, params RecordResponseParams) (ResponseResult, error) {
	if member.NormalizeCode(params.MemberCode) == "" {
		return ResponseResult{}, response.ErrEmptyMemberCode
	}
	if !params.Status.Valid() {
		return ResponseResult{}, response.ErrInvalidStatus
	}

	var (
		res ResponseResult
		err error
	)
	for attempt := 0; attempt < maxResponseAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ResponseResult{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * responseRetryBackoff):
			}
		}
		res, err = s.recordResponseOnce(ctx, params)
		if err == nil || !retryable(err) {
			return res, err
		}
	}
	return ResponseResult{}, fmt.Errorf("%w: %v", ErrConflict, err)
}

func (s *Lifecycle) recordResponseOnce(ctx context.Context, params RecordResponseParams) (ResponseResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ResponseResult{}, fmt.Errorf("ticket: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, params.TicketID)
	if err != nil {
		return ResponseResult{}, err
	}

	ref, added, err := s.members.Ensure(ctx, tx, t.ID, params.MemberCode, params.MemberName, s.now())
	if err != nil {
		return ResponseResult{}, err
	}
	if added {
		t.ExpectedMembers = append(t.ExpectedMembers, ref)
	}

	rec, wasCreated, err := s.responses.Upsert(ctx, tx, response.UpsertParams{
		TicketID:    t.ID,
		MemberCode:  ref.Code,
		MemberName:  params.MemberName,
		Status:      params.Status,
		Facilities:  params.Facilities,
		Comment:     params.Comment,
		SubmittedBy: params.SubmittedBy,
	})
	if err != nil {
		return ResponseResult{}, err
	}

	received, err := s.responses.Codes(ctx, tx, t.ID)
	if err != nil {
		return ResponseResult{}, err
	}

	next := NextFromResponses(t.Status, len(t.ExpectedMembers), len(received))
	if next != t.Status {
		if _, err := s.repo.UpdateStatus(ctx, tx, t.ID, next); err != nil {
			return ResponseResult{}, err
		}
		if next == StatusResponsesIn && t.ExpiresAt == nil {
			if _, err := s.repo.SetExpiry(ctx, tx, t.ID, s.clock.ExpiresAt(s.now())); err != nil {
				return ResponseResult{}, err
			}
		}
		if err := s.audit.Append(ctx, tx, t.ID, string(t.Status), string(next), params.SubmittedBy, nil); err != nil {
			return ResponseResult{}, err
		}
	}

	refreshed, err := s.repo.GetForUpdate(ctx, tx, t.ID)
	if err != nil {
		return ResponseResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ResponseResult{}, fmt.Errorf("ticket: commit record response: %w", err)
	}

	return ResponseResult{
		Ticket:             refreshed,
		Response:           rec,
		WasCreated:         wasCreated,
		ExpectedCount:      len(refreshed.ExpectedMembers),
		ReceivedCount:      len(received),
		PendingMemberCodes: pendingCodes(refreshed.ExpectedMembers, received),
	}, nil
}

// Get returns the ticket by id.
func (s *Lifecycle) Get(ctx context.Context, ticketID string) (Ticket, error) {
	return s.repo.Get(ctx, ticketID)
}

// List returns tickets matching the filters plus the total match count.
func (s *Lifecycle) List(ctx context.Context, filters Filters) ([]Ticket, int, error) {
	return s.repo.List(ctx, filters)
}

// Delete removes the ticket and, through the schema's cascade rules, all of
// its responses and audit entries.
func (s *Lifecycle) Delete(ctx context.Context, ticketID string) error {
	return s.repo.Delete(ctx, ticketID)
}

func pendingCodes(expected []member.Ref, received []string) []string {
	got := make(map[string]struct{}, len(received))
	for _, code := range received {
		got[code] = struct{}{}
	}
	pending := make([]string, 0, len(expected))
	for _, ref := range expected {
		if _, ok := got[ref.Code]; !ok {
			pending = append(pending, ref.Code)
		}
	}
	return pending
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure and deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
