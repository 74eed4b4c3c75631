package response

import "time"

// Status is a member's determination on a ticket.
type Status string

const (
	// StatusClear means the member has no facilities in conflict.
	StatusClear Status = "clear"
	// StatusNotClear means facilities are present and marked.
	StatusNotClear Status = "not_clear"
)

// Valid reports whether s is an accepted response status.
func (s Status) Valid() bool {
	return s == StatusClear || s == StatusNotClear
}

// Legacy summary values older dashboard consumers still read off the ticket
// row. "positive" means every response so far is clear; "conditional" means
// at least one response exists and at least one is not clear.
const (
	LegacyPositive    = "positive"
	LegacyConditional = "conditional"
)

// MemberResponse is one member's answer on one ticket. At most one row exists
// per (ticket, member code); re-submissions overwrite it in place.
type MemberResponse struct {
	ID          string
	TicketID    string
	MemberCode  string
	MemberName  string
	Status      Status
	Facilities  *string
	Comment     *string
	SubmittedBy *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpsertParams enumerates the mutable fields written on insert or overwrite.
type UpsertParams struct {
	TicketID    string
	MemberCode  string
	MemberName  string
	Status      Status
	Facilities  *string
	Comment     *string
	SubmittedBy *string
}
