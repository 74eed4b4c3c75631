package ticket

import (
	"time"

	"locateflow/member"
)

// Ticket is the aggregate this package owns. Location attributes are opaque
// strings; the expected member set lives on the row itself so status, member
// set, and legacy summary always change under one lock.
type Ticket struct {
	ID                   string
	Status               Status
	County               string
	City                 string
	Address              string
	RequestedAt          time.Time
	LawfulStartDate      *time.Time
	ExpiresAt            *time.Time
	SubmittedRef         *string
	ExpectedMembers      []member.Ref
	LegacyResponseStatus *string
	LegacyResponseDate   *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// MemberSeed names an expected responder at ticket creation. DisplayName may
// be empty; a configured member directory fills it in when possible.
type MemberSeed struct {
	Code        string
	DisplayName string
}

// CreateParams enumerates the fields accepted when opening a ticket.
type CreateParams struct {
	County          string
	City            string
	Address         string
	RequestedAt     time.Time
	ExpectedMembers []MemberSeed
}

// Filters narrows List results.
type Filters struct {
	Status   Status
	County   string
	Page     int
	PageSize int
}
