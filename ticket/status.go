package ticket

// Status is the lifecycle state of a locate ticket.
type Status string

const (
	StatusDraft               Status = "draft"
	StatusValidPendingConfirm Status = "valid_pending_confirm"
	StatusReady               Status = "ready"
	StatusSubmitted           Status = "submitted"
	StatusInProgress          Status = "in_progress"
	StatusResponsesIn         Status = "responses_in"
	StatusReadyToDig          Status = "ready_to_dig"
	StatusCancelled           Status = "cancelled"
	StatusExpired             Status = "expired"
)

// statusRank orders the forward progression. The side exits (cancelled,
// expired) sit outside the ordering and are validated separately.
var statusRank = map[Status]int{
	StatusDraft:               0,
	StatusValidPendingConfirm: 1,
	StatusReady:               2,
	StatusSubmitted:           3,
	StatusInProgress:          4,
	StatusResponsesIn:         5,
	StatusReadyToDig:          6,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if _, ok := statusRank[s]; ok {
		return true
	}
	return s == StatusCancelled || s == StatusExpired
}

// Terminal reports whether s absorbs all further transitions.
func (s Status) Terminal() bool {
	return s == StatusReadyToDig || s == StatusCancelled || s == StatusExpired
}

// NextFromResponses applies the response-driven progression rule after a
// response upsert. expected and received are the sizes of the ticket's
// expected member set and its deduplicated response set, counted after the
// triggering upsert. The result never moves a ticket backwards and never
// leaves a terminal state.
func NextFromResponses(current Status, expected, received int) Status {
	if current.Terminal() {
		return current
	}

	if expected == 0 {
		// Tickets without a seeded member list predate per-member
		// tracking: the first response completes them outright.
		if received > 0 && current == StatusSubmitted {
			return StatusResponsesIn
		}
		return current
	}

	switch {
	case received == 0:
		return current
	case received < expected:
		return forward(current, StatusInProgress)
	default:
		return forward(current, StatusResponsesIn)
	}
}

func forward(current, candidate Status) Status {
	if statusRank[candidate] > statusRank[current] {
		return candidate
	}
	return current
}
