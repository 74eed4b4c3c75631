package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"locateflow/response"
	"locateflow/ticket"
)

// Responder submits responses for a fixed member code against one ticket,
// flipping between clear and not_clear to exercise the upsert path.
func Responder(ctx context.Context, lc *ticket.Lifecycle, ticketID, code string, stop <-chan struct{}) error {
	statuses := []response.Status{response.StatusClear, response.StatusNotClear}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		comment := fmt.Sprintf("pass %d", rand.Intn(1000))
		_, err := lc.RecordResponse(ctx, ticket.RecordResponseParams{
			TicketID:   ticketID,
			MemberCode: code,
			Status:     statuses[rand.Intn(len(statuses))],
			Comment:    &comment,
		})
		if err != nil && !tolerable(err) {
			return fmt.Errorf("responder %s: %w", code, err)
		}
		time.Sleep(time.Duration(10+rand.Intn(25)) * time.Millisecond)
	}
}

// UnknownResponder submits responses under codes the ticket never expected,
// widening the expected set mid-flight.
func UnknownResponder(ctx context.Context, lc *ticket.Lifecycle, ticketID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		code := fmt.Sprintf("SURPRISE-%d", rand.Intn(4))
		_, err := lc.RecordResponse(ctx, ticket.RecordResponseParams{
			TicketID:   ticketID,
			MemberCode: code,
			MemberName: "Unregistered Utility",
			Status:     response.StatusClear,
		})
		if err != nil && !tolerable(err) {
			return fmt.Errorf("unknown responder: %w", err)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// Walker creates fresh tickets and marches them through the manual
// transitions, racing validation against responses on its own aggregate.
func Walker(ctx context.Context, lc *ticket.Lifecycle, county string, stop <-chan struct{}) error {
	actor := "walker"
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		t, err := lc.Create(ctx, ticket.CreateParams{
			County:  county,
			City:    "Stresston",
			Address: fmt.Sprintf("%d Load Ln", rand.Intn(9999)),
			ExpectedMembers: []ticket.MemberSeed{
				{Code: "WALK-A"},
				{Code: "WALK-B"},
			},
		})
		if err != nil {
			return fmt.Errorf("walker create: %w", err)
		}
		if _, err := lc.SubmitForValidation(ctx, t.ID, &actor); err != nil && !tolerable(err) {
			return fmt.Errorf("walker submit: %w", err)
		}
		if _, err := lc.ConfirmValidated(ctx, t.ID, &actor); err != nil && !tolerable(err) {
			return fmt.Errorf("walker confirm: %w", err)
		}
		if _, err := lc.MarkSubmitted(ctx, t.ID, fmt.Sprintf("OCC-%d", rand.Int63()), &actor); err != nil && !tolerable(err) {
			return fmt.Errorf("walker mark submitted: %w", err)
		}

		for _, code := range []string{"WALK-A", "WALK-B"} {
			if _, err := lc.RecordResponse(ctx, ticket.RecordResponseParams{
				TicketID:   t.ID,
				MemberCode: code,
				Status:     response.StatusClear,
			}); err != nil && !tolerable(err) {
				return fmt.Errorf("walker respond: %w", err)
			}
		}
		if _, err := lc.MarkReadyToDig(ctx, t.ID, &actor); err != nil && !tolerable(err) {
			return fmt.Errorf("walker ready to dig: %w", err)
		}

		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// Canceller creates tickets and cancels them mid-flight, including repeat
// cancels to exercise idempotency.
func Canceller(ctx context.Context, lc *ticket.Lifecycle, county string, stop <-chan struct{}) error {
	actor := "canceller"
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		t, err := lc.Create(ctx, ticket.CreateParams{
			County:  county,
			City:    "Stresston",
			Address: fmt.Sprintf("%d Abort Ave", rand.Intn(9999)),
			ExpectedMembers: []ticket.MemberSeed{
				{Code: "CXL-A"},
			},
		})
		if err != nil {
			return fmt.Errorf("canceller create: %w", err)
		}
		if _, err := lc.Cancel(ctx, t.ID, "scope withdrawn", &actor); err != nil && !tolerable(err) {
			return fmt.Errorf("canceller cancel: %w", err)
		}
		// second cancel must be a no-op
		if _, err := lc.Cancel(ctx, t.ID, "scope withdrawn", &actor); err != nil && !tolerable(err) {
			return fmt.Errorf("canceller repeat cancel: %w", err)
		}

		time.Sleep(time.Duration(100+rand.Intn(150)) * time.Millisecond)
	}
}

// ExpirySweeper periodically runs the lapse sweep.
func ExpirySweeper(ctx context.Context, lc *ticket.Lifecycle, stop <-chan struct{}) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			if _, err := lc.ExpireDue(ctx); err != nil && !tolerable(err) {
				return fmt.Errorf("expiry sweep: %w", err)
			}
		}
	}
}

// tolerable reports errors that are expected under contention or chaos and
// should not fail the run.
func tolerable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, ticket.ErrConflict) ||
		errors.Is(err, ticket.ErrInvalidTransition) ||
		errors.Is(err, ticket.ErrNotFound)
}
