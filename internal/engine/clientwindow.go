package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/partsgrid/parts-exchange/internal/config"
	"github.com/partsgrid/parts-exchange/internal/events"
	"github.com/partsgrid/parts-exchange/internal/model"
	"github.com/partsgrid/parts-exchange/internal/store"
)

// openClientWindowLocked arms the client decision timer and any reminder
// timers. Caller holds h.mu; the request is already persisted as
// EVALUATED with its deadline.
func (e *Engine) openClientWindowLocked(h *requestHandle, requestID string, snap config.Settings, deadline time.Time) {
	h.armTimer(time.Until(deadline), func(gen uint64) {
		e.handleClientTimer(requestID, gen)
	})

	// Reminders are fire-and-forget and never touch request state, so
	// they live outside the single-state-timer invariant.
	h.cancelReminders()
	for _, offset := range snap.ReminderOffsets {
		fireAt := deadline.Add(-offset)
		wait := time.Until(fireAt)
		if wait <= 0 {
			continue
		}
		h.reminders = append(h.reminders, time.AfterFunc(wait, func() {
			e.sendReminder(requestID, deadline)
		}))
	}
}

// sendReminder emits a client reminder if the request is still awaiting a
// response for the same deadline.
func (e *Engine) sendReminder(requestID string, deadline time.Time) {
	ctx := context.Background()
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil || req.State != model.RequestStateEvaluated {
		return
	}
	if req.ClientResponseDeadline == nil || !req.ClientResponseDeadline.Equal(deadline) {
		return
	}
	_ = e.events.Publish(ctx, events.IntentClientReminder, map[string]any{
		"request_id": requestID,
		"client_id":  req.ClientID,
		"respond_by": deadline.Format(time.RFC3339Nano),
	})
}

// handleClientTimer expires the request when the client never responded.
func (e *Engine) handleClientTimer(requestID string, gen uint64) {
	ctx := context.Background()

	h := e.handle(requestID)
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.consume(gen) {
		return
	}

	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		slog.WarnContext(ctx, "client timer: load request failed", "request_id", requestID, "error", err)
		return
	}
	if req.State != model.RequestStateEvaluated {
		return
	}

	e.expireLocked(ctx, h, &req)
}

// expireLocked moves the winning offer and the request to EXPIRED.
// Non-winning offers stay NOT_SELECTED; there is no reassignment to the
// second-best offer.
func (e *Engine) expireLocked(ctx context.Context, h *requestHandle, req *model.Request) {
	now := time.Now().UTC()

	if winner, err := e.winningOffer(ctx, req.ID); err == nil {
		winner.State = model.OfferStateExpired
		winner.DecidedAt = &now
		if err := e.store.UpdateOffer(ctx, winner); err != nil {
			slog.ErrorContext(ctx, "persist offer expiry failed", "offer_id", winner.ID, "error", err)
		}
	} else {
		slog.ErrorContext(ctx, "expiry: winning offer not found", "request_id", req.ID, "error", err)
	}

	req.State = model.RequestStateExpired
	req.ClosedAt = &now
	if err := e.store.UpdateRequest(ctx, *req); err != nil {
		slog.ErrorContext(ctx, "persist request expiry failed", "request_id", req.ID, "error", err)
		return
	}

	h.cancelReminders()
	e.publish(events.IntentRequestClosed, map[string]any{
		"request_id": req.ID,
		"client_id":  req.ClientID,
		"state":      string(req.State),
		"closed_at":  now.Format(time.RFC3339Nano),
	})
	e.release(req.ID)

	slog.InfoContext(ctx, "request_expired", "request_id", req.ID)
}

// SubmitClientResponse finalizes the request on an explicit client
// decision. Responses after the deadline are rejected with
// ErrResponseTooLate; a deadline that passed before the timer fired is
// applied on the spot, so the caller still sees the expired outcome.
func (e *Engine) SubmitClientResponse(ctx context.Context, requestID string, accept bool) error {
	h := e.handle(requestID)
	h.mu.Lock()
	defer h.mu.Unlock()

	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRequestNotFound
		}
		return err
	}

	switch req.State {
	case model.RequestStateEvaluated:
		// Awaiting the client; continue below.
	case model.RequestStateExpired:
		return ErrResponseTooLate
	default:
		return fmt.Errorf("%w: request %s is %s", ErrRequestNotAwaitingClient, requestID, req.State)
	}

	now := time.Now().UTC()
	if req.ClientResponseDeadline != nil && now.After(*req.ClientResponseDeadline) {
		// Deadline elapsed but the timer has not been consumed yet:
		// expire now so the race resolves exactly once.
		h.cancelTimer()
		e.expireLocked(ctx, h, &req)
		return ErrResponseTooLate
	}

	h.cancelTimer()
	h.cancelReminders()

	winner, err := e.winningOffer(ctx, requestID)
	if err != nil {
		return fmt.Errorf("winning offer: %w", err)
	}

	if accept {
		winner.State = model.OfferStateAccepted
		req.State = model.RequestStateAccepted
	} else {
		winner.State = model.OfferStateRejected
		req.State = model.RequestStateRejected
	}
	winner.DecidedAt = &now
	req.ClosedAt = &now

	if err := e.store.UpdateOffer(ctx, winner); err != nil {
		return fmt.Errorf("persist offer decision: %w", err)
	}
	if err := e.store.UpdateRequest(ctx, req); err != nil {
		return fmt.Errorf("persist request decision: %w", err)
	}

	e.publish(events.IntentRequestClosed, map[string]any{
		"request_id": req.ID,
		"client_id":  req.ClientID,
		"state":      string(req.State),
		"offer_id":   winner.ID,
		"advisor_id": winner.AdvisorID,
		"closed_at":  now.Format(time.RFC3339Nano),
	})
	e.release(req.ID)

	slog.InfoContext(ctx, "client_response_applied",
		"request_id", req.ID,
		"accepted", accept,
		"offer_id", winner.ID,
	)
	return nil
}

// winningOffer finds the single offer in state WINNING for a request.
func (e *Engine) winningOffer(ctx context.Context, requestID string) (model.Offer, error) {
	offers, err := e.store.ListOffersByRequest(ctx, requestID)
	if err != nil {
		return model.Offer{}, err
	}
	for _, o := range offers {
		if o.State == model.OfferStateWinning {
			return o, nil
		}
	}
	return model.Offer{}, store.ErrNotFound
}
