package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/partsgrid/parts-exchange/internal/model"
	"github.com/partsgrid/parts-exchange/internal/scoring"
	"github.com/partsgrid/parts-exchange/internal/store"
)

// SubmitOffer records an advisor's offer. Reaching the minimum desired
// offer count cancels the pending tier timer and evaluates immediately.
// An offer arriving after evaluation already ran is kept for the audit
// trail but marked NOT_SELECTED on arrival and never re-ranked.
func (e *Engine) SubmitOffer(ctx context.Context, requestID, advisorID string, lineItems []model.OfferLineItem) (model.Offer, error) {
	offer := model.Offer{
		ID:          generateID("off_"),
		RequestID:   requestID,
		AdvisorID:   advisorID,
		LineItems:   lineItems,
		State:       model.OfferStateSubmitted,
		SubmittedAt: time.Now().UTC(),
	}
	if err := validateOffer(offer); err != nil {
		return model.Offer{}, err
	}

	snap := e.settings.Snapshot()

	h := e.handle(requestID)
	h.mu.Lock()
	defer h.mu.Unlock()

	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Offer{}, ErrRequestNotFound
		}
		return model.Offer{}, err
	}

	if !req.WasNotified(advisorID) {
		return model.Offer{}, fmt.Errorf("%w: advisor %s, request %s", ErrAdvisorNotEligible, advisorID, requestID)
	}

	switch req.State {
	case model.RequestStateOpen:
		// Fall through to the live intake path below.
	case model.RequestStateEvaluated:
		// Late arrival: audit-record it, outside the competition.
		now := time.Now().UTC()
		offer.State = model.OfferStateNotSelected
		offer.DecidedAt = &now
		if err := e.store.SaveOffer(ctx, offer); err != nil {
			return model.Offer{}, fmt.Errorf("save late offer: %w", err)
		}
		slog.InfoContext(ctx, "late_offer_recorded",
			"request_id", requestID,
			"offer_id", offer.ID,
			"advisor_id", advisorID,
		)
		return offer, nil
	default:
		return model.Offer{}, fmt.Errorf("%w: request %s is %s", ErrRequestNotOpen, requestID, req.State)
	}

	if err := e.store.SaveOffer(ctx, offer); err != nil {
		return model.Offer{}, fmt.Errorf("save offer: %w", err)
	}

	req.OffersReceived++
	if req.OffersReceived >= snap.MinDesiredOffers {
		// Early termination: enough competition exists, stop waiting out
		// the tier timeout.
		h.cancelTimer()
		e.evaluateLocked(ctx, h, &req, snap)
		return offer, nil
	}

	if err := e.store.UpdateRequest(ctx, req); err != nil {
		return model.Offer{}, fmt.Errorf("update request: %w", err)
	}

	slog.InfoContext(ctx, "offer_received",
		"request_id", requestID,
		"offer_id", offer.ID,
		"advisor_id", advisorID,
		"offers_received", req.OffersReceived,
	)
	return offer, nil
}

func validateOffer(offer model.Offer) error {
	if strings.TrimSpace(offer.AdvisorID) == "" {
		return fmt.Errorf("%w: advisor_id is required", ErrInvalidOffer)
	}
	if len(offer.LineItems) == 0 {
		return fmt.Errorf("%w: at least one line item is required", ErrInvalidOffer)
	}
	for i, li := range offer.LineItems {
		if li.Quantity < 1 {
			return fmt.Errorf("%w: line item %d has non-positive quantity", ErrInvalidOffer, i)
		}
		if li.DeliveryDays < 0 || li.WarrantyMonths < 0 {
			return fmt.Errorf("%w: line item %d has negative delivery or warranty", ErrInvalidOffer, i)
		}
	}
	// Prices must parse now, not at evaluation time.
	if _, err := scoring.Totals(offer); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOffer, err)
	}
	return nil
}
