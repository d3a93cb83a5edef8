package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/partsgrid/parts-exchange/internal/config"
	"github.com/partsgrid/parts-exchange/internal/events"
	"github.com/partsgrid/parts-exchange/internal/model"
	"github.com/partsgrid/parts-exchange/internal/scoring"
)

// CreateRequestParams is the request-intake contract.
type CreateRequestParams struct {
	ClientID  string
	Origin    model.Location
	LineItems []model.RequestLineItem
}

// CreateRequest opens a request at tier 1, notifies the tier-1 cohort and
// arms the first escalation timer.
func (e *Engine) CreateRequest(ctx context.Context, params CreateRequestParams) (model.Request, error) {
	if err := validateRequestParams(params); err != nil {
		return model.Request{}, err
	}

	// Snapshot configuration and the advisor pool before entering the
	// critical section.
	snap := e.settings.Snapshot()
	pool := e.advisorPool(ctx)

	now := time.Now().UTC()
	req := model.Request{
		ID:               generateID("req_"),
		ClientID:         params.ClientID,
		Origin:           params.Origin,
		LineItems:        params.LineItems,
		State:            model.RequestStateOpen,
		CurrentTier:      1,
		NotifiedAdvisors: []string{},
		CreatedAt:        now,
		TierEnteredAt:    now,
	}

	tier1 := snap.Tiers[0]
	ranked, err := scoring.RankAdvisors(pool, req.Origin, tier1.MinScore, snap.AdvisorWeights, now)
	if err != nil {
		return model.Request{}, err
	}
	cohort := advisorIDs(ranked)
	req.NotifiedAdvisors = append(req.NotifiedAdvisors, cohort...)

	h := e.handle(req.ID)
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := e.store.SaveRequest(ctx, req); err != nil {
		return model.Request{}, fmt.Errorf("save request: %w", err)
	}

	e.notifyCohort(req.ID, 1, cohort, tier1.Channel)
	e.armTierTimer(h, req.ID, tier1.Wait)

	slog.InfoContext(ctx, "request_created",
		"request_id", req.ID,
		"client_id", req.ClientID,
		"tier", 1,
		"advisors_notified", len(cohort),
	)
	return req, nil
}

func validateRequestParams(params CreateRequestParams) error {
	if strings.TrimSpace(params.ClientID) == "" {
		return fmt.Errorf("%w: client_id is required", ErrInvalidRequest)
	}
	if len(params.LineItems) == 0 {
		return fmt.Errorf("%w: at least one line item is required", ErrInvalidRequest)
	}
	for i, li := range params.LineItems {
		if strings.TrimSpace(li.PartName) == "" {
			return fmt.Errorf("%w: line item %d has no part name", ErrInvalidRequest, i)
		}
		if li.Quantity < 1 {
			return fmt.Errorf("%w: line item %d has non-positive quantity", ErrInvalidRequest, i)
		}
	}
	return nil
}

func (e *Engine) armTierTimer(h *requestHandle, requestID string, wait time.Duration) {
	h.armTimer(wait, func(gen uint64) {
		e.handleTierTimer(requestID, gen)
	})
}

// handleTierTimer runs when a tier escalation timer fires. A stale
// generation means the timer was cancelled or superseded after the fire
// began; the transition is then already someone else's.
func (e *Engine) handleTierTimer(requestID string, gen uint64) {
	ctx := context.Background()

	// External reads happen before the request lock is taken.
	snap := e.settings.Snapshot()
	pool := e.advisorPool(ctx)

	h := e.handle(requestID)
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.consume(gen) {
		return
	}

	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		// The reconciliation sweep re-arms once the store recovers.
		slog.WarnContext(ctx, "tier timer: load request failed", "request_id", requestID, "error", err)
		return
	}
	if req.State != model.RequestStateOpen {
		return
	}

	if req.OffersReceived >= snap.MinDesiredOffers {
		// Enough offers were already stored; evaluate instead of
		// escalating further.
		e.evaluateLocked(ctx, h, &req, snap)
		return
	}

	if req.CurrentTier < len(snap.Tiers) {
		e.escalateLocked(ctx, h, &req, snap, pool)
		return
	}

	// Catch-all tier exhausted.
	if req.OffersReceived == 0 {
		e.closeNoOffersLocked(ctx, &req)
		return
	}
	e.evaluateLocked(ctx, h, &req, snap)
}

// escalateLocked advances req from tier k to k+1, notifying only the
// advisors that became eligible at the lower threshold. Caller holds h.mu.
func (e *Engine) escalateLocked(ctx context.Context, h *requestHandle, req *model.Request, snap config.Settings, pool []model.Advisor) {
	nextTier := req.CurrentTier + 1
	tierCfg := snap.Tiers[nextTier-1]
	now := time.Now().UTC()

	ranked, err := scoring.RankAdvisors(pool, req.Origin, tierCfg.MinScore, snap.AdvisorWeights, now)
	if err != nil {
		// A weight vector that validated at load cannot fail here; a
		// hot-reloaded bad snapshot must not stall escalation.
		slog.ErrorContext(ctx, "advisor ranking failed during escalation", "request_id", req.ID, "error", err)
		ranked = nil
	}

	var cohort []string
	for _, ra := range ranked {
		if !req.WasNotified(ra.AdvisorID) {
			cohort = append(cohort, ra.AdvisorID)
		}
	}

	req.CurrentTier = nextTier
	req.TierEnteredAt = now
	req.NotifiedAdvisors = append(req.NotifiedAdvisors, cohort...)

	if err := e.store.UpdateRequest(ctx, *req); err != nil {
		slog.ErrorContext(ctx, "persist escalation failed", "request_id", req.ID, "error", err)
		return
	}

	e.notifyCohort(req.ID, nextTier, cohort, tierCfg.Channel)
	e.armTierTimer(h, req.ID, tierCfg.Wait)

	slog.InfoContext(ctx, "request_escalated",
		"request_id", req.ID,
		"tier", nextTier,
		"new_advisors_notified", len(cohort),
		"offers_received", req.OffersReceived,
	)
}

// closeNoOffersLocked terminates a request that ran out of tiers without
// a single offer.
func (e *Engine) closeNoOffersLocked(ctx context.Context, req *model.Request) {
	now := time.Now().UTC()
	req.State = model.RequestStateClosedNoOffers
	req.ClosedAt = &now

	if err := e.store.UpdateRequest(ctx, *req); err != nil {
		slog.ErrorContext(ctx, "persist close failed", "request_id", req.ID, "error", err)
		return
	}

	e.publish(events.IntentRequestClosed, map[string]any{
		"request_id": req.ID,
		"client_id":  req.ClientID,
		"state":      string(req.State),
		"closed_at":  now.Format(time.RFC3339Nano),
	})
	e.release(req.ID)

	slog.InfoContext(ctx, "request_closed_no_offers", "request_id", req.ID, "tiers_exhausted", req.CurrentTier)
}

// notifyCohort emits the notify-intent for one tier cohort. Dispatch
// failures degrade reach, never the escalation path.
func (e *Engine) notifyCohort(requestID string, tier int, advisorIDs []string, channel string) {
	if len(advisorIDs) == 0 {
		return
	}
	e.publish(events.IntentNotifyAdvisors, map[string]any{
		"request_id":  requestID,
		"tier":        tier,
		"advisor_ids": advisorIDs,
		"channel":     channel,
	})
}

func advisorIDs(ranked []model.RankedAdvisor) []string {
	ids := make([]string, len(ranked))
	for i, ra := range ranked {
		ids[i] = ra.AdvisorID
	}
	return ids
}
