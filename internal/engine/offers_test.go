package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/partsgrid/parts-exchange/internal/model"
)

func TestSubmitOfferValidation(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(testSettings(time.Hour, time.Hour, time.Hour, time.Hour), tierOneAdvisor("adv_1"))
	req, err := rig.engine.CreateRequest(ctx, requestParams())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	tests := []struct {
		name      string
		advisorID string
		items     []model.OfferLineItem
	}{
		{"blank advisor", "  ", offerItems("1200.00", 3, 12)},
		{"no line items", "adv_1", nil},
		{"zero quantity", "adv_1", []model.OfferLineItem{{PartName: "p", Quantity: 0, UnitPrice: "10.00"}}},
		{"negative delivery", "adv_1", []model.OfferLineItem{{PartName: "p", Quantity: 1, UnitPrice: "10.00", DeliveryDays: -1}}},
		{"unparseable price", "adv_1", []model.OfferLineItem{{PartName: "p", Quantity: 1, UnitPrice: "cheap"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rig.engine.SubmitOffer(ctx, req.ID, tt.advisorID, tt.items)
			if !errors.Is(err, ErrInvalidOffer) {
				t.Errorf("got %v, want ErrInvalidOffer", err)
			}
		})
	}
}

func TestSubmitOfferGates(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(testSettings(time.Hour, time.Hour, time.Hour, time.Hour), tierOneAdvisor("adv_1"))
	req, err := rig.engine.CreateRequest(ctx, requestParams())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if _, err := rig.engine.SubmitOffer(ctx, "req_missing", "adv_1", offerItems("10.00", 1, 1)); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("unknown request: got %v, want ErrRequestNotFound", err)
	}
	// Never notified for this request at any tier.
	if _, err := rig.engine.SubmitOffer(ctx, req.ID, "adv_stranger", offerItems("10.00", 1, 1)); !errors.Is(err, ErrAdvisorNotEligible) {
		t.Errorf("uninvited advisor: got %v, want ErrAdvisorNotEligible", err)
	}
}

func TestFirstOfferKeepsRequestOpen(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(testSettings(time.Hour, time.Hour, time.Hour, time.Hour),
		tierOneAdvisor("adv_a"), tierOneAdvisor("adv_b"))
	req, err := rig.engine.CreateRequest(ctx, requestParams())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	offer, err := rig.engine.SubmitOffer(ctx, req.ID, "adv_a", offerItems("1200.00", 3, 12))
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if offer.State != model.OfferStateSubmitted {
		t.Errorf("offer state = %s, want SUBMITTED", offer.State)
	}

	cur, _ := rig.store.GetRequest(ctx, req.ID)
	if cur.State != model.RequestStateOpen {
		t.Errorf("request state = %s, want OPEN below the offer minimum", cur.State)
	}
	if cur.OffersReceived != 1 {
		t.Errorf("offers received = %d, want 1", cur.OffersReceived)
	}
}

// Reaching the desired offer count evaluates immediately instead of
// waiting out the tier timer.
func TestReachingOfferMinimumEvaluatesEarly(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(testSettings(time.Hour, time.Hour, time.Hour, time.Hour),
		tierOneAdvisor("adv_a"), tierOneAdvisor("adv_b"))
	req, err := rig.engine.CreateRequest(ctx, requestParams())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if _, err := rig.engine.SubmitOffer(ctx, req.ID, "adv_a", offerItems("50000", 3, 12)); err != nil {
		t.Fatalf("first offer: %v", err)
	}
	cheaper, err := rig.engine.SubmitOffer(ctx, req.ID, "adv_b", offerItems("45000", 5, 6))
	if err != nil {
		t.Fatalf("second offer: %v", err)
	}

	cur, _ := rig.store.GetRequest(ctx, req.ID)
	if cur.State != model.RequestStateEvaluated {
		t.Fatalf("request state = %s, want EVALUATED right after the second offer", cur.State)
	}
	if cur.CurrentTier != 1 {
		t.Errorf("tier = %d, want 1 (no escalation happened)", cur.CurrentTier)
	}
	if cur.EvaluatedAt == nil || cur.ClientResponseDeadline == nil {
		t.Fatal("evaluation timestamps not set")
	}

	// Cheaper-but-slower wins under the default weights.
	winner, err := rig.store.GetOffer(ctx, cheaper.ID)
	if err != nil {
		t.Fatalf("GetOffer: %v", err)
	}
	if winner.State != model.OfferStateWinning {
		t.Errorf("winner state = %s, want WINNING", winner.State)
	}

	ev, err := rig.store.GetEvaluation(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetEvaluation: %v", err)
	}
	if len(ev.RankedOffers) != 2 || ev.RankedOffers[0].OfferID != cheaper.ID {
		t.Errorf("ranking = %+v, want %s first", ev.RankedOffers, cheaper.ID)
	}
	if ev.PriceWeight != 0.5 {
		t.Errorf("recorded price weight = %v, want 0.5", ev.PriceWeight)
	}

	// Exactly one offer may hold WINNING.
	offers, _ := rig.store.ListOffersByRequest(ctx, req.ID)
	winning := 0
	for _, o := range offers {
		if o.State == model.OfferStateWinning {
			winning++
		} else if o.State != model.OfferStateNotSelected {
			t.Errorf("offer %s in state %s after evaluation", o.ID, o.State)
		}
	}
	if winning != 1 {
		t.Errorf("got %d WINNING offers, want exactly 1", winning)
	}
}

// An offer landing after evaluation joins the audit trail as
// NOT_SELECTED and never disturbs the standing ranking.
func TestLateOfferIsRecordedOutsideTheCompetition(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(testSettings(time.Hour, time.Hour, time.Hour, time.Hour),
		tierOneAdvisor("adv_a"), tierOneAdvisor("adv_b"), tierOneAdvisor("adv_c"))
	req, err := rig.engine.CreateRequest(ctx, requestParams())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if _, err := rig.engine.SubmitOffer(ctx, req.ID, "adv_a", offerItems("50000", 3, 12)); err != nil {
		t.Fatalf("first offer: %v", err)
	}
	winner, err := rig.engine.SubmitOffer(ctx, req.ID, "adv_b", offerItems("45000", 5, 6))
	if err != nil {
		t.Fatalf("second offer: %v", err)
	}

	// Even a strictly better late offer stays out of the ranking.
	late, err := rig.engine.SubmitOffer(ctx, req.ID, "adv_c", offerItems("1000", 1, 24))
	if err != nil {
		t.Fatalf("late offer: %v", err)
	}
	if late.State != model.OfferStateNotSelected || late.DecidedAt == nil {
		t.Errorf("late offer = %s decided=%v, want NOT_SELECTED with DecidedAt", late.State, late.DecidedAt)
	}

	cur, _ := rig.store.GetRequest(ctx, req.ID)
	if cur.OffersReceived != 2 {
		t.Errorf("offers received = %d, want 2 (late arrivals do not count)", cur.OffersReceived)
	}
	stillWinning, _ := rig.store.GetOffer(ctx, winner.ID)
	if stillWinning.State != model.OfferStateWinning {
		t.Errorf("original winner state = %s, want WINNING", stillWinning.State)
	}
	ev, _ := rig.store.GetEvaluation(ctx, req.ID)
	if len(ev.RankedOffers) != 2 {
		t.Errorf("ranking grew to %d rows after a late offer", len(ev.RankedOffers))
	}
}

func TestOfferAgainstTerminalRequestIsRejected(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(testSettings(time.Hour, time.Hour, time.Hour, time.Hour),
		tierOneAdvisor("adv_a"), tierOneAdvisor("adv_b"))
	req, err := rig.engine.CreateRequest(ctx, requestParams())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if _, err := rig.engine.SubmitOffer(ctx, req.ID, "adv_a", offerItems("50000", 3, 12)); err != nil {
		t.Fatalf("first offer: %v", err)
	}
	if _, err := rig.engine.SubmitOffer(ctx, req.ID, "adv_b", offerItems("45000", 5, 6)); err != nil {
		t.Fatalf("second offer: %v", err)
	}
	if err := rig.engine.SubmitClientResponse(ctx, req.ID, true); err != nil {
		t.Fatalf("SubmitClientResponse: %v", err)
	}

	_, err = rig.engine.SubmitOffer(ctx, req.ID, "adv_a", offerItems("100.00", 1, 1))
	if !errors.Is(err, ErrRequestNotOpen) {
		t.Errorf("offer against ACCEPTED request: got %v, want ErrRequestNotOpen", err)
	}
}

// An offer already in the store when the tier timer fires satisfies the
// minimum at the fire, even when it arrived one at a time below it.
func TestTierTimerEvaluatesWhenMinimumAlreadyMet(t *testing.T) {
	ctx := context.Background()
	settings := testSettings(time.Hour, time.Hour, time.Hour, time.Hour)
	settings.MinDesiredOffers = 3
	rig := newTestRig(settings, tierOneAdvisor("adv_a"), tierOneAdvisor("adv_b"))
	req, err := rig.engine.CreateRequest(ctx, requestParams())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if _, err := rig.engine.SubmitOffer(ctx, req.ID, "adv_a", offerItems("50000", 3, 12)); err != nil {
		t.Fatalf("first offer: %v", err)
	}
	if _, err := rig.engine.SubmitOffer(ctx, req.ID, "adv_b", offerItems("45000", 5, 6)); err != nil {
		t.Fatalf("second offer: %v", err)
	}

	// Two of three desired offers exist. A fired tier timer on the last
	// tier must evaluate them rather than close the request.
	cur, _ := rig.store.GetRequest(ctx, req.ID)
	cur.CurrentTier = len(settings.Tiers)
	if err := rig.store.UpdateRequest(ctx, cur); err != nil {
		t.Fatalf("UpdateRequest: %v", err)
	}

	h := rig.engine.handle(req.ID)
	h.mu.Lock()
	gen := h.timerGen
	h.mu.Unlock()
	rig.engine.handleTierTimer(req.ID, gen)

	final, _ := rig.store.GetRequest(ctx, req.ID)
	if final.State != model.RequestStateEvaluated {
		t.Errorf("state after last-tier fire = %s, want EVALUATED", final.State)
	}
}
