package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/partsgrid/parts-exchange/internal/config"
	"github.com/partsgrid/parts-exchange/internal/events"
	"github.com/partsgrid/parts-exchange/internal/model"
	"github.com/partsgrid/parts-exchange/internal/scoring"
)

// evaluateLocked ranks the collected offers, marks the winner and opens
// the client response window. Caller holds h.mu and guarantees at least
// one offer exists (the zero-offer branch goes to CLOSED_NO_OFFERS and
// never reaches here).
func (e *Engine) evaluateLocked(ctx context.Context, h *requestHandle, req *model.Request, snap config.Settings) {
	offers, err := e.store.ListOffersByRequest(ctx, req.ID)
	if err != nil {
		slog.ErrorContext(ctx, "evaluation: list offers failed", "request_id", req.ID, "error", err)
		return
	}

	// Only live submissions compete; late arrivals were already decided.
	competing := offers[:0:0]
	for _, o := range offers {
		if o.State == model.OfferStateSubmitted {
			competing = append(competing, o)
		}
	}
	if len(competing) == 0 {
		slog.ErrorContext(ctx, "evaluation invoked with no competing offers", "request_id", req.ID)
		return
	}

	ranked, err := scoring.RankOffers(competing, snap.OfferWeights, snap.MaxWarrantyMonths)
	if err != nil {
		slog.ErrorContext(ctx, "offer ranking failed", "request_id", req.ID, "error", err)
		return
	}

	now := time.Now().UTC()
	deadline := now.Add(snap.ClientResponseWindow)

	winnerID := ranked[0].OfferID
	var winner model.Offer
	for _, o := range competing {
		if o.ID == winnerID {
			o.State = model.OfferStateWinning
			winner = o
		} else {
			o.State = model.OfferStateNotSelected
			decided := now
			o.DecidedAt = &decided
		}
		if err := e.store.UpdateOffer(ctx, o); err != nil {
			slog.ErrorContext(ctx, "persist offer decision failed", "offer_id", o.ID, "error", err)
			return
		}
	}

	evaluation := model.Evaluation{
		RequestID:    req.ID,
		RankedOffers: ranked,
		PriceWeight:  snap.OfferWeights.Price,
		DeliveryWt:   snap.OfferWeights.Delivery,
		WarrantyWt:   snap.OfferWeights.Warranty,
		EvaluatedAt:  now,
	}
	if err := e.store.SaveEvaluation(ctx, evaluation); err != nil {
		slog.ErrorContext(ctx, "persist evaluation failed", "request_id", req.ID, "error", err)
		return
	}

	req.State = model.RequestStateEvaluated
	req.EvaluatedAt = &now
	req.ClientResponseDeadline = &deadline
	if err := e.store.UpdateRequest(ctx, *req); err != nil {
		slog.ErrorContext(ctx, "persist evaluation transition failed", "request_id", req.ID, "error", err)
		return
	}

	e.publish(events.IntentWinnerSelected, map[string]any{
		"request_id":   req.ID,
		"offer_id":     winnerID,
		"advisor_id":   ranked[0].AdvisorID,
		"total_score":  ranked[0].TotalScore,
		"offer_count":  len(ranked),
		"evaluated_at": now.Format(time.RFC3339Nano),
	})
	e.notifyClient(*req, winner, deadline)
	e.openClientWindowLocked(h, req.ID, snap, deadline)

	slog.InfoContext(ctx, "request_evaluated",
		"request_id", req.ID,
		"winning_offer", winnerID,
		"winning_advisor", ranked[0].AdvisorID,
		"offers_ranked", len(ranked),
		"respond_by", deadline,
	)
}

// notifyClient emits the client notification intent with the winning
// offer's line-item comparison.
func (e *Engine) notifyClient(req model.Request, winner model.Offer, deadline time.Time) {
	data := map[string]any{
		"request_id":       req.ID,
		"client_id":        req.ClientID,
		"winning_offer_id": winner.ID,
		"advisor_id":       winner.AdvisorID,
		"line_items":       winner.LineItems,
		"respond_by":       deadline.Format(time.RFC3339Nano),
	}
	if totals, err := scoring.Totals(winner); err == nil {
		data["total_price"] = totals.Price.StringFixed(2)
		data["delivery_days"] = totals.DeliveryDays
		data["warranty_months"] = totals.Warranty
	}
	e.publish(events.IntentNotifyClient, data)
}
