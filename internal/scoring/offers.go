package scoring

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/partsgrid/parts-exchange/internal/config"
	"github.com/partsgrid/parts-exchange/internal/model"
)

// OfferTotals are the per-offer aggregates the ranking normalizes over:
// total price across line items, the slowest delivery, and the weakest
// warranty.
type OfferTotals struct {
	Price        decimal.Decimal
	DeliveryDays int
	Warranty     int
}

// Totals aggregates an offer's line items. Price is quantity-weighted;
// delivery is the maximum (the offer is only complete when the slowest
// item lands); warranty is the minimum.
func Totals(o model.Offer) (OfferTotals, error) {
	var t OfferTotals
	if len(o.LineItems) == 0 {
		return t, fmt.Errorf("offer %s has no line items", o.ID)
	}
	t.Warranty = o.LineItems[0].WarrantyMonths
	for _, li := range o.LineItems {
		unit, err := decimal.NewFromString(li.UnitPrice)
		if err != nil {
			return t, fmt.Errorf("offer %s: parse unit price %q: %w", o.ID, li.UnitPrice, err)
		}
		t.Price = t.Price.Add(unit.Mul(decimal.NewFromInt(int64(li.Quantity))))
		if li.DeliveryDays > t.DeliveryDays {
			t.DeliveryDays = li.DeliveryDays
		}
		if li.WarrantyMonths < t.Warranty {
			t.Warranty = li.WarrantyMonths
		}
	}
	return t, nil
}

// RankOffers scores the offer set with the given weights and returns it
// best first. Price and delivery are scaled low-is-better against the
// set's min/max (a degenerate span scores everyone 1.0); warranty is
// capped at maxWarrantyMonths and scaled high-is-better against the cap.
// Ties break on earlier submission, then offer id.
func RankOffers(offers []model.Offer, w config.OfferWeights, maxWarrantyMonths int) ([]model.RankedOffer, error) {
	if err := validateSum("offer", w.Sum(), w.Price, w.Delivery, w.Warranty); err != nil {
		return nil, err
	}
	if maxWarrantyMonths < 1 {
		return nil, &config.ErrConfigInvalid{Reason: "max warranty months must be >= 1"}
	}
	if len(offers) == 0 {
		return nil, nil
	}

	totals := make([]OfferTotals, len(offers))
	for i, o := range offers {
		t, err := Totals(o)
		if err != nil {
			return nil, err
		}
		totals[i] = t
	}

	minPrice, maxPrice := totals[0].Price, totals[0].Price
	minDelivery, maxDelivery := totals[0].DeliveryDays, totals[0].DeliveryDays
	for _, t := range totals[1:] {
		if t.Price.LessThan(minPrice) {
			minPrice = t.Price
		}
		if t.Price.GreaterThan(maxPrice) {
			maxPrice = t.Price
		}
		if t.DeliveryDays < minDelivery {
			minDelivery = t.DeliveryDays
		}
		if t.DeliveryDays > maxDelivery {
			maxDelivery = t.DeliveryDays
		}
	}
	priceSpan := maxPrice.Sub(minPrice)

	type scored struct {
		offer  model.Offer
		scores model.OfferSubScores
		total  float64
	}
	ranked := make([]scored, len(offers))
	for i, o := range offers {
		t := totals[i]

		priceScore := 1.0
		if !priceSpan.IsZero() {
			priceScore = clamp01(maxPrice.Sub(t.Price).Div(priceSpan).InexactFloat64())
		}
		deliveryScore := 1.0
		if maxDelivery > minDelivery {
			deliveryScore = clamp01(float64(maxDelivery-t.DeliveryDays) / float64(maxDelivery-minDelivery))
		}
		warranty := t.Warranty
		if warranty > maxWarrantyMonths {
			warranty = maxWarrantyMonths
		}
		warrantyScore := clamp01(float64(warranty) / float64(maxWarrantyMonths))

		sub := model.OfferSubScores{Price: priceScore, Delivery: deliveryScore, Warranty: warrantyScore}
		ranked[i] = scored{
			offer:  o,
			scores: sub,
			total:  w.Price*priceScore + w.Delivery*deliveryScore + w.Warranty*warrantyScore,
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].total != ranked[j].total {
			return ranked[i].total > ranked[j].total
		}
		if !ranked[i].offer.SubmittedAt.Equal(ranked[j].offer.SubmittedAt) {
			return ranked[i].offer.SubmittedAt.Before(ranked[j].offer.SubmittedAt)
		}
		return ranked[i].offer.ID < ranked[j].offer.ID
	})

	out := make([]model.RankedOffer, len(ranked))
	for i, s := range ranked {
		out[i] = model.RankedOffer{
			Rank:       i + 1,
			OfferID:    s.offer.ID,
			AdvisorID:  s.offer.AdvisorID,
			TotalScore: s.total,
			Scores:     s.scores,
		}
	}
	return out, nil
}
