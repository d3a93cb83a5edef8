package model

import "time"

// RequestState represents the lifecycle state of a parts request.
type RequestState string

const (
	RequestStateOpen           RequestState = "OPEN"
	RequestStateEvaluated      RequestState = "EVALUATED"
	RequestStateClosedNoOffers RequestState = "CLOSED_NO_OFFERS"
	RequestStateAccepted       RequestState = "ACCEPTED"
	RequestStateRejected       RequestState = "REJECTED"
	RequestStateExpired        RequestState = "EXPIRED"
)

// IsTerminal reports whether no further transitions are possible.
func (s RequestState) IsTerminal() bool {
	switch s {
	case RequestStateClosedNoOffers, RequestStateAccepted, RequestStateRejected, RequestStateExpired:
		return true
	}
	return false
}

// OfferState represents the lifecycle state of an advisor's offer.
type OfferState string

const (
	OfferStateSubmitted   OfferState = "SUBMITTED"
	OfferStateWinning     OfferState = "WINNING"
	OfferStateNotSelected OfferState = "NOT_SELECTED"
	OfferStateExpired     OfferState = "EXPIRED"
	OfferStateAccepted    OfferState = "ACCEPTED"
	OfferStateRejected    OfferState = "REJECTED"
)

// Location identifies where a client or advisor operates. Matching is by
// code: same city beats same metro beats same logistics hub.
type Location struct {
	City  string `json:"city" bson:"city" firestore:"city"`
	Metro string `json:"metro" bson:"metro" firestore:"metro"`
	Hub   string `json:"hub" bson:"hub" firestore:"hub"`
}

// RequestLineItem is one part the client is asking for.
type RequestLineItem struct {
	PartName     string `json:"part_name" bson:"part_name" firestore:"part_name"`
	Quantity     int    `json:"quantity" bson:"quantity" firestore:"quantity"`
	VehicleMake  string `json:"vehicle_make" bson:"vehicle_make" firestore:"vehicle_make"`
	VehicleModel string `json:"vehicle_model" bson:"vehicle_model" firestore:"vehicle_model"`
	VehicleYear  int    `json:"vehicle_year,omitempty" bson:"vehicle_year,omitempty" firestore:"vehicle_year,omitempty"`
}

// Request is a parts request escalated through advisor tiers until enough
// offers arrive or the catch-all tier is exhausted.
type Request struct {
	ID        string            `json:"request_id" bson:"request_id" firestore:"request_id"`
	ClientID  string            `json:"client_id" bson:"client_id" firestore:"client_id"`
	Origin    Location          `json:"origin" bson:"origin" firestore:"origin"`
	LineItems []RequestLineItem `json:"line_items" bson:"line_items" firestore:"line_items"`

	State       RequestState `json:"state" bson:"state" firestore:"state"`
	CurrentTier int          `json:"current_tier" bson:"current_tier" firestore:"current_tier"`

	// NotifiedAdvisors is every advisor id notified across all tiers so
	// far. It doubles as the offer-eligibility set.
	NotifiedAdvisors []string `json:"notified_advisors" bson:"notified_advisors" firestore:"notified_advisors"`
	OffersReceived   int      `json:"offers_received" bson:"offers_received" firestore:"offers_received"`

	CreatedAt     time.Time  `json:"created_at" bson:"created_at" firestore:"created_at"`
	TierEnteredAt time.Time  `json:"tier_entered_at" bson:"tier_entered_at" firestore:"tier_entered_at"`
	EvaluatedAt   *time.Time `json:"evaluated_at,omitempty" bson:"evaluated_at,omitempty" firestore:"evaluated_at,omitempty"`

	// ClientResponseDeadline is set once a winning offer is selected and
	// the client decision window opens.
	ClientResponseDeadline *time.Time `json:"client_response_deadline,omitempty" bson:"client_response_deadline,omitempty" firestore:"client_response_deadline,omitempty"`
	ClosedAt               *time.Time `json:"closed_at,omitempty" bson:"closed_at,omitempty" firestore:"closed_at,omitempty"`
}

// WasNotified reports whether the advisor has ever been notified for this
// request, at any tier.
func (r *Request) WasNotified(advisorID string) bool {
	for _, id := range r.NotifiedAdvisors {
		if id == advisorID {
			return true
		}
	}
	return false
}

// OfferLineItem prices one requested line item. UnitPrice is a decimal
// string ("1249.90"), following the money-as-string convention used across
// stores.
type OfferLineItem struct {
	PartName       string `json:"part_name" bson:"part_name" firestore:"part_name"`
	Quantity       int    `json:"quantity" bson:"quantity" firestore:"quantity"`
	UnitPrice      string `json:"unit_price" bson:"unit_price" firestore:"unit_price"`
	WarrantyMonths int    `json:"warranty_months" bson:"warranty_months" firestore:"warranty_months"`
	DeliveryDays   int    `json:"delivery_days" bson:"delivery_days" firestore:"delivery_days"`
}

// Offer is an advisor's priced response to a request.
type Offer struct {
	ID        string          `json:"offer_id" bson:"offer_id" firestore:"offer_id"`
	RequestID string          `json:"request_id" bson:"request_id" firestore:"request_id"`
	AdvisorID string          `json:"advisor_id" bson:"advisor_id" firestore:"advisor_id"`
	LineItems []OfferLineItem `json:"line_items" bson:"line_items" firestore:"line_items"`

	State OfferState `json:"state" bson:"state" firestore:"state"`

	SubmittedAt time.Time  `json:"submitted_at" bson:"submitted_at" firestore:"submitted_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty" bson:"decided_at,omitempty" firestore:"decided_at,omitempty"`
}

// Advisor is a read-only record from the advisor directory. The engine
// never mutates advisors.
type Advisor struct {
	ID       string   `json:"advisor_id" bson:"advisor_id" firestore:"advisor_id"`
	Name     string   `json:"name" bson:"name" firestore:"name"`
	Location Location `json:"location" bson:"location" firestore:"location"`

	// ResponseRate is the fraction of notifications answered inside the
	// configured recent-activity window, already in [0,1].
	ResponseRate float64    `json:"response_rate" bson:"response_rate" firestore:"response_rate"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty" bson:"last_active_at,omitempty" firestore:"last_active_at,omitempty"`

	// PerformanceScore is the award/fulfillment/speed composite over the
	// lookback window, already in [0,1].
	PerformanceScore float64 `json:"performance_score" bson:"performance_score" firestore:"performance_score"`

	// AuditScore is the latest audit result on a 0-5 scale; it counts
	// for nothing once AuditExpiresAt has passed.
	AuditScore     float64    `json:"audit_score" bson:"audit_score" firestore:"audit_score"`
	AuditExpiresAt *time.Time `json:"audit_expires_at,omitempty" bson:"audit_expires_at,omitempty" firestore:"audit_expires_at,omitempty"`

	PreferredChannel string `json:"preferred_channel" bson:"preferred_channel" firestore:"preferred_channel"`
	Enabled          bool   `json:"enabled" bson:"enabled" firestore:"enabled"`
}

// AdvisorSubScores breaks a composite advisor score into its normalized
// components.
type AdvisorSubScores struct {
	Proximity   float64 `json:"proximity"`
	Activity    float64 `json:"activity"`
	Performance float64 `json:"performance"`
	Trust       float64 `json:"trust"`
}

// RankedAdvisor is one row of an advisor ranking pass. Ephemeral: never
// persisted beyond the notification it feeds.
type RankedAdvisor struct {
	Rank       int              `json:"rank"`
	AdvisorID  string           `json:"advisor_id"`
	TotalScore float64          `json:"total_score"`
	Scores     AdvisorSubScores `json:"scores"`
}

// OfferSubScores breaks a composite offer score into its normalized
// components.
type OfferSubScores struct {
	Price    float64 `json:"price" bson:"price" firestore:"price"`
	Delivery float64 `json:"delivery" bson:"delivery" firestore:"delivery"`
	Warranty float64 `json:"warranty" bson:"warranty" firestore:"warranty"`
}

// RankedOffer is one row of an offer evaluation pass.
type RankedOffer struct {
	Rank       int            `json:"rank" bson:"rank" firestore:"rank"`
	OfferID    string         `json:"offer_id" bson:"offer_id" firestore:"offer_id"`
	AdvisorID  string         `json:"advisor_id" bson:"advisor_id" firestore:"advisor_id"`
	TotalScore float64        `json:"total_score" bson:"total_score" firestore:"total_score"`
	Scores     OfferSubScores `json:"scores" bson:"scores" firestore:"scores"`
}

// Evaluation is the persisted audit record of one evaluation pass,
// including the weight vector that produced it. Keeping the full ranking
// means a next-best cascade could be added later without re-ranking.
type Evaluation struct {
	RequestID    string        `json:"request_id" bson:"request_id" firestore:"request_id"`
	RankedOffers []RankedOffer `json:"ranked_offers" bson:"ranked_offers" firestore:"ranked_offers"`
	PriceWeight  float64       `json:"price_weight" bson:"price_weight" firestore:"price_weight"`
	DeliveryWt   float64       `json:"delivery_weight" bson:"delivery_weight" firestore:"delivery_weight"`
	WarrantyWt   float64       `json:"warranty_weight" bson:"warranty_weight" firestore:"warranty_weight"`
	EvaluatedAt  time.Time     `json:"evaluated_at" bson:"evaluated_at" firestore:"evaluated_at"`
}

// RequestSnapshot is the read-only view served to dashboards.
type RequestSnapshot struct {
	Request    Request     `json:"request"`
	Offers     []Offer     `json:"offers"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
}
