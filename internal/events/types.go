package events

import "time"

// Intent types emitted by the engine. Delivery itself (push, SMS,
// WhatsApp) belongs to the notification dispatcher consuming these.
const (
	IntentNotifyAdvisors = "notify_advisors"
	IntentNotifyClient   = "notify_client"
	IntentClientReminder = "client_reminder"
	IntentWinnerSelected = "winner_selected"
	IntentRequestClosed  = "request_closed"
)

// Envelope wraps every published intent.
type Envelope struct {
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	SchemaVersion  string         `json:"schema_version"`
	IdempotencyKey string         `json:"idempotency_key"`
	Timestamp      time.Time      `json:"timestamp"`
	Source         string         `json:"source"`
	Data           map[string]any `json:"data"`
}

// NotifyAdvisorsData is the payload of a notify_advisors intent: one
// advisor cohort for one tier, on that tier's channel.
type NotifyAdvisorsData struct {
	RequestID  string   `json:"request_id"`
	Tier       int      `json:"tier"`
	AdvisorIDs []string `json:"advisor_ids"`
	Channel    string   `json:"channel"`
}

// NotifyClientData carries the winning offer comparison shown to the
// client when the response window opens.
type NotifyClientData struct {
	RequestID      string    `json:"request_id"`
	ClientID       string    `json:"client_id"`
	WinningOfferID string    `json:"winning_offer_id"`
	AdvisorID      string    `json:"advisor_id"`
	TotalPrice     string    `json:"total_price"`
	DeliveryDays   int       `json:"delivery_days"`
	WarrantyMonths int       `json:"warranty_months"`
	RespondBy      time.Time `json:"respond_by"`
}
