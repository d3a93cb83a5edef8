package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type webhookRecorder struct {
	mu       sync.Mutex
	requests []recordedWebhook
}

type recordedWebhook struct {
	Path     string
	EventID  string
	Type     string
	Envelope Envelope
}

func (r *webhookRecorder) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var env Envelope
		_ = json.NewDecoder(req.Body).Decode(&env)
		r.mu.Lock()
		r.requests = append(r.requests, recordedWebhook{
			Path:     req.URL.Path,
			EventID:  req.Header.Get("X-Event-ID"),
			Type:     req.Header.Get("X-Event-Type"),
			Envelope: env,
		})
		r.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (r *webhookRecorder) all() []recordedWebhook {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedWebhook, len(r.requests))
	copy(out, r.requests)
	return out
}

func TestPublishDeliversRegisteredWebhook(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()

	p := NewPublisher("parts-exchange-engine")
	p.RegisterEndpoint(IntentNotifyAdvisors, srv.URL+"/hooks/advisors")

	err := p.Publish(context.Background(), IntentNotifyAdvisors, map[string]any{
		"request_id":  "req_1",
		"tier":        2,
		"advisor_ids": []string{"adv_1", "adv_2"},
		"channel":     "sms",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("got %d webhook deliveries, want 1", len(got))
	}
	wh := got[0]
	if wh.Path != "/hooks/advisors" {
		t.Errorf("path = %s, want /hooks/advisors", wh.Path)
	}
	if wh.Type != IntentNotifyAdvisors || wh.Envelope.EventType != IntentNotifyAdvisors {
		t.Errorf("event type header=%s envelope=%s, want %s", wh.Type, wh.Envelope.EventType, IntentNotifyAdvisors)
	}
	if !strings.HasPrefix(wh.Envelope.EventID, "evt_") || wh.EventID != wh.Envelope.EventID {
		t.Errorf("event id header=%s envelope=%s, want matching evt_ ids", wh.EventID, wh.Envelope.EventID)
	}
	if wh.Envelope.Source != "parts-exchange-engine" {
		t.Errorf("source = %s, want parts-exchange-engine", wh.Envelope.Source)
	}
	if wh.Envelope.SchemaVersion != "1.0" {
		t.Errorf("schema version = %s, want 1.0", wh.Envelope.SchemaVersion)
	}
	if wh.Envelope.IdempotencyKey == "" || !strings.Contains(wh.Envelope.IdempotencyKey, "req_1") {
		t.Errorf("idempotency key = %q, want one keyed on the request", wh.Envelope.IdempotencyKey)
	}
	if wh.Envelope.Data["request_id"] != "req_1" {
		t.Errorf("data request_id = %v, want req_1", wh.Envelope.Data["request_id"])
	}
}

func TestPublishSkipsUnregisteredIntentTypes(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()

	p := NewPublisher("parts-exchange-engine")
	p.RegisterEndpoint(IntentNotifyClient, srv.URL)

	if err := p.Publish(context.Background(), IntentClientReminder, map[string]any{"request_id": "req_1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := rec.all(); len(got) != 0 {
		t.Errorf("got %d webhook deliveries for an unregistered type, want 0", len(got))
	}
}

// Delivery failures are absorbed; the scheduler calling Publish must
// never see them.
func TestPublishSwallowsWebhookFailures(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(http.StatusInternalServerError))
	defer srv.Close()

	p := NewPublisher("parts-exchange-engine")
	p.RegisterEndpoint(IntentRequestClosed, srv.URL)

	if err := p.Publish(context.Background(), IntentRequestClosed, map[string]any{"request_id": "req_1"}); err != nil {
		t.Errorf("Publish returned %v after a 500, want nil", err)
	}

	p.RegisterEndpoint(IntentRequestClosed, "http://127.0.0.1:1/unreachable")
	if err := p.Publish(context.Background(), IntentRequestClosed, map[string]any{"request_id": "req_2"}); err != nil {
		t.Errorf("Publish returned %v for an unreachable webhook, want nil", err)
	}
}
