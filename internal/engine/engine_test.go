package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/partsgrid/parts-exchange/internal/config"
	"github.com/partsgrid/parts-exchange/internal/model"
	"github.com/partsgrid/parts-exchange/internal/store"
)

// fakeDirectory serves a fixed advisor pool, or an error.
type fakeDirectory struct {
	mu       sync.Mutex
	advisors []model.Advisor
	err      error
}

func (d *fakeDirectory) ListAdvisors(ctx context.Context) ([]model.Advisor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	out := make([]model.Advisor, len(d.advisors))
	copy(out, d.advisors)
	return out, nil
}

type capturedIntent struct {
	Type string
	Data map[string]any
}

// capturePublisher records every intent for assertions.
type capturePublisher struct {
	mu      sync.Mutex
	intents []capturedIntent
}

func (p *capturePublisher) Publish(ctx context.Context, intentType string, data map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents = append(p.intents, capturedIntent{Type: intentType, Data: data})
	return nil
}

func (p *capturePublisher) byType(intentType string) []capturedIntent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []capturedIntent
	for _, in := range p.intents {
		if in.Type == intentType {
			out = append(out, in)
		}
	}
	return out
}

// testSettings builds settings with advisor weights concentrated on
// proximity, so an advisor's tier is controlled purely by location:
// same city scores 5.0, same metro 3.5, same hub 2.0, no match 0.
func testSettings(waits ...time.Duration) config.Settings {
	thresholds := []float64{4.5, 4.0, 3.5, 0}
	tiers := make([]config.Tier, len(waits))
	for i, w := range waits {
		tiers[i] = config.Tier{MinScore: thresholds[i], Wait: w, Channel: "push"}
	}
	return config.Settings{
		Tiers:                tiers,
		AdvisorWeights:       config.AdvisorWeights{Proximity: 1},
		OfferWeights:         config.OfferWeights{Price: 0.5, Delivery: 0.35, Warranty: 0.15},
		MinDesiredOffers:     2,
		MaxWarrantyMonths:    24,
		ClientResponseWindow: time.Hour,
	}
}

var testOrigin = model.Location{City: "GDL", Metro: "GDL-METRO", Hub: "WEST"}

func tierOneAdvisor(id string) model.Advisor {
	return model.Advisor{ID: id, Name: id, Location: testOrigin, Enabled: true}
}

func tierThreeAdvisor(id string) model.Advisor {
	return model.Advisor{
		ID: id, Name: id, Enabled: true,
		Location: model.Location{City: "ZAP", Metro: "GDL-METRO", Hub: "WEST"},
	}
}

func tierFourAdvisor(id string) model.Advisor {
	return model.Advisor{
		ID: id, Name: id, Enabled: true,
		Location: model.Location{City: "LEO", Metro: "BAJIO", Hub: "WEST"},
	}
}

type testRig struct {
	engine    *Engine
	store     *store.MemoryStore
	directory *fakeDirectory
	events    *capturePublisher
}

func newTestRig(settings config.Settings, advisors ...model.Advisor) *testRig {
	rig := &testRig{
		store:     store.NewMemoryStore(),
		directory: &fakeDirectory{advisors: advisors},
		events:    &capturePublisher{},
	}
	rig.engine = New(rig.store, rig.directory, rig.events, config.Static{S: settings})
	return rig
}

func requestParams() CreateRequestParams {
	return CreateRequestParams{
		ClientID: "cli_1",
		Origin:   testOrigin,
		LineItems: []model.RequestLineItem{
			{PartName: "brake pad set", Quantity: 1, VehicleMake: "Nissan", VehicleModel: "Versa", VehicleYear: 2019},
		},
	}
}

func offerItems(price string, deliveryDays, warrantyMonths int) []model.OfferLineItem {
	return []model.OfferLineItem{
		{PartName: "brake pad set", Quantity: 1, UnitPrice: price, DeliveryDays: deliveryDays, WarrantyMonths: warrantyMonths},
	}
}

// waitFor polls cond until it holds or the deadline lapses.
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func (rig *testRig) waitForState(t *testing.T, requestID string, want model.RequestState) model.Request {
	t.Helper()
	var last model.Request
	waitFor(t, "request "+requestID+" to reach "+string(want), func() bool {
		req, err := rig.store.GetRequest(context.Background(), requestID)
		if err != nil {
			return false
		}
		last = req
		return req.State == want
	})
	return last
}

func TestGetRequestSnapshot(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(testSettings(time.Hour, time.Hour, time.Hour, time.Hour), tierOneAdvisor("adv_1"))

	if _, err := rig.engine.GetRequestSnapshot(ctx, "req_missing"); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("missing request: got %v, want ErrRequestNotFound", err)
	}

	req, err := rig.engine.CreateRequest(ctx, requestParams())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	snap, err := rig.engine.GetRequestSnapshot(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequestSnapshot: %v", err)
	}
	if snap.Request.ID != req.ID || len(snap.Offers) != 0 || snap.Evaluation != nil {
		t.Errorf("fresh snapshot = %+v", snap)
	}

	if _, err := rig.engine.SubmitOffer(ctx, req.ID, "adv_1", offerItems("1200.00", 3, 12)); err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	snap, err = rig.engine.GetRequestSnapshot(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequestSnapshot: %v", err)
	}
	if len(snap.Offers) != 1 {
		t.Errorf("got %d offers in snapshot, want 1", len(snap.Offers))
	}
}
