package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/partsgrid/parts-exchange/internal/config"
	"github.com/partsgrid/parts-exchange/internal/engine"
	"github.com/partsgrid/parts-exchange/internal/model"
	"github.com/partsgrid/parts-exchange/internal/store"
)

type staticDirectory []model.Advisor

func (d staticDirectory) ListAdvisors(ctx context.Context) ([]model.Advisor, error) {
	return d, nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, intentType string, data map[string]any) error {
	return nil
}

func testEngineSettings() config.Settings {
	return config.Settings{
		Tiers: []config.Tier{
			{MinScore: 4.5, Wait: time.Hour, Channel: "push"},
			{MinScore: 0, Wait: time.Hour, Channel: "whatsapp"},
		},
		AdvisorWeights:       config.AdvisorWeights{Proximity: 1},
		OfferWeights:         config.OfferWeights{Price: 0.5, Delivery: 0.35, Warranty: 0.15},
		MinDesiredOffers:     2,
		MaxWarrantyMonths:    24,
		ClientResponseWindow: time.Hour,
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	advisors := staticDirectory{
		{ID: "adv_a", Name: "Taller A", Location: model.Location{City: "GDL"}, Enabled: true},
		{ID: "adv_b", Name: "Taller B", Location: model.Location{City: "GDL"}, Enabled: true},
	}
	eng := engine.New(store.NewMemoryStore(), advisors, noopPublisher{}, config.Static{S: testEngineSettings()})
	srv := httptest.NewServer(NewRouter(eng))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func createRequestBody() map[string]any {
	return map[string]any{
		"client_id": "cli_1",
		"origin":    map[string]string{"city": "GDL", "metro": "GDL-METRO", "hub": "WEST"},
		"line_items": []map[string]any{
			{"part_name": "brake pad set", "quantity": 1, "vehicle_make": "Nissan", "vehicle_model": "Versa", "vehicle_year": 2019},
		},
	}
}

func offerBody(advisorID, price string) map[string]any {
	return map[string]any{
		"advisor_id": advisorID,
		"line_items": []map[string]any{
			{"part_name": "brake pad set", "quantity": 1, "unit_price": price, "delivery_days": 3, "warranty_months": 12},
		},
	}
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/requests", createRequestBody())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	created := decodeBody[model.Request](t, resp)
	if created.ID == "" || created.State != model.RequestStateOpen {
		t.Fatalf("created request = %+v", created)
	}

	offerURL := fmt.Sprintf("%s/v1/requests/%s/offers", srv.URL, created.ID)
	resp = postJSON(t, offerURL, offerBody("adv_a", "1500.00"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first offer status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()
	resp = postJSON(t, offerURL, offerBody("adv_b", "1400.00"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("second offer status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	getResp, err := http.Get(fmt.Sprintf("%s/v1/requests/%s", srv.URL, created.ID))
	if err != nil {
		t.Fatalf("GET request: %v", err)
	}
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getResp.StatusCode)
	}
	snap := decodeBody[model.RequestSnapshot](t, getResp)
	if snap.Request.State != model.RequestStateEvaluated {
		t.Fatalf("state = %s, want EVALUATED after two offers", snap.Request.State)
	}
	if len(snap.Offers) != 2 || snap.Evaluation == nil {
		t.Fatalf("snapshot offers=%d evaluation=%v", len(snap.Offers), snap.Evaluation)
	}

	resp = postJSON(t, fmt.Sprintf("%s/v1/requests/%s/response", srv.URL, created.ID),
		map[string]any{"accept": true, "raw_text": "si, lo quiero"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("response status = %d, want 200", resp.StatusCode)
	}
	applied := decodeBody[map[string]any](t, resp)
	if applied["applied"] != true {
		t.Errorf("response body = %v", applied)
	}

	getResp, _ = http.Get(fmt.Sprintf("%s/v1/requests/%s", srv.URL, created.ID))
	snap = decodeBody[model.RequestSnapshot](t, getResp)
	if snap.Request.State != model.RequestStateAccepted {
		t.Errorf("final state = %s, want ACCEPTED", snap.Request.State)
	}
}

func TestCreateRequestHTTPErrors(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/requests", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}

	body := createRequestBody()
	body["line_items"] = []map[string]any{}
	resp = postJSON(t, srv.URL+"/v1/requests", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("empty line items status = %d, want 422", resp.StatusCode)
	}
}

func TestSubmitOfferHTTPErrors(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/requests/req_missing/offers", offerBody("adv_a", "100.00"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown request status = %d, want 404", resp.StatusCode)
	}

	created := decodeBody[model.Request](t, postJSON(t, srv.URL+"/v1/requests", createRequestBody()))
	offerURL := fmt.Sprintf("%s/v1/requests/%s/offers", srv.URL, created.ID)

	resp = postJSON(t, offerURL, offerBody("adv_stranger", "100.00"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("uninvited advisor status = %d, want 403", resp.StatusCode)
	}

	resp = postJSON(t, offerURL, offerBody("adv_a", "not-a-price"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("bad price status = %d, want 422", resp.StatusCode)
	}
}

func TestClientResponseHTTPErrors(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/requests/req_missing/response", map[string]any{"accept": true})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown request status = %d, want 404", resp.StatusCode)
	}

	created := decodeBody[model.Request](t, postJSON(t, srv.URL+"/v1/requests", createRequestBody()))
	resp = postJSON(t, fmt.Sprintf("%s/v1/requests/%s/response", srv.URL, created.ID), map[string]any{"accept": true})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("response against OPEN request status = %d, want 409", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body := decodeBody[map[string]string](t, resp)
	if resp.StatusCode != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v", resp.StatusCode, body)
	}
}
