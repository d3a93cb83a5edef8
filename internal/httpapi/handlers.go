package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/partsgrid/parts-exchange/internal/engine"
	"github.com/partsgrid/parts-exchange/internal/model"
)

type Handlers struct {
	eng *engine.Engine
}

func NewHandlers(eng *engine.Engine) *Handlers {
	return &Handlers{eng: eng}
}

// HandleCreateRequest handles POST /v1/requests
func (h *Handlers) HandleCreateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		ClientID  string                  `json:"client_id"`
		Origin    model.Location          `json:"origin"`
		LineItems []model.RequestLineItem `json:"line_items"`
	}
	if err := decodeJSON(r, &body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.eng.CreateRequest(ctx, engine.CreateRequestParams{
		ClientID:  body.ClientID,
		Origin:    body.Origin,
		LineItems: body.LineItems,
	})
	if err != nil {
		if errors.Is(err, engine.ErrInvalidRequest) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		slog.ErrorContext(ctx, "create request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, req)
}

// HandleSubmitOffer handles POST /v1/requests/{request_id}/offers
func (h *Handlers) HandleSubmitOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.PathValue("request_id")

	var body struct {
		AdvisorID string                `json:"advisor_id"`
		LineItems []model.OfferLineItem `json:"line_items"`
	}
	if err := decodeJSON(r, &body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	offer, err := h.eng.SubmitOffer(ctx, requestID, body.AdvisorID, body.LineItems)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrRequestNotFound):
			http.Error(w, "request not found", http.StatusNotFound)
		case errors.Is(err, engine.ErrAdvisorNotEligible):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, engine.ErrRequestNotOpen):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, engine.ErrInvalidOffer):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			slog.ErrorContext(ctx, "submit offer failed", "request_id", requestID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, offer)
}

// HandleClientResponse handles POST /v1/requests/{request_id}/response
func (h *Handlers) HandleClientResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.PathValue("request_id")

	// raw_text is carried for audit only; the chat collaborator resolves
	// it to the accept boolean before calling the engine.
	var body struct {
		Accept  bool   `json:"accept"`
		RawText string `json:"raw_text,omitempty"`
	}
	if err := decodeJSON(r, &body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.eng.SubmitClientResponse(ctx, requestID, body.Accept)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrRequestNotFound):
			http.Error(w, "request not found", http.StatusNotFound)
		case errors.Is(err, engine.ErrResponseTooLate):
			http.Error(w, "response arrived after the deadline", http.StatusGone)
		case errors.Is(err, engine.ErrRequestNotAwaitingClient):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			slog.ErrorContext(ctx, "client response failed", "request_id", requestID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"request_id": requestID, "applied": true})
}

// HandleGetRequest handles GET /v1/requests/{request_id}
func (h *Handlers) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.PathValue("request_id")

	snapshot, err := h.eng.GetRequestSnapshot(ctx, requestID)
	if err != nil {
		if errors.Is(err, engine.ErrRequestNotFound) {
			http.Error(w, "request not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "get request failed", "request_id", requestID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	defer r.Body.Close()
	return json.Unmarshal(body, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
