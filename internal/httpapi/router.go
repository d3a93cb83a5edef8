package httpapi

import (
	"net/http"

	"github.com/partsgrid/parts-exchange/internal/engine"
)

func NewRouter(eng *engine.Engine) http.Handler {
	h := NewHandlers(eng)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/requests", h.HandleCreateRequest)
	mux.HandleFunc("GET /v1/requests/{request_id}", h.HandleGetRequest)
	mux.HandleFunc("POST /v1/requests/{request_id}/offers", h.HandleSubmitOffer)
	mux.HandleFunc("POST /v1/requests/{request_id}/response", h.HandleClientResponse)

	mux.HandleFunc("GET /health", handleHealth)

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"parts-exchange-engine"}`))
}
