// Package store persists requests, offers and evaluation records. Three
// backends: in-memory for development and tests, MongoDB, and Firestore.
package store

import (
	"context"
	"errors"

	"github.com/partsgrid/parts-exchange/internal/model"
)

// ErrNotFound is returned when a request, offer or evaluation does not
// exist in the backend.
var ErrNotFound = errors.New("not found")

// RequestStore persists requests. ListActiveRequests feeds timer recovery
// on restart: it returns every request in a non-terminal state.
type RequestStore interface {
	SaveRequest(ctx context.Context, req model.Request) error
	GetRequest(ctx context.Context, requestID string) (model.Request, error)
	UpdateRequest(ctx context.Context, req model.Request) error
	ListActiveRequests(ctx context.Context) ([]model.Request, error)
}

// OfferStore persists offers keyed by request.
type OfferStore interface {
	SaveOffer(ctx context.Context, offer model.Offer) error
	GetOffer(ctx context.Context, offerID string) (model.Offer, error)
	UpdateOffer(ctx context.Context, offer model.Offer) error
	ListOffersByRequest(ctx context.Context, requestID string) ([]model.Offer, error)
}

// EvaluationStore persists the audit record of each evaluation pass.
type EvaluationStore interface {
	SaveEvaluation(ctx context.Context, ev model.Evaluation) error
	GetEvaluation(ctx context.Context, requestID string) (model.Evaluation, error)
}

// Store is the full persistence surface the engine is wired against.
type Store interface {
	RequestStore
	OfferStore
	EvaluationStore
	Close() error
}
