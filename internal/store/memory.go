package store

import (
	"context"
	"sort"
	"sync"

	"github.com/partsgrid/parts-exchange/internal/model"
)

// MemoryStore is an in-memory implementation of Store for development and
// tests.
type MemoryStore struct {
	mu          sync.RWMutex
	requests    map[string]model.Request
	offers      map[string]model.Offer
	evaluations map[string]model.Evaluation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:    make(map[string]model.Request),
		offers:      make(map[string]model.Offer),
		evaluations: make(map[string]model.Evaluation),
	}
}

func (s *MemoryStore) SaveRequest(ctx context.Context, req model.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *MemoryStore) GetRequest(ctx context.Context, requestID string) (model.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[requestID]
	if !ok {
		return model.Request{}, ErrNotFound
	}
	return req, nil
}

func (s *MemoryStore) UpdateRequest(ctx context.Context, req model.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; !ok {
		return ErrNotFound
	}
	s.requests[req.ID] = req
	return nil
}

func (s *MemoryStore) ListActiveRequests(ctx context.Context) ([]model.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []model.Request
	for _, req := range s.requests {
		if !req.State.IsTerminal() {
			active = append(active, req)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

func (s *MemoryStore) SaveOffer(ctx context.Context, offer model.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[offer.ID] = offer
	return nil
}

func (s *MemoryStore) GetOffer(ctx context.Context, offerID string) (model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offer, ok := s.offers[offerID]
	if !ok {
		return model.Offer{}, ErrNotFound
	}
	return offer, nil
}

func (s *MemoryStore) UpdateOffer(ctx context.Context, offer model.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.offers[offer.ID]; !ok {
		return ErrNotFound
	}
	s.offers[offer.ID] = offer
	return nil
}

func (s *MemoryStore) ListOffersByRequest(ctx context.Context, requestID string) ([]model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var offers []model.Offer
	for _, offer := range s.offers {
		if offer.RequestID == requestID {
			offers = append(offers, offer)
		}
	}
	sort.Slice(offers, func(i, j int) bool {
		if !offers[i].SubmittedAt.Equal(offers[j].SubmittedAt) {
			return offers[i].SubmittedAt.Before(offers[j].SubmittedAt)
		}
		return offers[i].ID < offers[j].ID
	})
	return offers, nil
}

func (s *MemoryStore) SaveEvaluation(ctx context.Context, ev model.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluations[ev.RequestID] = ev
	return nil
}

func (s *MemoryStore) GetEvaluation(ctx context.Context, requestID string) (model.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.evaluations[requestID]
	if !ok {
		return model.Evaluation{}, ErrNotFound
	}
	return ev, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
