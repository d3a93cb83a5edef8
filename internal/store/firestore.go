package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/partsgrid/parts-exchange/internal/model"
)

// FirestoreStore keeps requests, offers and evaluations in three
// collections under one prefix.
type FirestoreStore struct {
	client      *firestore.Client
	requests    string
	offers      string
	evaluations string
}

func NewFirestoreStore(projectID, collectionPrefix string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(context.Background(), projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreStore{
		client:      client,
		requests:    collectionPrefix + "_requests",
		offers:      collectionPrefix + "_offers",
		evaluations: collectionPrefix + "_evaluations",
	}, nil
}

func (s *FirestoreStore) SaveRequest(ctx context.Context, req model.Request) error {
	_, err := s.client.Collection(s.requests).Doc(req.ID).Set(ctx, req)
	if err != nil {
		return fmt.Errorf("save request: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetRequest(ctx context.Context, requestID string) (model.Request, error) {
	doc, err := s.client.Collection(s.requests).Doc(requestID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return model.Request{}, ErrNotFound
		}
		return model.Request{}, fmt.Errorf("get request: %w", err)
	}
	var req model.Request
	if err := doc.DataTo(&req); err != nil {
		return model.Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func (s *FirestoreStore) UpdateRequest(ctx context.Context, req model.Request) error {
	_, err := s.client.Collection(s.requests).Doc(req.ID).Set(ctx, req)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListActiveRequests(ctx context.Context) ([]model.Request, error) {
	query := s.client.Collection(s.requests).
		Where("state", "in", []string{string(model.RequestStateOpen), string(model.RequestStateEvaluated)}).
		OrderBy("created_at", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var requests []model.Request
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate requests: %w", err)
		}
		var req model.Request
		if err := doc.DataTo(&req); err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func (s *FirestoreStore) SaveOffer(ctx context.Context, offer model.Offer) error {
	_, err := s.client.Collection(s.offers).Doc(offer.ID).Set(ctx, offer)
	if err != nil {
		return fmt.Errorf("save offer: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetOffer(ctx context.Context, offerID string) (model.Offer, error) {
	doc, err := s.client.Collection(s.offers).Doc(offerID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return model.Offer{}, ErrNotFound
		}
		return model.Offer{}, fmt.Errorf("get offer: %w", err)
	}
	var offer model.Offer
	if err := doc.DataTo(&offer); err != nil {
		return model.Offer{}, fmt.Errorf("decode offer: %w", err)
	}
	return offer, nil
}

func (s *FirestoreStore) UpdateOffer(ctx context.Context, offer model.Offer) error {
	_, err := s.client.Collection(s.offers).Doc(offer.ID).Set(ctx, offer)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListOffersByRequest(ctx context.Context, requestID string) ([]model.Offer, error) {
	query := s.client.Collection(s.offers).
		Where("request_id", "==", requestID).
		OrderBy("submitted_at", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var offers []model.Offer
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate offers: %w", err)
		}
		var offer model.Offer
		if err := doc.DataTo(&offer); err != nil {
			return nil, fmt.Errorf("decode offer: %w", err)
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func (s *FirestoreStore) SaveEvaluation(ctx context.Context, ev model.Evaluation) error {
	_, err := s.client.Collection(s.evaluations).Doc(ev.RequestID).Set(ctx, ev)
	if err != nil {
		return fmt.Errorf("save evaluation: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetEvaluation(ctx context.Context, requestID string) (model.Evaluation, error) {
	doc, err := s.client.Collection(s.evaluations).Doc(requestID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return model.Evaluation{}, ErrNotFound
		}
		return model.Evaluation{}, fmt.Errorf("get evaluation: %w", err)
	}
	var ev model.Evaluation
	if err := doc.DataTo(&ev); err != nil {
		return model.Evaluation{}, fmt.Errorf("decode evaluation: %w", err)
	}
	return ev, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
