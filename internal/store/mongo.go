package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/partsgrid/parts-exchange/internal/model"
)

const mongoOpTimeout = 5 * time.Second

// MongoStore keeps requests, offers and evaluations in separate
// collections of one database.
type MongoStore struct {
	requests    *mongo.Collection
	offers      *mongo.Collection
	evaluations *mongo.Collection
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		requests:    db.Collection("requests"),
		offers:      db.Collection("offers"),
		evaluations: db.Collection("evaluations"),
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.requests.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "request_id", Value: 1}}},
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.offers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "offer_id", Value: 1}}},
		{Keys: bson.D{{Key: "request_id", Value: 1}, {Key: "submitted_at", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.evaluations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "request_id", Value: 1}}},
	})
	return err
}

func (s *MongoStore) SaveRequest(ctx context.Context, req model.Request) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	_, err := s.requests.InsertOne(ctx, req)
	return err
}

func (s *MongoStore) GetRequest(ctx context.Context, requestID string) (model.Request, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var req model.Request
	err := s.requests.FindOne(ctx, bson.M{"request_id": requestID}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Request{}, ErrNotFound
		}
		return model.Request{}, err
	}
	return req, nil
}

func (s *MongoStore) UpdateRequest(ctx context.Context, req model.Request) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	result, err := s.requests.ReplaceOne(ctx, bson.M{"request_id": req.ID}, req)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListActiveRequests(ctx context.Context) ([]model.Request, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	filter := bson.M{"state": bson.M{"$in": []model.RequestState{
		model.RequestStateOpen,
		model.RequestStateEvaluated,
	}}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cur, err := s.requests.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var requests []model.Request
	for cur.Next(ctx) {
		var req model.Request
		if err := cur.Decode(&req); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, cur.Err()
}

func (s *MongoStore) SaveOffer(ctx context.Context, offer model.Offer) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	_, err := s.offers.InsertOne(ctx, offer)
	return err
}

func (s *MongoStore) GetOffer(ctx context.Context, offerID string) (model.Offer, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var offer model.Offer
	err := s.offers.FindOne(ctx, bson.M{"offer_id": offerID}).Decode(&offer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Offer{}, ErrNotFound
		}
		return model.Offer{}, err
	}
	return offer, nil
}

func (s *MongoStore) UpdateOffer(ctx context.Context, offer model.Offer) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	result, err := s.offers.ReplaceOne(ctx, bson.M{"offer_id": offer.ID}, offer)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListOffersByRequest(ctx context.Context, requestID string) ([]model.Offer, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}, {Key: "offer_id", Value: 1}})
	cur, err := s.offers.Find(ctx, bson.M{"request_id": requestID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var offers []model.Offer
	for cur.Next(ctx) {
		var offer model.Offer
		if err := cur.Decode(&offer); err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, cur.Err()
}

func (s *MongoStore) SaveEvaluation(ctx context.Context, ev model.Evaluation) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	_, err := s.evaluations.ReplaceOne(ctx, bson.M{"request_id": ev.RequestID}, ev, opts)
	return err
}

func (s *MongoStore) GetEvaluation(ctx context.Context, requestID string) (model.Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var ev model.Evaluation
	err := s.evaluations.FindOne(ctx, bson.M{"request_id": requestID}).Decode(&ev)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Evaluation{}, ErrNotFound
		}
		return model.Evaluation{}, err
	}
	return ev, nil
}

func (s *MongoStore) Close() error {
	// The mongo client is owned by the caller and disconnected there.
	return nil
}
