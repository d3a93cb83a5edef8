// Package events publishes the engine's fire-and-forget notify-intents.
// Intents are always logged; optionally they are also POSTed to a
// registered webhook per intent type and appended to a redis stream. No
// backend failure ever propagates to the caller: delivery problems
// degrade reach, never scheduler progress.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/partsgrid/parts-exchange/internal/httpclient"
)

const dispatchTimeout = 5 * time.Second

// Publisher fans an intent out to the configured backends.
type Publisher struct {
	source     string
	httpClient *httpclient.Client
	endpoints  map[string]string // intent type -> webhook URL
	rdb        *redis.Client
	stream     string
}

// NewPublisher creates a publisher identified as source in envelopes.
func NewPublisher(source string) *Publisher {
	return &Publisher{
		source: source,
		httpClient: httpclient.NewClient("notify-webhook", dispatchTimeout,
			httpclient.WithRetry(httpclient.RetryConfig{MaxRetries: 0})),
		endpoints: make(map[string]string),
	}
}

// RegisterEndpoint registers a webhook endpoint for an intent type.
func (p *Publisher) RegisterEndpoint(intentType, webhookURL string) {
	p.endpoints[intentType] = webhookURL
}

// WithRedisStream additionally appends every envelope to a redis stream.
func (p *Publisher) WithRedisStream(rdb *redis.Client, stream string) *Publisher {
	p.rdb = rdb
	p.stream = stream
	return p
}

// Publish emits one intent. Always returns nil; failures are logged.
func (p *Publisher) Publish(ctx context.Context, intentType string, data map[string]any) error {
	envelope := Envelope{
		EventID:        "evt_" + uuid.NewString(),
		EventType:      intentType,
		SchemaVersion:  "1.0",
		IdempotencyKey: fmt.Sprintf("%s_%v_%d", intentType, data["request_id"], time.Now().UnixNano()),
		Timestamp:      time.Now().UTC(),
		Source:         p.source,
		Data:           data,
	}

	slog.InfoContext(ctx, "intent_published",
		"event_id", envelope.EventID,
		"event_type", envelope.EventType,
		"request_id", data["request_id"],
	)

	if webhookURL, ok := p.endpoints[intentType]; ok {
		p.sendWebhook(ctx, webhookURL, envelope)
	}
	if p.rdb != nil {
		p.appendStream(ctx, envelope)
	}
	return nil
}

func (p *Publisher) sendWebhook(ctx context.Context, url string, envelope Envelope) {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	err := httpclient.NewRequest(http.MethodPost, url).
		JSON(envelope).
		Header("X-Event-ID", envelope.EventID).
		Header("X-Event-Type", envelope.EventType).
		Context(ctx).
		ExecuteJSON(p.httpClient, nil)
	if err != nil {
		slog.WarnContext(ctx, "webhook_failed",
			"url", url,
			"event_type", envelope.EventType,
			"error", err,
		)
	}
}

func (p *Publisher) appendStream(ctx context.Context, envelope Envelope) {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	payload, err := json.Marshal(envelope)
	if err != nil {
		slog.WarnContext(ctx, "stream_marshal_failed", "event_type", envelope.EventType, "error", err)
		return
	}
	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_id":   envelope.EventID,
			"event_type": envelope.EventType,
			"payload":    payload,
		},
	}).Err()
	if err != nil {
		slog.WarnContext(ctx, "stream_append_failed",
			"stream", p.stream,
			"event_type", envelope.EventType,
			"error", err,
		)
	}
}
