// Package engine drives a parts request through advisor tiers and offer
// evaluation into a terminal state. Each request is an independent state
// machine: timer fires and external arrivals for the same request are
// serialized through a per-request mutex, while distinct requests proceed
// fully in parallel.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/partsgrid/parts-exchange/internal/config"
	"github.com/partsgrid/parts-exchange/internal/model"
	"github.com/partsgrid/parts-exchange/internal/store"
)

var (
	ErrInvalidRequest           = errors.New("invalid request")
	ErrInvalidOffer             = errors.New("invalid offer")
	ErrRequestNotFound          = errors.New("request not found")
	ErrRequestNotOpen           = errors.New("request is not open")
	ErrRequestNotAwaitingClient = errors.New("request is not awaiting a client response")
	ErrAdvisorNotEligible       = errors.New("advisor was not notified for this request")
	ErrResponseTooLate          = errors.New("client response arrived after the deadline")
)

// Directory is the read-only advisor pool source.
type Directory interface {
	ListAdvisors(ctx context.Context) ([]model.Advisor, error)
}

// IntentPublisher emits fire-and-forget notify-intents.
type IntentPublisher interface {
	Publish(ctx context.Context, intentType string, data map[string]any) error
}

// Engine owns the escalation scheduler, offer intake, evaluation trigger
// and client-response window for every live request.
type Engine struct {
	store     store.Store
	directory Directory
	events    IntentPublisher
	settings  config.Source

	mu      sync.Mutex
	handles map[string]*requestHandle
}

// requestHandle serializes all state transitions for one request and owns
// its single active timer. timerGen is the single-fire guard: arming or
// cancelling bumps the generation, and a fired callback whose generation
// is stale does nothing.
type requestHandle struct {
	mu sync.Mutex

	timer      *time.Timer
	timerGen   uint64
	timerArmed bool

	reminders []*time.Timer
}

func New(st store.Store, directory Directory, events IntentPublisher, settings config.Source) *Engine {
	return &Engine{
		store:     st,
		directory: directory,
		events:    events,
		settings:  settings,
		handles:   make(map[string]*requestHandle),
	}
}

// handle returns the per-request handle, creating it on first use.
func (e *Engine) handle(requestID string) *requestHandle {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.handles[requestID]
	if !ok {
		h = &requestHandle{}
		e.handles[requestID] = h
	}
	return h
}

// release drops the handle of a request that reached a terminal state.
func (e *Engine) release(requestID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handles, requestID)
}

// armTimer schedules fire to run after d, replacing any pending timer.
// Caller must hold h.mu. The callback receives the generation it was
// armed with and must re-check it under h.mu before acting.
func (h *requestHandle) armTimer(d time.Duration, fire func(gen uint64)) {
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timerGen++
	h.timerArmed = true
	gen := h.timerGen
	if d < 0 {
		d = 0
	}
	h.timer = time.AfterFunc(d, func() { fire(gen) })
}

// cancelTimer stops the pending timer and invalidates in-flight fires.
// Caller must hold h.mu.
func (h *requestHandle) cancelTimer() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.timerGen++
	h.timerArmed = false
}

// consume reports whether a fired callback with generation gen is still
// current, and if so marks the timer consumed. Caller must hold h.mu.
func (h *requestHandle) consume(gen uint64) bool {
	if gen != h.timerGen || !h.timerArmed {
		return false
	}
	h.timerArmed = false
	h.timer = nil
	return true
}

func (h *requestHandle) cancelReminders() {
	for _, t := range h.reminders {
		t.Stop()
	}
	h.reminders = nil
}

// publish emits an intent off the hot path so dispatch latency never
// gates a state transition.
func (e *Engine) publish(intentType string, data map[string]any) {
	go func() {
		_ = e.events.Publish(context.Background(), intentType, data)
	}()
}

// GetRequestSnapshot returns the read-only view of a request, its offers
// and, once evaluated, the ranking record.
func (e *Engine) GetRequestSnapshot(ctx context.Context, requestID string) (model.RequestSnapshot, error) {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.RequestSnapshot{}, ErrRequestNotFound
		}
		return model.RequestSnapshot{}, err
	}

	offers, err := e.store.ListOffersByRequest(ctx, requestID)
	if err != nil {
		return model.RequestSnapshot{}, err
	}

	snapshot := model.RequestSnapshot{Request: req, Offers: offers}
	ev, err := e.store.GetEvaluation(ctx, requestID)
	if err == nil {
		snapshot.Evaluation = &ev
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.RequestSnapshot{}, err
	}
	return snapshot, nil
}

// advisorPool snapshots the directory pool. Called before taking the
// request lock: directory lookups must never run inside the critical
// section.
func (e *Engine) advisorPool(ctx context.Context) []model.Advisor {
	pool, err := e.directory.ListAdvisors(ctx)
	if err != nil {
		slog.WarnContext(ctx, "advisor directory lookup failed", "error", err)
		return nil
	}
	return pool
}

func generateID(prefix string) string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return prefix + hex.EncodeToString(b[:8])
}
