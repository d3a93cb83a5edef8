package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/partsgrid/parts-exchange/internal/model"
)

// Recover reconstructs outstanding timers from persisted request state.
// Run at startup after a crash or deploy, and periodically by the sweep
// cron: in-memory timers are a cache, the store is the truth. Timers
// whose deadline already passed fire immediately.
func (e *Engine) Recover(ctx context.Context) error {
	active, err := e.store.ListActiveRequests(ctx)
	if err != nil {
		return fmt.Errorf("list active requests: %w", err)
	}

	recovered := 0
	for _, req := range active {
		if e.recoverRequest(ctx, req) {
			recovered++
		}
	}
	if recovered > 0 {
		slog.InfoContext(ctx, "timers_recovered", "count", recovered, "active_requests", len(active))
	}
	return nil
}

// recoverRequest re-arms the timer for one request if none is pending.
// Returns true when a timer was armed.
func (e *Engine) recoverRequest(ctx context.Context, req model.Request) bool {
	snap := e.settings.Snapshot()

	h := e.handle(req.ID)
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.timerArmed {
		return false
	}

	// Reload under the lock; the listing may be stale.
	current, err := e.store.GetRequest(ctx, req.ID)
	if err != nil {
		slog.WarnContext(ctx, "recovery: load request failed", "request_id", req.ID, "error", err)
		return false
	}

	switch current.State {
	case model.RequestStateOpen:
		tierIdx := current.CurrentTier - 1
		if tierIdx >= len(snap.Tiers) {
			// Tier table shrank under a hot reload; treat as catch-all.
			tierIdx = len(snap.Tiers) - 1
		}
		remaining := time.Until(current.TierEnteredAt.Add(snap.Tiers[tierIdx].Wait))
		e.armTierTimer(h, current.ID, remaining)
		return true

	case model.RequestStateEvaluated:
		if current.ClientResponseDeadline == nil {
			slog.ErrorContext(ctx, "recovery: evaluated request without deadline", "request_id", current.ID)
			return false
		}
		e.openClientWindowLocked(h, current.ID, snap, *current.ClientResponseDeadline)
		return true
	}
	return false
}

// StartSweeper runs Recover on a fixed interval to catch timers lost to
// transient store failures. Returns the cron so the caller can stop it on
// shutdown.
func (e *Engine) StartSweeper(interval time.Duration) *cron.Cron {
	c := cron.New()
	c.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if err := e.Recover(context.Background()); err != nil {
			slog.Error("timer sweep failed", "error", err)
		}
	}))
	c.Start()
	slog.Info("timer sweeper started", "interval", interval)
	return c
}
