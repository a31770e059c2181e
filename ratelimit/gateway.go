package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Laisky/zap"

	"github.com/neatchat/neatchat/common/logger"
	"github.com/neatchat/neatchat/monitor"
)

// Identity is what the auth collaborator resolved for the caller. Anonymous
// callers carry only a normalized client IP and never borrow a user's quota.
type Identity struct {
	UserId   int
	Tier     Tier
	IsAdmin  bool
	ClientIP string
}

// Key returns the limiter key for the identity.
func (id Identity) Key() string {
	if id.UserId > 0 {
		return fmt.Sprintf("user:%d", id.UserId)
	}
	return "ip:" + id.ClientIP
}

// Decision is the gateway verdict plus the retry metadata surfaced to clients.
// Limit and Remaining are -1 for unbounded identities.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// Gateway gates every classed endpoint with a sliding-window log held in the
// shared store. It fails open when the store is unreachable: rate limiting is
// an abuse control, not a correctness control, so availability wins.
type Gateway struct {
	store Store
	// chargeDenied makes the recorded attempt stick even when the verdict is a
	// rejection, so a caller cannot probe for capacity for free. This is an
	// explicit policy knob, not a side effect of call order.
	chargeDenied bool
	now          func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithFreeDeniedAttempts removes a denied request's entry from the window,
// i.e. only admitted requests consume quota.
func WithFreeDeniedAttempts() Option {
	return func(g *Gateway) { g.chargeDenied = false }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func NewGateway(store Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:        store,
		chargeDenied: true,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit resolves the caller's limit, records the attempt in the shared window,
// and returns the verdict. Every decision is logged for abuse monitoring.
func (g *Gateway) Admit(ctx context.Context, id Identity, class EndpointClass) Decision {
	limit := ResolveLimit(id.Tier, id.IsAdmin, class)
	now := g.now()

	if limit.Unbounded {
		logger.Logger.Debug("rate limit bypass",
			zap.String("identity", id.Key()),
			zap.String("class", string(class)))
		monitor.RecordAdmission(string(class), true)
		return Decision{Allowed: true, Limit: -1, Remaining: -1}
	}

	if limit.Quota == 0 {
		// Class is closed to this tier; nothing to record.
		monitor.RecordAdmission(string(class), false)
		logger.Logger.Warn("rate limit rejected: class closed to tier",
			zap.String("identity", id.Key()),
			zap.String("class", string(class)),
			zap.String("tier", string(id.Tier)))
		return Decision{Allowed: false, Limit: 0, Remaining: 0, ResetAt: now.Add(limit.Window)}
	}

	key := string(class) + ":" + id.Key()
	count, oldest, member, err := g.store.Record(ctx, key, limit.Window, now)
	if err != nil {
		// Fail open: a dead counter store must not take the whole service down.
		monitor.RecordStoreFailure()
		logger.Logger.Error("rate limit store unreachable, failing open",
			zap.String("identity", id.Key()),
			zap.String("class", string(class)),
			zap.Error(err))
		monitor.RecordAdmission(string(class), true)
		return Decision{Allowed: true, Limit: limit.Quota, Remaining: limit.Quota - 1, ResetAt: now.Add(limit.Window)}
	}

	allowed := count <= limit.Quota
	remaining := limit.Quota - count
	if remaining < 0 {
		remaining = 0
	}
	resetAt := oldest.Add(limit.Window)

	if !allowed && !g.chargeDenied {
		if err := g.store.Forget(ctx, key, member); err != nil {
			logger.Logger.Warn("failed to refund denied attempt",
				zap.String("key", key), zap.Error(err))
		}
	}

	monitor.RecordAdmission(string(class), allowed)
	lg := logger.Logger.Debug
	if !allowed {
		lg = logger.Logger.Warn
	}
	lg("rate limit decision",
		zap.String("identity", id.Key()),
		zap.String("class", string(class)),
		zap.String("tier", string(id.Tier)),
		zap.Int64("count", count),
		zap.Int64("limit", limit.Quota),
		zap.Bool("allowed", allowed))

	return Decision{Allowed: allowed, Limit: limit.Quota, Remaining: remaining, ResetAt: resetAt}
}
