// Package guard decides whether the caller may perform an operation that
// needs a given capability level. Decisions fail closed: any failure to load
// the caller's profile is a DeniedUnauthenticated.
package guard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	identitymodels "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/session"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit"
)

// ProfileSource loads the profile bound to a principal.
type ProfileSource interface {
	ProfileForPrincipal(ctx context.Context, principalID id.PrincipalID) (*models.Profile, error)
}

// SessionContext is the process-wide session service.
type SessionContext interface {
	Current(ctx context.Context) (*identitymodels.Principal, error)
	Subscribe(fn session.Listener) (unsubscribe func())
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type cacheEntry struct {
	profile *models.Profile
	expires time.Time
}

// Guard evaluates capability requirements. Profile snapshots are cached for at
// most the configured TTL and dropped on every session event for the principal.
type Guard struct {
	profiles ProfileSource
	sessions SessionContext
	logger   *slog.Logger
	audit    AuditPublisher
	now      func() time.Time
	ttl      time.Duration

	mu    sync.Mutex
	cache map[id.PrincipalID]cacheEntry
	// epoch advances on every invalidation; a fetch that raced one is not cached.
	epoch uint64

	decisions   *prometheus.CounterVec
	unsubscribe func()
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithProfileTTL enables the profile cache. Zero disables it.
func WithProfileTTL(ttl time.Duration) Option {
	return func(g *Guard) {
		g.ttl = ttl
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(g *Guard) {
		g.audit = p
	}
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(g *Guard) {
		g.decisions = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "share_access_decisions_total",
			Help: "Access guard decisions by requirement and outcome",
		}, []string{"requirement", "outcome"})
	}
}

// WithClock replaces time.Now for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// New creates a Guard subscribed to sessions. Call Close to unsubscribe.
func New(profiles ProfileSource, sessions SessionContext, opts ...Option) *Guard {
	g := &Guard{
		profiles: profiles,
		sessions: sessions,
		logger:   slog.Default(),
		now:      time.Now,
		cache:    make(map[id.PrincipalID]cacheEntry),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.unsubscribe = sessions.Subscribe(func(_ context.Context, e session.Event) {
		g.Invalidate(e.PrincipalID)
	})
	return g
}

func (g *Guard) Close() {
	if g.unsubscribe != nil {
		g.unsubscribe()
	}
}

// AuthorizeCurrent authorizes the caller bound to ctx.
func (g *Guard) AuthorizeCurrent(ctx context.Context, req Requirement) Decision {
	if req == RequireAnonymous {
		return g.record(ctx, nil, newDecision(req, Allowed, nil))
	}
	principal, err := g.sessions.Current(ctx)
	if err != nil {
		g.logger.WarnContext(ctx, "session lookup failed, denying",
			"requirement", string(req),
			"error", err,
		)
		return g.record(ctx, nil, newDecision(req, DeniedUnauthenticated, nil))
	}
	return g.Authorize(ctx, principal, req)
}

// Authorize decides whether principal meets req. A nil principal is anonymous.
func (g *Guard) Authorize(ctx context.Context, principal *identitymodels.Principal, req Requirement) Decision {
	if req == RequireAnonymous {
		return g.record(ctx, principal, newDecision(req, Allowed, nil))
	}
	if principal == nil || principal.ID.IsNil() {
		return g.record(ctx, principal, newDecision(req, DeniedUnauthenticated, nil))
	}
	if req == RequireAuthenticated {
		return g.record(ctx, principal, newDecision(req, Allowed, nil))
	}

	profile, err := g.profile(ctx, principal.ID)
	if err != nil {
		g.logger.WarnContext(ctx, "profile lookup failed, denying",
			"principal_id", principal.ID.String(),
			"requirement", string(req),
			"error", err,
		)
		return g.record(ctx, principal, newDecision(req, DeniedUnauthenticated, nil))
	}

	switch req {
	case RequireVouched:
		if profile.HasVouchedCapability() {
			return g.record(ctx, principal, newDecision(req, Allowed, profile))
		}
		return g.record(ctx, principal, newDecision(req, DeniedUnvouched, profile))
	case RequireSteward:
		if profile.IsSteward() {
			return g.record(ctx, principal, newDecision(req, Allowed, profile))
		}
		return g.record(ctx, principal, newDecision(req, DeniedNotSteward, profile))
	}
	// Unknown requirements never grant access.
	return g.record(ctx, principal, newDecision(req, DeniedUnauthenticated, nil))
}

// Invalidate drops the cached profile for principalID.
func (g *Guard) Invalidate(principalID id.PrincipalID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cache, principalID)
	g.epoch++
}

func (g *Guard) profile(ctx context.Context, principalID id.PrincipalID) (*models.Profile, error) {
	var epoch uint64
	if g.ttl > 0 {
		g.mu.Lock()
		entry, ok := g.cache[principalID]
		epoch = g.epoch
		g.mu.Unlock()
		if ok && g.now().Before(entry.expires) {
			return entry.profile, nil
		}
	}

	p, err := g.profiles.ProfileForPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if g.ttl > 0 {
		g.mu.Lock()
		if g.epoch == epoch {
			g.cache[principalID] = cacheEntry{profile: p, expires: g.now().Add(g.ttl)}
		}
		g.mu.Unlock()
	}
	return p, nil
}

func (g *Guard) record(ctx context.Context, principal *identitymodels.Principal, d Decision) Decision {
	if g.decisions != nil {
		g.decisions.WithLabelValues(string(d.Requirement), string(d.Outcome)).Inc()
	}
	if d.Outcome != DeniedNotSteward || g.audit == nil {
		return d
	}
	actor := ""
	if principal != nil {
		actor = principal.ID.String()
	}
	if err := g.audit.Emit(ctx, audit.Event{
		Action:  string(audit.EventAccessDenied),
		ActorID: actor,
		Subject: string(d.Requirement),
		Reason:  string(d.Outcome),
	}); err != nil {
		g.logger.ErrorContext(ctx, "failed to audit access denial", "error", err)
	}
	return d
}
