// Package session is the process-wide session context: one place to read the
// current principal and to observe sign-in, sign-out and profile changes.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
)

// EventKind names a session-state change.
type EventKind string

const (
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventProfileUpdated EventKind = "profile_updated"
)

// Event is delivered to every subscriber when a principal's session or
// profile changes.
type Event struct {
	Kind        EventKind
	PrincipalID id.PrincipalID
	SessionID   id.SessionID
	At          time.Time
}

// Listener receives session events. Listeners run synchronously on the
// publishing goroutine and must not block.
type Listener func(ctx context.Context, e Event)

// Bus fans session events out to subscribers.
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
	logger    *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{listeners: make(map[int]Listener), logger: logger}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := b.nextID
	b.nextID++
	b.listeners[key] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, key)
	}
}

// Publish delivers e to every current subscriber.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	b.logger.DebugContext(ctx, "session event",
		"kind", string(e.Kind),
		"principal_id", e.PrincipalID.String(),
	)
	for _, fn := range listeners {
		fn(ctx, e)
	}
}

// PrincipalSource resolves the authenticated principal of a request.
type PrincipalSource interface {
	CurrentPrincipal(ctx context.Context) (*models.Principal, error)
}

// Context is the single read path for "who is calling". Authorization code
// reads the principal here and subscribes here for invalidation.
type Context struct {
	source PrincipalSource
	*Bus
}

func NewContext(source PrincipalSource, bus *Bus) *Context {
	return &Context{source: source, Bus: bus}
}

// Current returns the principal bound to ctx, or nil for an anonymous caller.
func (c *Context) Current(ctx context.Context) (*models.Principal, error) {
	return c.source.CurrentPrincipal(ctx)
}
