// Package backend defines the capabilities the client core consumes from a
// hosted backend: authentication with session events, row storage addressed by
// Query values, object storage, and remote procedures.
//
// Adapters live in subpackages (memory, kratos, postgres). They report failures
// with the sentinel errors in pkg/platform/sentinel, usually wrapped in *Error so
// a user-facing message survives; Translate turns them into coded domain errors.
package backend

import (
	"context"
	"time"
)

//go:generate mockgen -source=backend.go -destination=mocks/mocks.go -package=mocks AuthBackend,DataBackend

// Identity is the authenticated principal as known to the backend.
type Identity struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Session is a live authenticated context.
type Session struct {
	Identity  Identity
	Token     string
	ExpiresAt time.Time
}

// EventKind names a session change confirmed by the backend.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
	EventExpired        EventKind = "SESSION_EXPIRED"
)

// SessionEvent is delivered to session listeners. Session is nil for
// EventSignedOut and EventExpired.
type SessionEvent struct {
	Kind    EventKind
	Session *Session
}

// SessionListener receives session events in the order the backend confirmed
// them. Listeners must not block.
type SessionListener func(SessionEvent)

// ProviderRedirect is the pending result of an OAuth-style sign-in: the caller
// must send the user agent to URL; the session arrives later as an event.
type ProviderRedirect struct {
	Provider string
	FlowID   string
	URL      string
}

// AuthBackend is the authentication capability.
type AuthBackend interface {
	// GetActiveSession returns the persisted session, or nil when there is none.
	GetActiveSession(ctx context.Context) (*Session, error)
	// OnSessionChange registers a listener and returns a function that removes it.
	OnSessionChange(listener SessionListener) func()
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignInWithProvider(ctx context.Context, provider, redirectTo string) (*ProviderRedirect, error)
	SignOut(ctx context.Context) error
}

// Object is a file stored under a bucket-relative path.
type Object struct {
	Bucket      string
	Path        string
	ContentType string
	Data        []byte
}

// DataBackend is the row storage, object storage and procedure capability.
type DataBackend interface {
	// Execute runs a select, insert or update and returns the resulting rows.
	// Inserts and updates return the rows as stored by the backend.
	Execute(ctx context.Context, q Query) ([]Row, error)
	// Upload stores an object. An existing object at the same path is never
	// overwritten; the call fails with sentinel.ErrConflict instead.
	Upload(ctx context.Context, obj Object) error
	// Call invokes a backend-side procedure with named arguments.
	Call(ctx context.Context, procedure string, args map[string]any) error
}
