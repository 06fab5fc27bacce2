package backend

import (
	"context"
	"errors"
)

// ErrNotConfigured is the cause of every Disabled failure.
var ErrNotConfigured = errors.New("backend not configured")

// Disabled stands in when no backend is configured for local runs. Every call
// is rejected, there is never an active session, and each new listener is told
// once that the user is signed out.
type Disabled struct{}

var (
	_ AuthBackend = Disabled{}
	_ DataBackend = Disabled{}
)

func (Disabled) reject() error {
	return Reject(ErrNotConfigured.Error(), ErrNotConfigured)
}

func (Disabled) GetActiveSession(context.Context) (*Session, error) {
	return nil, nil
}

func (Disabled) OnSessionChange(listener SessionListener) func() {
	listener(SessionEvent{Kind: EventSignedOut})
	return func() {}
}

func (d Disabled) SignUp(context.Context, string, string, map[string]any) (*Identity, error) {
	return nil, d.reject()
}

func (d Disabled) SignIn(context.Context, string, string) (*Session, error) {
	return nil, d.reject()
}

func (d Disabled) SignInWithProvider(context.Context, string, string) (*ProviderRedirect, error) {
	return nil, d.reject()
}

func (Disabled) SignOut(context.Context) error {
	return nil
}

func (d Disabled) Execute(context.Context, Query) ([]Row, error) {
	return nil, d.reject()
}

func (d Disabled) Upload(context.Context, Object) error {
	return d.reject()
}

func (d Disabled) Call(context.Context, string, map[string]any) error {
	return d.reject()
}
