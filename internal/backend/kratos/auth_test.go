package kratos

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	kratosclient "github.com/ory/kratos-client-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studygenie/internal/backend"
	"studygenie/internal/backend/tokenstore"
	"studygenie/pkg/platform/sentinel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistrationTraits(t *testing.T) {
	traits := registrationTraits("a@x.com", map[string]any{
		"full_name": "A",
		"role":      "student",
		"email":     "spoofed@x.com",
	})
	assert.Equal(t, "a@x.com", traits["email"])
	assert.Equal(t, "A", traits["full_name"])
	assert.Equal(t, "student", traits["role"])
}

func TestToSession(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	expires := created.Add(24 * time.Hour)
	ks := &kratosclient.Session{
		Id:        "sess-1",
		ExpiresAt: &expires,
		Identity: &kratosclient.Identity{
			Id:        "id-1",
			CreatedAt: &created,
			Traits:    map[string]interface{}{"email": "a@x.com"},
		},
	}

	got := toSession(ks, "tok")
	assert.Equal(t, backend.Session{
		Identity:  backend.Identity{ID: "id-1", Email: "a@x.com", CreatedAt: created},
		Token:     "tok",
		ExpiresAt: expires,
	}, got)

	assert.Equal(t, backend.Identity{}, toIdentity(nil))
}

func TestMessageFromBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "flow message",
			body: `{"ui":{"messages":[{"id":4000006,"text":"The provided credentials are invalid."}]}}`,
			want: "The provided credentials are invalid.",
		},
		{
			name: "node message",
			body: `{"ui":{"nodes":[{"messages":[]},{"messages":[{"text":"An account with the same identifier exists already."}]}]}}`,
			want: "An account with the same identifier exists already.",
		},
		{
			name: "generic error prefers reason",
			body: `{"error":{"code":410,"message":"flow expired","reason":"The login flow expired 5 minutes ago."}}`,
			want: "The login flow expired 5 minutes ago.",
		},
		{name: "not json", body: `<html>`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, messageFromBody([]byte(tt.body)))
		})
	}
}

func TestProviderURL(t *testing.T) {
	got := providerURL("https://auth.example.com/self-service/login?flow=f1", "google")
	assert.Equal(t, "https://auth.example.com/self-service/login?flow=f1&provider=google", got)
}

func TestTokenTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Hour, tokenTTL(now.Add(time.Hour), now))
	assert.Equal(t, time.Duration(0), tokenTTL(time.Time{}, now))
	assert.Equal(t, time.Second, tokenTTL(now.Add(-time.Minute), now))
}

func newTestAuth(t *testing.T, handler http.HandlerFunc) (*Auth, *tokenstore.InMemory) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokens := tokenstore.NewInMemory()
	return New(srv.URL, tokens, WithLogger(discardLogger()), WithTimeout(2*time.Second)), tokens
}

func TestGetActiveSession(t *testing.T) {
	ctx := context.Background()

	t.Run("no stored token means no session and no request", func(t *testing.T) {
		auth, _ := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected request %s", r.URL.Path)
		})
		session, err := auth.GetActiveSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, session)
	})

	t.Run("revoked token is cleared", func(t *testing.T) {
		auth, tokens := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "stale", r.Header.Get("X-Session-Token"))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"code":401,"status":"Unauthorized","message":"No valid session credentials found in the request."}}`)
		})
		require.NoError(t, tokens.Save(ctx, "stale", time.Hour))

		session, err := auth.GetActiveSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, session)
		_, err = tokens.Load(ctx)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("server failure is unavailable and keeps the token", func(t *testing.T) {
		auth, tokens := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		require.NoError(t, tokens.Save(ctx, "tok", time.Hour))

		_, err := auth.GetActiveSession(ctx)
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
		got, err := tokens.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "tok", got)
	})
}

func TestSignOutWithoutSession(t *testing.T) {
	auth, _ := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	var events []backend.EventKind
	auth.OnSessionChange(func(evt backend.SessionEvent) { events = append(events, evt.Kind) })

	require.NoError(t, auth.SignOut(context.Background()))
	assert.Equal(t, []backend.EventKind{backend.EventSignedOut}, events)
}

func TestSignOutRevokesToken(t *testing.T) {
	var logoutCalls int
	auth, tokens := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/self-service/logout/api" {
			logoutCalls++
			w.WriteHeader(http.StatusNoContent)
			return
		}
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	ctx := context.Background()
	require.NoError(t, tokens.Save(ctx, "tok", time.Hour))

	require.NoError(t, auth.SignOut(ctx))
	assert.Equal(t, 1, logoutCalls)
	_, err := tokens.Load(ctx)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

type recordingProvisioner struct {
	mu    sync.Mutex
	calls []map[string]any
	err   error
}

func (p *recordingProvisioner) ProvisionProfile(_ context.Context, identityID string, traits map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := map[string]any{"id": identityID}
	for k, v := range traits {
		call[k] = v
	}
	p.calls = append(p.calls, call)
	return p.err
}

func (p *recordingProvisioner) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

const (
	loginFlowBody = `{"id":"f1","type":"api","state":"choose_method",
		"expires_at":"2030-01-01T00:00:00Z","issued_at":"2026-01-01T00:00:00Z",
		"request_url":"http://kratos/self-service/login/api",
		"ui":{"action":"http://kratos/self-service/login?flow=f1","method":"POST","nodes":[]}}`
	sessionBody = `{"id":"s1","active":true,"expires_at":"2030-01-01T00:00:00Z",
		"identity":{"id":"id-1","schema_id":"default","schema_url":"http://kratos/schemas/default",
		"traits":{"email":"a@x.com","full_name":"A","role":"student","academic_level":""}}}`
)

func loginServer(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/self-service/login/api":
			_, _ = io.WriteString(w, loginFlowBody)
		case "/self-service/login":
			_, _ = io.WriteString(w, `{"session":`+sessionBody+`,"session_token":"tok"}`)
		case "/sessions/whoami":
			_, _ = io.WriteString(w, sessionBody)
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}
}

func TestSignInProvisionsProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("profile exists before the session is announced", func(t *testing.T) {
		profiles := &recordingProvisioner{}
		srv := httptest.NewServer(loginServer(t))
		t.Cleanup(srv.Close)
		auth := New(srv.URL, tokenstore.NewInMemory(),
			WithLogger(discardLogger()),
			WithProfileProvisioner(profiles),
		)
		var provisionedAtEvent int
		auth.OnSessionChange(func(backend.SessionEvent) { provisionedAtEvent = profiles.count() })

		session, err := auth.SignIn(ctx, "a@x.com", "pw")
		require.NoError(t, err)
		assert.Equal(t, "id-1", session.Identity.ID)
		assert.Equal(t, 1, provisionedAtEvent)
		assert.Equal(t, []map[string]any{{"id": "id-1", "full_name": "A", "role": "student"}}, profiles.calls)

		_, err = auth.GetActiveSession(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, profiles.count(), "a provisioned identity is not provisioned again")
	})

	t.Run("failure does not block sign-in and is retried", func(t *testing.T) {
		profiles := &recordingProvisioner{err: backend.Unavailable(assert.AnError)}
		srv := httptest.NewServer(loginServer(t))
		t.Cleanup(srv.Close)
		auth := New(srv.URL, tokenstore.NewInMemory(),
			WithLogger(discardLogger()),
			WithProfileProvisioner(profiles),
		)

		_, err := auth.SignIn(ctx, "a@x.com", "pw")
		require.NoError(t, err)
		assert.Equal(t, 1, profiles.count())

		profiles.mu.Lock()
		profiles.err = nil
		profiles.mu.Unlock()
		session, err := auth.GetActiveSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, session)
		assert.Equal(t, 2, profiles.count())
	})
}
