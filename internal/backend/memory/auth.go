package memory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"studygenie/internal/backend"
	"studygenie/internal/backend/tokenstore"
	"studygenie/pkg/platform/sentinel"
)

const (
	defaultSessionTTL = time.Hour
	profilesTable     = "user_profiles"
)

// Auth is an in-memory AuthBackend. Passwords are bcrypt-hashed, sessions are
// HS256 tokens persisted in a tokenstore.Store, and sign-up creates the
// user_profiles row the hosted backend creates with a trigger.
type Auth struct {
	mu          sync.Mutex
	users       map[string]*user // keyed by lower-cased email
	flows       map[string]providerFlow
	data        *Data
	tokens      tokenstore.Store
	issuer      *tokenIssuerService
	sessionTTL  time.Duration
	bcryptCost  int
	autoConfirm bool
	clock       func() time.Time
	listeners   backend.Listeners
}

type user struct {
	identity     backend.Identity
	passwordHash []byte
	confirmed    bool
}

type providerFlow struct {
	provider   string
	redirectTo string
}

var _ backend.AuthBackend = (*Auth)(nil)

// AuthOption configures an Auth instance.
type AuthOption func(*Auth)

func WithSigningKey(key string) AuthOption {
	return func(a *Auth) {
		if key != "" {
			a.issuer.signingKey = []byte(key)
		}
	}
}

func WithSessionTTL(ttl time.Duration) AuthOption {
	return func(a *Auth) {
		if ttl > 0 {
			a.sessionTTL = ttl
		}
	}
}

func WithTokenStore(store tokenstore.Store) AuthOption {
	return func(a *Auth) {
		if store != nil {
			a.tokens = store
		}
	}
}

// WithAutoConfirm skips email verification: sign-up signs the user in.
func WithAutoConfirm(enabled bool) AuthOption {
	return func(a *Auth) {
		a.autoConfirm = enabled
	}
}

// WithBcryptCost lowers the hashing cost, for tests.
func WithBcryptCost(cost int) AuthOption {
	return func(a *Auth) {
		a.bcryptCost = cost
	}
}

func WithAuthClock(clock func() time.Time) AuthOption {
	return func(a *Auth) {
		if clock != nil {
			a.clock = clock
			a.issuer.clock = clock
		}
	}
}

// NewAuth constructs an Auth that writes profile rows into data. data may be nil.
func NewAuth(data *Data, opts ...AuthOption) *Auth {
	a := &Auth{
		users:      make(map[string]*user),
		flows:      make(map[string]providerFlow),
		data:       data,
		tokens:     tokenstore.NewInMemory(),
		issuer:     &tokenIssuerService{signingKey: []byte(uuid.NewString()), clock: time.Now},
		sessionTTL: defaultSessionTTL,
		bcryptCost: bcrypt.DefaultCost,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

func (a *Auth) GetActiveSession(ctx context.Context) (*backend.Session, error) {
	token, err := a.tokens.Load(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, backend.Unavailable(err)
	}
	claims, err := a.issuer.validate(token)
	if err != nil {
		// A stale or tampered token is the same as no session.
		_ = a.tokens.Clear(ctx)
		return nil, nil
	}
	a.mu.Lock()
	u := a.userByID(claims.Subject)
	a.mu.Unlock()
	if u == nil {
		_ = a.tokens.Clear(ctx)
		return nil, nil
	}
	return &backend.Session{
		Identity:  u.identity,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (a *Auth) OnSessionChange(listener backend.SessionListener) func() {
	return a.listeners.Add(listener)
}

func (a *Auth) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*backend.Identity, error) {
	key := normalizeEmail(email)
	if key == "" || password == "" {
		return nil, backend.Reject("Signup requires a valid password", nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.bcryptCost)
	if err != nil {
		return nil, backend.Reject("Password cannot be used", err)
	}

	a.mu.Lock()
	if _, exists := a.users[key]; exists {
		a.mu.Unlock()
		return nil, backend.Reject("User already registered", nil)
	}
	u := &user{
		identity: backend.Identity{
			ID:        uuid.NewString(),
			Email:     key,
			CreatedAt: a.clock(),
		},
		passwordHash: hash,
		confirmed:    a.autoConfirm,
	}
	a.users[key] = u
	a.mu.Unlock()

	if err := a.createProfile(u.identity, metadata); err != nil {
		a.mu.Lock()
		delete(a.users, key)
		a.mu.Unlock()
		return nil, err
	}

	if u.confirmed {
		if _, err := a.startSession(ctx, u); err != nil {
			return nil, err
		}
	}
	identity := u.identity
	return &identity, nil
}

func (a *Auth) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	a.mu.Lock()
	u, ok := a.users[normalizeEmail(email)]
	a.mu.Unlock()
	if !ok {
		return nil, backend.Reject("Invalid login credentials", nil)
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return nil, backend.Reject("Invalid login credentials", nil)
	}
	if !u.confirmed {
		return nil, backend.Reject("Email not confirmed", nil)
	}
	return a.startSession(ctx, u)
}

// SignInWithProvider opens a provider flow. CompleteProviderSignIn stands in for
// the provider callback.
func (a *Auth) SignInWithProvider(_ context.Context, provider, redirectTo string) (*backend.ProviderRedirect, error) {
	if strings.TrimSpace(provider) == "" {
		return nil, backend.Reject("Unsupported provider", nil)
	}
	flowID := uuid.NewString()
	a.mu.Lock()
	a.flows[flowID] = providerFlow{provider: provider, redirectTo: redirectTo}
	a.mu.Unlock()

	q := url.Values{}
	q.Set("flow", flowID)
	q.Set("redirect_to", redirectTo)
	return &backend.ProviderRedirect{
		Provider: provider,
		FlowID:   flowID,
		URL:      fmt.Sprintf("memory://oauth/%s?%s", url.PathEscape(provider), q.Encode()),
	}, nil
}

// CompleteProviderSignIn finishes a provider flow for email, registering the
// user on first use, and emits EventSignedIn.
func (a *Auth) CompleteProviderSignIn(ctx context.Context, flowID, email string) (*backend.Session, error) {
	a.mu.Lock()
	_, ok := a.flows[flowID]
	delete(a.flows, flowID)
	key := normalizeEmail(email)
	u, exists := a.users[key]
	if ok && !exists {
		u = &user{
			identity:  backend.Identity{ID: uuid.NewString(), Email: key, CreatedAt: a.clock()},
			confirmed: true,
		}
		a.users[key] = u
	}
	a.mu.Unlock()
	if !ok {
		return nil, backend.Reject("Flow expired or unknown", nil)
	}
	if !exists {
		if err := a.createProfile(u.identity, nil); err != nil {
			return nil, err
		}
	}
	return a.startSession(ctx, u)
}

func (a *Auth) SignOut(ctx context.Context) error {
	if err := a.tokens.Clear(ctx); err != nil {
		return backend.Unavailable(err)
	}
	a.listeners.Emit(backend.SessionEvent{Kind: backend.EventSignedOut})
	return nil
}

// ConfirmEmail marks the account verified, as following the emailed link would.
func (a *Auth) ConfirmEmail(email string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[normalizeEmail(email)]
	if !ok {
		return backend.NotFound("User not found")
	}
	u.confirmed = true
	return nil
}

// Expire ends the current session the way a lapsed token would.
func (a *Auth) Expire(ctx context.Context) error {
	if err := a.tokens.Clear(ctx); err != nil {
		return backend.Unavailable(err)
	}
	a.listeners.Emit(backend.SessionEvent{Kind: backend.EventExpired})
	return nil
}

func (a *Auth) startSession(ctx context.Context, u *user) (*backend.Session, error) {
	token, expiresAt, err := a.issuer.issue(u.identity.ID, u.identity.Email, a.sessionTTL)
	if err != nil {
		return nil, backend.Unavailable(err)
	}
	if err := a.tokens.Save(ctx, token, a.sessionTTL); err != nil {
		return nil, backend.Unavailable(err)
	}
	session := &backend.Session{Identity: u.identity, Token: token, ExpiresAt: expiresAt}
	a.listeners.Emit(backend.SessionEvent{Kind: backend.EventSignedIn, Session: session})
	return session, nil
}

func (a *Auth) createProfile(identity backend.Identity, metadata map[string]any) error {
	if a.data == nil {
		return nil
	}
	meta := backend.Row(metadata)
	now := a.clock()
	_, err := a.data.Execute(context.Background(), backend.Query{
		Collection: profilesTable,
		Operation:  backend.OpInsert,
		Values: backend.Row{
			"id":             identity.ID,
			"full_name":      meta.String("full_name"),
			"academic_level": meta.String("academic_level"),
			"role":           meta.String("role"),
			"xp_points":      int64(0),
			"avatar_url":     nil,
			"created_at":     now,
			"updated_at":     now,
		},
	})
	return err
}

// userByID requires a.mu.
func (a *Auth) userByID(id string) *user {
	for _, u := range a.users {
		if u.identity.ID == id {
			return u
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
