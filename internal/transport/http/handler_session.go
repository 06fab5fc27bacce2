package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"studygenie/internal/backend"
	"studygenie/internal/session"
	dErrors "studygenie/pkg/domain-errors"
)

// SessionService is the session manager as the HTTP layer uses it.
type SessionService interface {
	State() session.State
	Settle(ctx context.Context) error
	SignUp(ctx context.Context, req session.SignUpRequest) (*backend.Identity, error)
	SignIn(ctx context.Context, email, password string) (*backend.Session, error)
	SignInWithProvider(ctx context.Context, provider string) (*backend.ProviderRedirect, error)
	SignOut(ctx context.Context) error
	LoadProfile(ctx context.Context) *session.Profile
	UpdateProfile(ctx context.Context, update session.ProfileUpdate) (*session.Profile, error)
}

type identityResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func newIdentityResponse(identity *backend.Identity) *identityResponse {
	if identity == nil {
		return nil
	}
	return &identityResponse{ID: identity.ID, Email: identity.Email}
}

type sessionResponse struct {
	Status      session.Status    `json:"status"`
	Pending     bool              `json:"pending"`
	Identity    *identityResponse `json:"identity,omitempty"`
	Profile     *session.Profile  `json:"profile,omitempty"`
	DisplayName string            `json:"display_name,omitempty"`
	Initial     string            `json:"initial,omitempty"`
}

func newSessionResponse(st session.State) sessionResponse {
	resp := sessionResponse{
		Status:   st.Status,
		Pending:  st.Pending,
		Identity: newIdentityResponse(st.Identity),
		Profile:  st.Profile,
	}
	if st.Authenticated() {
		resp.DisplayName = st.Profile.DisplayName(st.Identity)
		resp.Initial = st.Profile.Initial(st.Identity)
	}
	return resp
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Identity  identityResponse `json:"identity"`
	ExpiresAt time.Time        `json:"expires_at"`
}

type providerRequest struct {
	Provider string `json:"provider"`
}

type providerResponse struct {
	Provider string `json:"provider"`
	FlowID   string `json:"flow_id"`
	URL      string `json:"url"`
}

// SessionHandler serves sign-up, sign-in, sign-out and the profile.
type SessionHandler struct {
	logger   *slog.Logger
	sessions SessionService
}

func NewSessionHandler(sessions SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{logger: logger, sessions: sessions}
}

// Register registers the session routes with the chi router.
func (h *SessionHandler) Register(r chi.Router) {
	r.Get("/session", h.handleGetSession)
	r.Post("/auth/signup", h.handleSignUp)
	r.Post("/auth/signin", h.handleSignIn)
	r.Post("/auth/provider", h.handleProvider)
	r.Post("/auth/signout", h.handleSignOut)
	r.Get("/profile", h.handleGetProfile)
	r.Patch("/profile", h.handleUpdateProfile)
}

func (h *SessionHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionResponse(h.sessions.State()))
}

func (h *SessionHandler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req session.SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		h.warn(r, "invalid sign up request", err)
		WriteError(w, err)
		return
	}
	identity, err := h.sessions.SignUp(ctx, req)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newIdentityResponse(identity))
}

func (h *SessionHandler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		h.warn(r, "invalid sign in request", err)
		WriteError(w, err)
		return
	}
	sess, err := h.sessions.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.settle(ctx)
	writeJSON(w, http.StatusOK, signInResponse{
		Identity:  identityResponse{ID: sess.Identity.ID, Email: sess.Identity.Email},
		ExpiresAt: sess.ExpiresAt,
	})
}

func (h *SessionHandler) handleProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	redirect, err := h.sessions.SignInWithProvider(r.Context(), req.Provider)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, providerResponse{
		Provider: redirect.Provider,
		FlowID:   redirect.FlowID,
		URL:      redirect.URL,
	})
}

func (h *SessionHandler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.sessions.SignOut(ctx); err != nil {
		WriteError(w, err)
		return
	}
	h.settle(ctx)
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.State().Authenticated() {
		WriteError(w, dErrors.New(dErrors.CodeNotAuthenticated, "authentication required"))
		return
	}
	profile := h.sessions.LoadProfile(r.Context())
	if profile == nil {
		WriteError(w, dErrors.New(dErrors.CodeNotFound, "profile not available"))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *SessionHandler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update session.ProfileUpdate
	if err := decodeJSON(r, &update); err != nil {
		WriteError(w, err)
		return
	}
	profile, err := h.sessions.UpdateProfile(r.Context(), update)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// settle waits for the backend's session event to be applied so the next
// request sees the new state.
func (h *SessionHandler) settle(ctx context.Context) {
	if err := h.sessions.Settle(ctx); err != nil {
		h.logger.WarnContext(ctx, "session state not settled", "error", err)
	}
}

func (h *SessionHandler) warn(r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		"request_id", chimw.GetReqID(r.Context()),
		"error", err,
	)
}
