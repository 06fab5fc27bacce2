package session

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"studygenie/internal/backend"
)

// Status is the authentication status the presentation layer renders.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticated   Status = "authenticated"
)

// Default profile values written at sign-up.
const (
	DefaultAcademicLevel = "undergraduate"
	RoleStudent          = "student"
)

// State is a snapshot of the session. Pending is true until the startup
// session query has resolved; Status is Unauthenticated meanwhile.
type State struct {
	Status   Status            `json:"status"`
	Pending  bool              `json:"pending"`
	Identity *backend.Identity `json:"identity,omitempty"`
	Profile  *Profile          `json:"profile,omitempty"`
}

// Authenticated reports whether the state carries an identity.
func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated
}

// StateListener receives state changes in the order the backend confirmed
// them.
type StateListener func(State)

// ProfileListener receives the cached profile each time it is replaced.
type ProfileListener func(*Profile)

// Profile is the user-owned metadata row.
type Profile struct {
	ID            string    `json:"id"`
	FullName      string    `json:"full_name"`
	AcademicLevel string    `json:"academic_level"`
	Role          string    `json:"role"`
	XPPoints      int64     `json:"xp_points"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProfileFromRow maps a user_profiles row. Columns missing from the row stay
// zero; nothing is merged from an earlier copy.
func ProfileFromRow(row backend.Row) *Profile {
	if row == nil {
		return nil
	}
	return &Profile{
		ID:            row.String("id"),
		FullName:      row.String("full_name"),
		AcademicLevel: row.String("academic_level"),
		Role:          row.String("role"),
		XPPoints:      row.Int64("xp_points"),
		AvatarURL:     row.String("avatar_url"),
		CreatedAt:     row.Time("created_at"),
		UpdatedAt:     row.Time("updated_at"),
	}
}

// DisplayName picks the full name, then the local part of the identity's
// email, then "User".
func (p *Profile) DisplayName(identity *backend.Identity) string {
	if p != nil && strings.TrimSpace(p.FullName) != "" {
		return strings.TrimSpace(p.FullName)
	}
	if identity != nil {
		if local, _, ok := strings.Cut(identity.Email, "@"); ok && local != "" {
			return local
		}
	}
	return "User"
}

// Initial is the upper-cased first letter of the display name, used for
// avatar placeholders.
func (p *Profile) Initial(identity *backend.Identity) string {
	r, _ := utf8.DecodeRuneInString(p.DisplayName(identity))
	if r == utf8.RuneError {
		return "U"
	}
	return string(unicode.ToUpper(r))
}

// Severity grades a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notification asks the presentation layer to show a toast.
type Notification struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Navigation asks the presentation layer to change view. External targets
// leave the application (provider sign-in).
type Navigation struct {
	Target   string `json:"target"`
	External bool   `json:"external,omitempty"`
}

// Presenter renders notifications and performs navigation. Calls must not
// block.
type Presenter interface {
	Notify(Notification)
	Navigate(Navigation)
}

// NopPresenter discards every request.
type NopPresenter struct{}

func (NopPresenter) Notify(Notification) {}
func (NopPresenter) Navigate(Navigation) {}

// SignUpRequest is the registration form.
type SignUpRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
	FullName      string `json:"full_name" validate:"max=120"`
	AcademicLevel string `json:"academic_level" validate:"omitempty,max=64"`
}

// metadata builds the profile seed sent with the registration.
func (r SignUpRequest) metadata() map[string]any {
	level := strings.TrimSpace(r.AcademicLevel)
	if level == "" {
		level = DefaultAcademicLevel
	}
	return map[string]any{
		"full_name":      strings.TrimSpace(r.FullName),
		"academic_level": level,
		"role":           RoleStudent,
	}
}

// ProfileUpdate carries the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	FullName      *string `json:"full_name,omitempty" validate:"omitempty,min=1,max=120"`
	AcademicLevel *string `json:"academic_level,omitempty" validate:"omitempty,min=1,max=64"`
	AvatarURL     *string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

func (u ProfileUpdate) values() backend.Row {
	values := backend.Row{}
	if u.FullName != nil {
		values["full_name"] = strings.TrimSpace(*u.FullName)
	}
	if u.AcademicLevel != nil {
		values["academic_level"] = *u.AcademicLevel
	}
	if u.AvatarURL != nil {
		values["avatar_url"] = *u.AvatarURL
	}
	return values
}
