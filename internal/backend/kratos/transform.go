package kratos

import (
	"encoding/json"
	"net/http"

	kratosclient "github.com/ory/kratos-client-go"

	"studygenie/internal/backend"
)

// registrationTraits builds the identity traits: the sign-up metadata with the
// email always taken from the credentials.
func registrationTraits(email string, metadata map[string]any) map[string]interface{} {
	traits := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		traits[k] = v
	}
	traits["email"] = email
	return traits
}

// profileTraitKeys are the identity traits copied onto the profile row.
var profileTraitKeys = []string{"full_name", "academic_level", "role"}

// profileTraits returns the non-empty profile traits of identity.
func profileTraits(identity *kratosclient.Identity) map[string]any {
	out := make(map[string]any, len(profileTraitKeys))
	traits, ok := identity.Traits.(map[string]interface{})
	if !ok {
		return out
	}
	for _, key := range profileTraitKeys {
		if v, ok := traits[key].(string); ok && v != "" {
			out[key] = v
		}
	}
	return out
}

func toIdentity(identity *kratosclient.Identity) backend.Identity {
	if identity == nil {
		return backend.Identity{}
	}
	out := backend.Identity{ID: identity.Id}
	if traits, ok := identity.Traits.(map[string]interface{}); ok {
		if email, ok := traits["email"].(string); ok {
			out.Email = email
		}
	}
	if identity.CreatedAt != nil {
		out.CreatedAt = *identity.CreatedAt
	}
	return out
}

func toSession(session *kratosclient.Session, token string) backend.Session {
	out := backend.Session{
		Identity: toIdentity(session.Identity),
		Token:    token,
	}
	if session.ExpiresAt != nil {
		out.ExpiresAt = *session.ExpiresAt
	}
	return out
}

// messageFromBody extracts the first user-facing message from a Kratos error
// body: flow UI messages, then node messages, then the generic error object.
func messageFromBody(body []byte) string {
	var payload struct {
		UI struct {
			Messages []struct {
				Text string `json:"text"`
			} `json:"messages"`
			Nodes []struct {
				Messages []struct {
					Text string `json:"text"`
				} `json:"messages"`
			} `json:"nodes"`
		} `json:"ui"`
		Error struct {
			Message string `json:"message"`
			Reason  string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, m := range payload.UI.Messages {
		if m.Text != "" {
			return m.Text
		}
	}
	for _, n := range payload.UI.Nodes {
		for _, m := range n.Messages {
			if m.Text != "" {
				return m.Text
			}
		}
	}
	if payload.Error.Reason != "" {
		return payload.Error.Reason
	}
	return payload.Error.Message
}

func defaultMessage(code int) string {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "Invalid login credentials"
	case http.StatusConflict:
		return "User already registered"
	case http.StatusGone:
		return "The sign-in flow expired, please try again"
	default:
		return "Request rejected"
	}
}
