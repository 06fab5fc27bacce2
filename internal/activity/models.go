// Package activity records what a user did in the client: auth changes,
// uploads, quizzes, study sessions and XP credits. Events feed offline
// processing (analytics, orphaned upload cleanup) and the user's activity
// listing. The session and study services never read them back.
package activity

import (
	"context"
	"time"
)

// Action names a recorded activity.
type Action string

const (
	ActionSignedUp         Action = "signed_up"
	ActionSignedIn         Action = "signed_in"
	ActionSignedOut        Action = "signed_out"
	ActionSessionExpired   Action = "session_expired"
	ActionProfileUpdated   Action = "profile_updated"
	ActionMaterialUploaded Action = "material_uploaded"
	ActionUploadOrphaned   Action = "upload_orphaned"
	ActionQuizCreated      Action = "quiz_created"
	ActionQuizAttempted    Action = "quiz_attempted"
	ActionStudySession     Action = "study_session_recorded"
	ActionProgressCredited Action = "progress_credited"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	UserID     string            `json:"user_id"`
	Action     Action            `json:"action"`
	Subject    string            `json:"subject,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Sink accepts events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a Sink that can also list what it kept.
type Store interface {
	Sink
	ListByUser(ctx context.Context, userID string) ([]Event, error)
}
