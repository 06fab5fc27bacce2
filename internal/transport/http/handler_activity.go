package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studygenie/internal/activity"
	dErrors "studygenie/pkg/domain-errors"
)

// ActivityLister reads back recorded activity for one user.
type ActivityLister interface {
	List(ctx context.Context, userID string) ([]activity.Event, error)
}

// ActivityHandler lists the signed-in user's own activity.
type ActivityHandler struct {
	logger   *slog.Logger
	sessions SessionService
	activity ActivityLister
}

func NewActivityHandler(sessions SessionService, lister ActivityLister, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{logger: logger, sessions: sessions, activity: lister}
}

// Register registers the activity routes with the chi router.
func (h *ActivityHandler) Register(r chi.Router) {
	r.Get("/activity", h.handleListActivity)
}

func (h *ActivityHandler) handleListActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := h.sessions.State()
	if !st.Authenticated() {
		WriteError(w, dErrors.New(dErrors.CodeNotAuthenticated, "authentication required"))
		return
	}
	events, err := h.activity.List(ctx, st.Identity.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list activity", "error", err, "user_id", st.Identity.ID)
		WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "activity not available"))
		return
	}
	if events == nil {
		events = []activity.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
