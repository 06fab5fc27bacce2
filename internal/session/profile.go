package session

import (
	"context"
	"fmt"
	"slices"

	"studygenie/internal/activity"
	"studygenie/internal/backend"
	dErrors "studygenie/pkg/domain-errors"
	"studygenie/pkg/requestcontext"
)

// LoadProfile refreshes the cached profile from the backend and returns the
// cache. Without a session it does nothing. Fetch failures are logged and the
// previous cache is kept.
func (m *Manager) LoadProfile(ctx context.Context) *Profile {
	identity := m.CurrentIdentity()
	if identity == nil {
		return nil
	}
	m.refreshProfile(ctx, identity.ID, false)
	return m.CurrentProfile()
}

// RefreshProfile is LoadProfile for callers that just wrote to the profile
// row. It never joins a fetch already in flight, since that fetch may have
// read the row before the write.
func (m *Manager) RefreshProfile(ctx context.Context) *Profile {
	identity := m.CurrentIdentity()
	if identity == nil {
		return nil
	}
	m.refreshProfile(ctx, identity.ID, true)
	return m.CurrentProfile()
}

// refreshProfile fetches the profile for identityID. Concurrent refreshes
// within one session share a request unless fresh is set.
func (m *Manager) refreshProfile(ctx context.Context, identityID string, fresh bool) {
	m.mu.RLock()
	key := fmt.Sprintf("%s/%d", identityID, m.epoch)
	m.mu.RUnlock()
	if fresh {
		m.flights.Forget(key)
	}
	_, _, _ = m.flights.Do(key, func() (any, error) {
		seq := m.nextSeq()
		rows, err := m.data.Execute(ctx, backend.Query{
			Collection: profilesCollection,
			Filters:    []backend.Filter{backend.Eq("id", identityID)},
		})
		if err == nil && len(rows) == 0 {
			err = errNoProfile
		}
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to load profile", "error", err, "user_id", identityID)
			m.metrics.IncrementBackendFailure("load_profile", string(dErrors.CodeOf(backend.Translate(err))))
			return nil, err
		}
		m.applyProfile(identityID, seq, ProfileFromRow(rows[0]))
		return nil, nil
	})
}

// UpdateProfile writes the given fields plus updated_at and replaces the cache
// with the row the backend returns.
func (m *Manager) UpdateProfile(ctx context.Context, update ProfileUpdate) (*Profile, error) {
	identity := m.CurrentIdentity()
	if identity == nil {
		return nil, dErrors.New(dErrors.CodeNotAuthenticated, "authentication required")
	}
	if err := m.validate.Struct(update); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid profile fields")
	}
	values := update.values()
	if len(values) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "no profile fields to update")
	}
	values["updated_at"] = requestcontext.Now(ctx).UTC()

	seq := m.nextSeq()
	rows, err := m.data.Execute(ctx, backend.Query{
		Collection: profilesCollection,
		Operation:  backend.OpUpdate,
		Filters:    []backend.Filter{backend.Eq("id", identity.ID)},
		Values:     values,
	})
	if err == nil && len(rows) == 0 {
		err = dErrors.New(dErrors.CodeNotFound, "profile not found")
	}
	if err != nil {
		err = backend.Translate(err)
		m.logger.ErrorContext(ctx, "failed to update profile", "error", err, "user_id", identity.ID)
		m.metrics.IncrementBackendFailure("update_profile", string(dErrors.CodeOf(err)))
		m.presenter.Notify(Notification{Message: dErrors.UserMessage(err), Severity: SeverityError})
		return nil, err
	}

	profile := ProfileFromRow(rows[0])
	m.applyProfile(identity.ID, seq, profile)
	m.record(ctx, activity.Event{UserID: identity.ID, Action: activity.ActionProfileUpdated})
	m.presenter.Notify(Notification{Message: msgProfileUpdated, Severity: SeveritySuccess})
	return profile, nil
}

func (m *Manager) nextSeq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profileSeq++
	return m.profileSeq
}

// applyProfile stores profile if it answers a request newer than the last one
// applied and the identity has not changed since the request was issued.
func (m *Manager) applyProfile(identityID string, seq uint64, profile *Profile) bool {
	m.mu.Lock()
	if m.state.Status != StatusAuthenticated || m.state.Identity == nil ||
		m.state.Identity.ID != identityID || seq <= m.appliedSeq {
		m.mu.Unlock()
		m.logger.Debug("discarding stale profile response", "user_id", identityID, "seq", seq)
		return false
	}
	m.appliedSeq = seq
	m.state.Profile = profile
	m.mu.Unlock()

	m.notifyProfile(profile)
	return true
}

func sortedKeys[V any](items map[int]V) []int {
	keys := make([]int, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
