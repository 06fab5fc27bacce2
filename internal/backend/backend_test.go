package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "studygenie/pkg/domain-errors"
	"studygenie/pkg/platform/sentinel"
)

func TestQueryValidate(t *testing.T) {
	t.Run("select with filters and order is valid", func(t *testing.T) {
		q := Query{
			Collection: "study_materials",
			Operation:  OpSelect,
			Filters:    []Filter{Eq("user_id", "u1")},
			Orders:     []Order{Desc("created_at")},
		}
		assert.NoError(t, q.Validate())
	})

	t.Run("update without filter is rejected", func(t *testing.T) {
		q := Query{Collection: "user_profiles", Operation: OpUpdate, Values: Row{"full_name": "A"}}
		err := q.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("insert without values is rejected", func(t *testing.T) {
		err := Query{Collection: "quizzes", Operation: OpInsert}.Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("missing collection is rejected", func(t *testing.T) {
		err := Query{Operation: OpSelect}.Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("unknown comparator is rejected", func(t *testing.T) {
		q := Query{Collection: "x", Filters: []Filter{{Column: "a", Comparator: "like", Value: "%"}}}
		assert.True(t, dErrors.HasCode(q.Validate(), dErrors.CodeInvalidInput))
	})
}

func TestRowAccessors(t *testing.T) {
	id := uuid.New()
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	row := Row{
		"id":         int32(7),
		"user_id":    [16]byte(id),
		"title":      "Cells",
		"created_at": created,
		"date":       "2026-05-02",
		"xp_points":  float64(12),
		"questions":  map[string]any{"questions": []any{map[string]any{"prompt": "Q1"}}},
		"achievements": map[string]any{
			"name": "First Steps",
		},
	}

	assert.Equal(t, int64(7), row.Int64("id"))
	assert.Equal(t, id.String(), row.String("user_id"))
	assert.Equal(t, "Cells", row.String("title"))
	assert.Equal(t, "", row.String("missing"))
	assert.Equal(t, created, row.Time("created_at"))
	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), row.Time("date"))
	assert.Equal(t, 12, row.Int("xp_points"))
	assert.Equal(t, "First Steps", row.Row("achievements").String("name"))

	var doc struct {
		Questions []struct {
			Prompt string `json:"prompt"`
		} `json:"questions"`
	}
	require.NoError(t, row.Decode("questions", &doc))
	require.Len(t, doc.Questions, 1)
	assert.Equal(t, "Q1", doc.Questions[0].Prompt)

	raw := Row{"answers": json.RawMessage(`{"answers":["a"]}`)}
	var answers struct {
		Answers []string `json:"answers"`
	}
	require.NoError(t, raw.Decode("answers", &answers))
	assert.Equal(t, []string{"a"}, answers.Answers)
}

func TestCompareValues(t *testing.T) {
	c, ok := CompareValues(int64(3), 7)
	require.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = CompareValues("b", "a")
	require.True(t, ok)
	assert.Equal(t, 1, c)

	now := time.Now()
	c, ok = CompareValues(now, now)
	require.True(t, ok)
	assert.Equal(t, 0, c)

	_, ok = CompareValues("1", 1)
	assert.False(t, ok)
}

func TestTranslate(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Translate(nil))
	})

	t.Run("rejection keeps backend message", func(t *testing.T) {
		err := Translate(fmt.Errorf("sign in: %w", Reject("Invalid login credentials", nil)))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBackendRejected))
		assert.Equal(t, "Invalid login credentials", dErrors.UserMessage(err))
		assert.ErrorIs(t, err, sentinel.ErrRejected)
	})

	t.Run("transport failure stays distinct", func(t *testing.T) {
		err := Translate(Unavailable(errors.New("dial tcp: connection refused")))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTransport))
		assert.False(t, dErrors.HasCode(err, dErrors.CodeBackendRejected))
	})

	t.Run("not found maps to not found", func(t *testing.T) {
		err := Translate(NotFound("profile not found"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("coded errors pass through", func(t *testing.T) {
		in := dErrors.New(dErrors.CodeValidation, "title required")
		assert.Same(t, in, Translate(in))
	})

	t.Run("unknown errors are treated as rejections", func(t *testing.T) {
		err := Translate(errors.New("weird"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBackendRejected))
	})
}

func TestListeners(t *testing.T) {
	var l Listeners
	var got []string

	removeA := l.Add(func(evt SessionEvent) { got = append(got, "a:"+string(evt.Kind)) })
	l.Add(func(evt SessionEvent) { got = append(got, "b:"+string(evt.Kind)) })

	l.Emit(SessionEvent{Kind: EventSignedIn})
	removeA()
	l.Emit(SessionEvent{Kind: EventSignedOut})

	assert.Equal(t, []string{"a:SIGNED_IN", "b:SIGNED_IN", "b:SIGNED_OUT"}, got)
}

func TestDisabled(t *testing.T) {
	ctx := context.Background()
	d := Disabled{}

	session, err := d.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	var events []SessionEvent
	d.OnSessionChange(func(evt SessionEvent) { events = append(events, evt) })
	require.Len(t, events, 1)
	assert.Equal(t, EventSignedOut, events[0].Kind)

	_, err = d.SignIn(ctx, "a@x.com", "pw")
	assert.ErrorIs(t, err, sentinel.ErrRejected)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = d.Execute(ctx, Query{Collection: "study_materials"})
	assert.True(t, dErrors.HasCode(Translate(err), dErrors.CodeBackendRejected))
	assert.NoError(t, d.SignOut(ctx))
}
