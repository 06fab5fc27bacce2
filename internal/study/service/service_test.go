package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"studygenie/internal/activity"
	"studygenie/internal/backend"
	"studygenie/internal/backend/memory"
	"studygenie/internal/backend/mocks"
	"studygenie/internal/platform/metrics"
	"studygenie/internal/session"
	"studygenie/internal/study/models"
	dErrors "studygenie/pkg/domain-errors"
	"studygenie/pkg/requestcontext"
)

// stubSessions stands in for the session manager.
type stubSessions struct {
	mu       sync.Mutex
	identity *backend.Identity
	loads    int
}

func (s *stubSessions) CurrentIdentity() *backend.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *stubSessions) RefreshProfile(context.Context) *session.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return nil
}

func (s *stubSessions) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const ownerID = "0b9f3c1e-5d7a-4c2e-9f61-7a8d2b4c6e10"

var fixedNow = time.Date(2026, 4, 15, 10, 30, 0, 0, time.UTC)

func TestUnauthenticatedGuard(t *testing.T) {
	ctrl := gomock.NewController(t)
	// No expectations: any backend call fails the test.
	data := mocks.NewMockDataBackend(ctrl)
	svc := New(&stubSessions{}, data, WithLogger(discardLogger()))
	ctx := context.Background()

	t.Run("writes fail with NotAuthenticated", func(t *testing.T) {
		_, err := svc.UploadMaterial(ctx, models.UploadRequest{FileName: "a.pdf", Data: []byte("x"), Title: "t", MaterialType: "pdf"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotAuthenticated))

		_, err = svc.CreateQuiz(ctx, models.CreateQuizRequest{Title: "q", QuizType: "mcq", Questions: []models.Question{{Prompt: "?"}}})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotAuthenticated))

		_, err = svc.SubmitQuizAttempt(ctx, models.QuizAttemptRequest{QuizID: 1}, models.FixedScore(10))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotAuthenticated))

		assert.True(t, dErrors.HasCode(svc.CreditProgress(ctx, 5), dErrors.CodeNotAuthenticated))

		recorded, err := svc.RecordStudySession(ctx, models.StudySessionRequest{SessionType: "read", DurationSeconds: 60})
		assert.Nil(t, recorded)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotAuthenticated))
	})

	t.Run("reads are empty", func(t *testing.T) {
		materials := svc.ListMaterials(ctx)
		assert.NotNil(t, materials)
		assert.Empty(t, materials)
		assert.Empty(t, svc.ListGeneratedContent(ctx, models.ContentFilter{}))
		assert.Empty(t, svc.ListAnalytics(ctx, 0))
		assert.Empty(t, svc.ListAchievements(ctx))
	})
}

func TestUploadStorageFailureCreatesNoRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	data := mocks.NewMockDataBackend(ctrl)
	data.EXPECT().Upload(gomock.Any(), gomock.Any()).Return(backend.Reject("Payload too large", nil))
	svc := New(&stubSessions{identity: &backend.Identity{ID: ownerID}}, data, WithLogger(discardLogger()))

	_, err := svc.UploadMaterial(context.Background(), models.UploadRequest{
		FileName: "notes.pdf", Data: []byte("%PDF"), Title: "Notes", MaterialType: "pdf",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBackendRejected))
	assert.False(t, dErrors.HasCode(err, dErrors.CodePartialFailure))
	assert.Equal(t, "Payload too large", dErrors.UserMessage(err))
}

func TestUploadRecordFailureIsPartial(t *testing.T) {
	ctrl := gomock.NewController(t)
	data := mocks.NewMockDataBackend(ctrl)
	var stored backend.Object
	gomock.InOrder(
		data.EXPECT().Upload(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, obj backend.Object) error {
			stored = obj
			return nil
		}),
		data.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil, backend.Unavailable(errors.New("connection reset"))),
	)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	events := activity.NewInMemoryStore()
	svc := New(&stubSessions{identity: &backend.Identity{ID: ownerID}}, data,
		WithLogger(discardLogger()),
		WithMetrics(m),
		WithActivity(activity.NewPublisher(events)),
	)

	_, err := svc.UploadMaterial(context.Background(), models.UploadRequest{
		FileName: "notes.pdf", Data: []byte("%PDF"), Title: "Notes", MaterialType: "pdf",
	})
	require.True(t, dErrors.HasCode(err, dErrors.CodePartialFailure))
	var orphan *OrphanedUpload
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, stored.Path, orphan.Path)
	assert.Equal(t, DefaultBucket, orphan.Bucket)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTransport))

	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.OrphanedUploads))
	recorded, err := events.ListByUser(context.Background(), ownerID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, activity.ActionUploadOrphaned, recorded[0].Action)
	assert.Equal(t, stored.Path, recorded[0].Subject)
}

func TestAchievementFailureKeepsCredit(t *testing.T) {
	ctrl := gomock.NewController(t)
	data := mocks.NewMockDataBackend(ctrl)
	sessions := &stubSessions{identity: &backend.Identity{ID: ownerID}}
	gomock.InOrder(
		data.EXPECT().Call(gomock.Any(), "update_user_progress", map[string]any{"user_uuid": ownerID, "xp_to_add": 4}).Return(nil),
		data.EXPECT().Call(gomock.Any(), "check_achievements", map[string]any{"user_uuid": ownerID}).Return(backend.Unavailable(errors.New("timeout"))),
	)
	svc := New(sessions, data, WithLogger(discardLogger()))

	require.NoError(t, svc.CreditProgress(context.Background(), 4))
	assert.Equal(t, 1, sessions.loadCount())
}

func TestCreditFailureSkipsRefreshAndCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	data := mocks.NewMockDataBackend(ctrl)
	sessions := &stubSessions{identity: &backend.Identity{ID: ownerID}}
	data.EXPECT().Call(gomock.Any(), "update_user_progress", gomock.Any()).Return(backend.NotFound("profile missing"))
	svc := New(sessions, data, WithLogger(discardLogger()))

	err := svc.CreditProgress(context.Background(), 4)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	assert.Zero(t, sessions.loadCount())
	assert.True(t, dErrors.HasCode(svc.CreditProgress(context.Background(), -1), dErrors.CodeValidation))
}

// heldProfileRead parks the first armed user_profiles select after it has
// read the row, so a refresh is in flight while other calls run.
type heldProfileRead struct {
	*memory.Data
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (h *heldProfileRead) Execute(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	rows, err := h.Data.Execute(ctx, q)
	if q.Collection != "user_profiles" || q.Operation != backend.OpSelect {
		return rows, err
	}
	h.mu.Lock()
	hold := h.armed
	h.armed = false
	h.mu.Unlock()
	if hold {
		close(h.entered)
		<-h.release
	}
	return rows, err
}

func TestCreditRefreshDoesNotJoinEarlierProfileRead(t *testing.T) {
	ctx := context.Background()
	data := &heldProfileRead{
		Data:    memory.NewData(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	auth := memory.NewAuth(data.Data, memory.WithAutoConfirm(true), memory.WithBcryptCost(bcrypt.MinCost))
	sessions := session.New(auth, data, session.WithLogger(discardLogger()))
	t.Cleanup(sessions.Close)
	require.NoError(t, sessions.Start(ctx))
	_, err := sessions.SignUp(ctx, session.SignUpRequest{Email: "a@x.com", Password: "pw", FullName: "A"})
	require.NoError(t, err)
	_, err = sessions.SignIn(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	require.NoError(t, sessions.Settle(ctx))
	require.NotNil(t, sessions.CurrentProfile())
	require.Zero(t, sessions.CurrentProfile().XPPoints)

	data.mu.Lock()
	data.armed = true
	data.mu.Unlock()
	loaded := make(chan *session.Profile)
	go func() { loaded <- sessions.LoadProfile(ctx) }()
	<-data.entered

	svc := New(sessions, data, WithLogger(discardLogger()))
	require.NoError(t, svc.CreditProgress(ctx, 10))
	assert.Equal(t, int64(10), sessions.CurrentProfile().XPPoints, "credit must refresh past the earlier read")

	close(data.release)
	<-loaded
	assert.Equal(t, int64(10), sessions.CurrentProfile().XPPoints, "the earlier read must not overwrite the refresh")
}

func TestReadFailureDegradesToEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	data := mocks.NewMockDataBackend(ctrl)
	data.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil, backend.Unavailable(errors.New("down")))
	svc := New(&stubSessions{identity: &backend.Identity{ID: ownerID}}, data, WithLogger(discardLogger()))

	materials := svc.ListMaterials(context.Background())
	assert.NotNil(t, materials)
	assert.Empty(t, materials)
}

func TestObjectPath(t *testing.T) {
	at := time.UnixMilli(1_760_000_000_123)
	assert.Equal(t, "u1/1760000000123-abc.pdf", objectPath("u1", at, "abc", "Lecture.PDF"))
	assert.Equal(t, "u1/1760000000123-abc.bin", objectPath("u1", at, "abc", "README"))
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC), windowStart(now, 30))
}

// FacadeSuite runs the facade against the in-memory backend.
type FacadeSuite struct {
	suite.Suite
	ctx      context.Context
	data     *memory.Data
	sessions *stubSessions
	svc      *Service
}

func TestFacadeSuite(t *testing.T) {
	suite.Run(t, new(FacadeSuite))
}

func (s *FacadeSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), fixedNow)
	s.data = memory.NewData(memory.WithDataClock(func() time.Time { return fixedNow }))
	s.Require().NoError(s.data.Seed("user_profiles", backend.Row{
		"id": ownerID, "full_name": "A", "role": "student", "xp_points": int64(0),
	}))
	s.sessions = &stubSessions{identity: &backend.Identity{ID: ownerID, Email: "a@x.com"}}
	s.svc = New(s.sessions, s.data, WithLogger(discardLogger()))
}

func (s *FacadeSuite) xp() int64 {
	for _, row := range s.data.Rows("user_profiles") {
		if row.String("id") == ownerID {
			return row.Int64("xp_points")
		}
	}
	return -1
}

func (s *FacadeSuite) TestRecordStudySessionCreditsWholeMinutes() {
	materialID := int64(7)
	recorded, err := s.svc.RecordStudySession(s.ctx, models.StudySessionRequest{
		MaterialID: &materialID, SessionType: "read", DurationSeconds: 125,
	})
	s.Require().NoError(err)
	s.Require().NotNil(recorded)
	s.Equal(2, recorded.XPEarned)
	s.Equal(125, recorded.Duration)
	s.Equal(fixedNow, recorded.CompletedAt)
	s.Require().NotNil(recorded.MaterialID)
	s.Equal(int64(7), *recorded.MaterialID)

	s.Equal(int64(2), s.xp())
	s.Equal(1, s.sessions.loadCount())
}

func (s *FacadeSuite) TestRecordStudySessionSwallowsFailure() {
	s.sessions.identity = &backend.Identity{ID: "no-profile"}
	recorded, err := s.svc.RecordStudySession(s.ctx, models.StudySessionRequest{SessionType: "read", DurationSeconds: 600})
	s.NoError(err)
	s.NotNil(recorded, "the session is stored even when the credit fails")
	s.Zero(s.sessions.loadCount())
}

func (s *FacadeSuite) TestRecordStudySessionValidation() {
	recorded, err := s.svc.RecordStudySession(s.ctx, models.StudySessionRequest{DurationSeconds: 60})
	s.Nil(recorded)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Empty(s.data.Rows(models.CollectionStudySessions))
	s.Equal(int64(0), s.xp())
}

func (s *FacadeSuite) TestUploadMaterial() {
	material, err := s.svc.UploadMaterial(s.ctx, models.UploadRequest{
		FileName: "cells.pdf", Data: []byte("%PDF-1.7"), Title: " Cells ", Description: "Chapter 1", MaterialType: "pdf",
	})
	s.Require().NoError(err)
	s.Equal("Cells", material.Title)
	s.Equal(models.ProcessingPending, material.ProcessingStatus)
	s.Regexp(`^`+ownerID+`/\d+-[0-9a-f-]{36}\.pdf$`, material.FilePath)

	obj, ok := s.data.Object(DefaultBucket, material.FilePath)
	s.Require().True(ok)
	s.Equal([]byte("%PDF-1.7"), obj.Data)
	s.Equal("application/pdf", obj.ContentType)
}

func (s *FacadeSuite) TestConcurrentUploadsGetDistinctPaths() {
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.svc.UploadMaterial(s.ctx, models.UploadRequest{
				FileName: "same.pdf", Data: []byte{byte(i)}, Title: "Same", MaterialType: "pdf",
			})
		}()
	}
	wg.Wait()
	s.NoError(errs[0])
	s.NoError(errs[1])

	paths := s.data.ObjectPaths(DefaultBucket)
	s.Len(paths, 2)
	s.NotEqual(paths[0], paths[1])
	s.Len(s.svc.ListMaterials(s.ctx), 2)
}

func (s *FacadeSuite) TestUploadValidation() {
	_, err := s.svc.UploadMaterial(s.ctx, models.UploadRequest{FileName: "a.pdf", Title: "x", MaterialType: "pdf"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Empty(s.data.ObjectPaths(DefaultBucket))
}

func (s *FacadeSuite) TestListMaterialsNewestFirstAndOwned() {
	s.Require().NoError(s.data.Seed(models.CollectionMaterials,
		backend.Row{"user_id": ownerID, "title": "old", "created_at": fixedNow.Add(-2 * time.Hour)},
		backend.Row{"user_id": ownerID, "title": "new", "created_at": fixedNow.Add(-time.Hour)},
		backend.Row{"user_id": "someone-else", "title": "theirs", "created_at": fixedNow},
	))

	materials := s.svc.ListMaterials(s.ctx)
	s.Require().Len(materials, 2)
	s.Equal("new", materials[0].Title)
	s.Equal("old", materials[1].Title)
}

func (s *FacadeSuite) TestListGeneratedContentFilters() {
	s.Require().NoError(s.data.Seed(models.CollectionGeneratedContent,
		backend.Row{"user_id": ownerID, "material_id": int64(1), "content_type": "summary", "content": map[string]any{"text": "s1"}, "created_at": fixedNow.Add(-3 * time.Minute)},
		backend.Row{"user_id": ownerID, "material_id": int64(1), "content_type": "flashcards", "created_at": fixedNow.Add(-2 * time.Minute)},
		backend.Row{"user_id": ownerID, "material_id": int64(2), "content_type": "summary", "created_at": fixedNow.Add(-time.Minute)},
	))
	one := int64(1)

	s.Len(s.svc.ListGeneratedContent(s.ctx, models.ContentFilter{}), 3)
	s.Len(s.svc.ListGeneratedContent(s.ctx, models.ContentFilter{MaterialID: &one}), 2)
	s.Len(s.svc.ListGeneratedContent(s.ctx, models.ContentFilter{ContentType: "summary"}), 2)

	both := s.svc.ListGeneratedContent(s.ctx, models.ContentFilter{MaterialID: &one, ContentType: "summary"})
	s.Require().Len(both, 1)
	s.Equal("s1", both[0].Content["text"])
}

func (s *FacadeSuite) TestQuizAttemptCreditsDoubleScore() {
	quiz, err := s.svc.CreateQuiz(s.ctx, models.CreateQuizRequest{
		Title: "Cells", QuizType: "multiple_choice",
		Questions: []models.Question{{Prompt: "Powerhouse?", Options: []string{"mitochondria", "ribosome"}, Answer: "mitochondria"}},
	})
	s.Require().NoError(err)
	s.Require().Len(quiz.Questions, 1)
	s.Equal("Powerhouse?", quiz.Questions[0].Prompt)
	s.Nil(quiz.MaterialID)

	var gotQuiz int64
	scorer := models.ScoreFunc(func(_ context.Context, quizID int64, answers []string) (int, error) {
		gotQuiz = quizID
		return 40, nil
	})
	attempt, err := s.svc.SubmitQuizAttempt(s.ctx, models.QuizAttemptRequest{
		QuizID: quiz.ID, Answers: []string{"mitochondria"}, ElapsedSeconds: 95,
	}, scorer)
	s.Require().NoError(err)
	s.Equal(quiz.ID, gotQuiz)
	s.Equal(40, attempt.Score)
	s.Equal(95, attempt.TimeTaken)
	s.Equal([]string{"mitochondria"}, attempt.Answers)
	s.Equal(int64(80), s.xp())
}

func (s *FacadeSuite) TestQuizAttemptRequiresScorer() {
	_, err := s.svc.SubmitQuizAttempt(s.ctx, models.QuizAttemptRequest{QuizID: 1}, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Empty(s.data.Rows(models.CollectionQuizAttempts))
}

func (s *FacadeSuite) TestListAnalyticsWindow() {
	day := func(daysAgo int) time.Time { return windowStart(fixedNow, daysAgo) }
	s.Require().NoError(s.data.Seed(models.CollectionAnalytics,
		backend.Row{"user_id": ownerID, "date": day(1), "study_minutes": 30},
		backend.Row{"user_id": ownerID, "date": day(7), "study_minutes": 20},
		backend.Row{"user_id": ownerID, "date": day(8), "study_minutes": 10},
		backend.Row{"user_id": ownerID, "date": day(40), "study_minutes": 5},
	))

	week := s.svc.ListAnalytics(s.ctx, 7)
	s.Require().Len(week, 2)
	s.Equal(day(1), week[0].Date)
	s.Equal(day(7), week[1].Date)

	s.Len(s.svc.ListAnalytics(s.ctx, 0), 3, "default window is 30 days")
}

func (s *FacadeSuite) TestListAchievementsJoinsDefinitions() {
	s.Require().NoError(s.data.Seed(models.CollectionAchievements,
		backend.Row{"id": int64(1), "name": "First Steps", "description": "Earn 10 XP", "icon": "star", "xp_reward": 1, "category": "xp"},
		backend.Row{"id": int64(2), "name": "Scholar", "description": "Earn 500 XP", "icon": "book", "xp_reward": 50, "category": "xp"},
	))
	s.Require().NoError(s.data.Seed(models.CollectionUserAchievements,
		backend.Row{"user_id": ownerID, "achievement_id": int64(1), "earned_at": fixedNow.Add(-time.Hour)},
		backend.Row{"user_id": ownerID, "achievement_id": int64(2), "earned_at": fixedNow},
	))

	unlocks := s.svc.ListAchievements(s.ctx)
	s.Require().Len(unlocks, 2)
	s.Require().NotNil(unlocks[0].Achievement)
	s.Equal("Scholar", unlocks[0].Achievement.Name)
	s.Equal(50, unlocks[0].Achievement.XPReward)
	s.Equal("First Steps", unlocks[1].Achievement.Name)
}
