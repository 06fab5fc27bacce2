// Package service is the study facade: materials, generated content, quizzes,
// study sessions, progress, analytics and achievements for the signed-in user.
//
// Every operation checks the session first. Writes without a session fail
// with CodeNotAuthenticated and reads return nothing; neither touches the
// backend. Read failures degrade to empty results.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"studygenie/internal/activity"
	"studygenie/internal/backend"
	"studygenie/internal/platform/metrics"
	"studygenie/internal/session"
	"studygenie/internal/study/models"
	dErrors "studygenie/pkg/domain-errors"
	"studygenie/pkg/requestcontext"
)

const (
	// DefaultBucket receives uploaded material files.
	DefaultBucket = "study-materials"
	// DefaultAnalyticsWindow is the analytics look-back in days.
	DefaultAnalyticsWindow = 30

	procUpdateUserProgress = "update_user_progress"
	procCheckAchievements  = "check_achievements"
)

// Sessions is the part of the session manager the facade needs.
type Sessions interface {
	CurrentIdentity() *backend.Identity
	RefreshProfile(ctx context.Context) *session.Profile
}

// ActivityRecorder receives activity events.
type ActivityRecorder interface {
	Record(ctx context.Context, event activity.Event)
}

// OrphanedUpload reports a file that was stored while its metadata record was
// not. The object is kept for offline cleanup.
type OrphanedUpload struct {
	Bucket string
	Path   string
	Err    error
}

func (e *OrphanedUpload) Error() string {
	return fmt.Sprintf("material record missing for stored file %s/%s: %v", e.Bucket, e.Path, e.Err)
}

func (e *OrphanedUpload) Unwrap() error {
	return e.Err
}

// Service is the study facade.
type Service struct {
	sessions Sessions
	data     backend.DataBackend
	logger   *slog.Logger
	metrics  *metrics.Metrics
	activity ActivityRecorder
	tracer   trace.Tracer
	validate *validator.Validate
	bucket   string
	newID    func() string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithActivity(recorder ActivityRecorder) Option {
	return func(s *Service) {
		s.activity = recorder
	}
}

// WithBucket overrides the storage bucket for uploads.
func WithBucket(bucket string) Option {
	return func(s *Service) {
		if bucket != "" {
			s.bucket = bucket
		}
	}
}

// WithIDGenerator replaces the random suffix source for upload paths.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New constructs the facade.
func New(sessions Sessions, data backend.DataBackend, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		data:     data,
		logger:   slog.Default(),
		tracer:   otel.Tracer("studygenie/study"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		bucket:   DefaultBucket,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requireOwner returns the signed-in identity id or CodeNotAuthenticated.
func (s *Service) requireOwner() (string, error) {
	identity := s.sessions.CurrentIdentity()
	if identity == nil {
		return "", dErrors.New(dErrors.CodeNotAuthenticated, "authentication required")
	}
	return identity.ID, nil
}

// owner returns the signed-in identity id for reads.
func (s *Service) owner() (string, bool) {
	identity := s.sessions.CurrentIdentity()
	if identity == nil {
		return "", false
	}
	return identity.ID, true
}

func (s *Service) start(ctx context.Context, operation string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "study."+operation)
}

// failed records err on span, counts it and returns the domain error.
func (s *Service) failed(ctx context.Context, span trace.Span, operation string, err error) error {
	err = backend.Translate(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, operation)
	s.metrics.IncrementBackendFailure(operation, string(dErrors.CodeOf(err)))
	s.logger.ErrorContext(ctx, "study operation failed", "operation", operation, "error", err)
	return err
}

func (s *Service) invalid(err error, message string) error {
	return dErrors.Wrap(err, dErrors.CodeValidation, message)
}

func (s *Service) record(ctx context.Context, event activity.Event) {
	if s.activity == nil {
		return
	}
	s.activity.Record(ctx, event)
}

// UploadMaterial stores the file under the owner's prefix, then creates the
// material record. A failed record insert leaves the file in place and returns
// CodePartialFailure wrapping *OrphanedUpload.
func (s *Service) UploadMaterial(ctx context.Context, req models.UploadRequest) (*models.Material, error) {
	userID, err := s.requireOwner()
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, s.invalid(err, "a file, title and material type are required")
	}

	ctx, span := s.start(ctx, "upload_material")
	defer span.End()

	now := requestcontext.Now(ctx)
	path := objectPath(userID, now, s.newID(), req.FileName)
	span.SetAttributes(attribute.String("study.object_path", path))

	contentType := req.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(req.FileName))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.data.Upload(ctx, backend.Object{
		Bucket:      s.bucket,
		Path:        path,
		ContentType: contentType,
		Data:        req.Data,
	}); err != nil {
		return nil, s.failed(ctx, span, "upload_material", err)
	}

	rows, err := s.data.Execute(ctx, backend.Query{
		Collection: models.CollectionMaterials,
		Operation:  backend.OpInsert,
		Values: backend.Row{
			"user_id":           userID,
			"title":             strings.TrimSpace(req.Title),
			"description":       req.Description,
			"file_path":         path,
			"material_type":     req.MaterialType,
			"processing_status": models.ProcessingPending,
		},
	})
	if err == nil && len(rows) == 0 {
		err = errors.New("insert returned no row")
	}
	if err != nil {
		orphan := &OrphanedUpload{Bucket: s.bucket, Path: path, Err: backend.Translate(err)}
		span.RecordError(orphan)
		span.SetStatus(codes.Error, "orphaned upload")
		s.metrics.IncrementOrphanedUploads()
		s.logger.ErrorContext(ctx, "material record failed after upload, file kept",
			"error", err, "bucket", s.bucket, "path", path, "user_id", userID)
		s.record(ctx, activity.Event{
			UserID:     userID,
			Action:     activity.ActionUploadOrphaned,
			Subject:    path,
			Attributes: map[string]string{"bucket": s.bucket, "title": req.Title},
		})
		return nil, dErrors.Wrap(orphan, dErrors.CodePartialFailure, "the file was uploaded but the material could not be saved")
	}

	material := models.MaterialFromRow(rows[0])
	s.record(ctx, activity.Event{UserID: userID, Action: activity.ActionMaterialUploaded, Subject: path})
	return &material, nil
}

// objectPath builds <owner>/<unix millis>-<id>.<ext>. The random id keeps
// uploads in the same millisecond apart.
func objectPath(userID string, now time.Time, id, fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%d-%s.%s", userID, now.UnixMilli(), id, ext)
}

// ListMaterials returns the owner's materials, newest first.
func (s *Service) ListMaterials(ctx context.Context) []models.Material {
	userID, ok := s.owner()
	if !ok {
		return []models.Material{}
	}
	rows := s.selectRows(ctx, "list_materials", backend.Query{
		Collection: models.CollectionMaterials,
		Filters:    []backend.Filter{backend.Eq("user_id", userID)},
		Orders:     []backend.Order{backend.Desc("created_at")},
	})
	out := make([]models.Material, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.MaterialFromRow(row))
	}
	return out
}

// ListGeneratedContent returns the owner's generated content narrowed by
// filter, newest first.
func (s *Service) ListGeneratedContent(ctx context.Context, filter models.ContentFilter) []models.GeneratedContent {
	userID, ok := s.owner()
	if !ok {
		return []models.GeneratedContent{}
	}
	filters := []backend.Filter{backend.Eq("user_id", userID)}
	if filter.MaterialID != nil {
		filters = append(filters, backend.Eq("material_id", *filter.MaterialID))
	}
	if filter.ContentType != "" {
		filters = append(filters, backend.Eq("content_type", filter.ContentType))
	}
	rows := s.selectRows(ctx, "list_generated_content", backend.Query{
		Collection: models.CollectionGeneratedContent,
		Filters:    filters,
		Orders:     []backend.Order{backend.Desc("created_at")},
	})
	out := make([]models.GeneratedContent, 0, len(rows))
	for _, row := range rows {
		content, err := models.GeneratedContentFromRow(row)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable generated content", "error", err, "id", content.ID)
			continue
		}
		out = append(out, content)
	}
	return out
}

// CreateQuiz stores a quiz with its questions embedded.
func (s *Service) CreateQuiz(ctx context.Context, req models.CreateQuizRequest) (*models.Quiz, error) {
	userID, err := s.requireOwner()
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, s.invalid(err, "a title, quiz type and at least one question are required")
	}

	ctx, span := s.start(ctx, "create_quiz")
	defer span.End()

	values := backend.Row{
		"user_id":     userID,
		"title":       strings.TrimSpace(req.Title),
		"description": req.Description,
		"quiz_type":   req.QuizType,
		"questions":   models.QuestionsDocument(req.Questions),
	}
	if req.MaterialID != nil {
		values["material_id"] = *req.MaterialID
	}
	row, err := s.insertOne(ctx, models.CollectionQuizzes, values)
	if err != nil {
		return nil, s.failed(ctx, span, "create_quiz", err)
	}
	quiz, err := models.QuizFromRow(row)
	if err != nil {
		return nil, s.failed(ctx, span, "create_quiz", err)
	}
	s.record(ctx, activity.Event{UserID: userID, Action: activity.ActionQuizCreated, Subject: fmt.Sprint(quiz.ID)})
	return &quiz, nil
}

// SubmitQuizAttempt scores the answers with scorer, stores the attempt and
// credits score*2 XP. A failed credit is logged and does not fail the attempt.
func (s *Service) SubmitQuizAttempt(ctx context.Context, req models.QuizAttemptRequest, scorer models.Scorer) (*models.QuizAttempt, error) {
	userID, err := s.requireOwner()
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, s.invalid(err, "a quiz id and a non-negative elapsed time are required")
	}
	if scorer == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "a scorer is required")
	}

	ctx, span := s.start(ctx, "submit_quiz_attempt")
	defer span.End()
	span.SetAttributes(attribute.Int64("study.quiz_id", req.QuizID))

	score, err := scorer.Score(ctx, req.QuizID, req.Answers)
	if err != nil {
		return nil, s.failed(ctx, span, "score_quiz_attempt", dErrors.Wrap(err, dErrors.CodeInternal, "the attempt could not be scored"))
	}
	answers := req.Answers
	if answers == nil {
		answers = []string{}
	}
	row, err := s.insertOne(ctx, models.CollectionQuizAttempts, backend.Row{
		"user_id":    userID,
		"quiz_id":    req.QuizID,
		"answers":    models.AnswersDocument(answers),
		"score":      score,
		"time_taken": req.ElapsedSeconds,
	})
	if err != nil {
		return nil, s.failed(ctx, span, "submit_quiz_attempt", err)
	}
	attempt, err := models.QuizAttemptFromRow(row)
	if err != nil {
		return nil, s.failed(ctx, span, "submit_quiz_attempt", err)
	}
	s.record(ctx, activity.Event{
		UserID:     userID,
		Action:     activity.ActionQuizAttempted,
		Subject:    fmt.Sprint(req.QuizID),
		Attributes: map[string]string{"score": fmt.Sprint(score)},
	})

	if err := s.CreditProgress(ctx, models.XPForScore(score)); err != nil {
		s.logger.WarnContext(ctx, "xp credit after quiz attempt failed", "error", err, "quiz_id", req.QuizID)
	}
	return &attempt, nil
}

// RecordStudySession stores a session worth floor(duration/60) XP and credits
// it. Only a missing session or an invalid request is returned as an error.
// Backend failures are logged and yield a nil session with a nil error.
func (s *Service) RecordStudySession(ctx context.Context, req models.StudySessionRequest) (*models.StudySession, error) {
	userID, err := s.requireOwner()
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, s.invalid(err, "session type and a non-negative duration are required")
	}

	ctx, span := s.start(ctx, "record_study_session")
	defer span.End()

	xp := models.XPForDuration(req.DurationSeconds)
	values := backend.Row{
		"user_id":      userID,
		"session_type": req.SessionType,
		"duration":     req.DurationSeconds,
		"xp_earned":    xp,
		"completed_at": requestcontext.Now(ctx).UTC(),
	}
	if req.MaterialID != nil {
		values["material_id"] = *req.MaterialID
	}
	row, err := s.insertOne(ctx, models.CollectionStudySessions, values)
	if err != nil {
		_ = s.failed(ctx, span, "record_study_session", err)
		return nil, nil
	}
	recorded := models.StudySessionFromRow(row)
	s.record(ctx, activity.Event{
		UserID:     userID,
		Action:     activity.ActionStudySession,
		Subject:    req.SessionType,
		Attributes: map[string]string{"duration": fmt.Sprint(req.DurationSeconds)},
	})

	if err := s.CreditProgress(ctx, xp); err != nil {
		s.logger.WarnContext(ctx, "xp credit after study session failed", "error", err)
	}
	return &recorded, nil
}

// CreditProgress adds xp through the backend's atomic increment, refreshes
// the cached profile and runs the achievement check. The achievement check
// runs on its own: its failure is logged and never undoes the credit.
func (s *Service) CreditProgress(ctx context.Context, xp int) error {
	userID, err := s.requireOwner()
	if err != nil {
		return err
	}
	if xp < 0 {
		return dErrors.New(dErrors.CodeValidation, "xp must not be negative")
	}

	ctx, span := s.start(ctx, "credit_progress")
	defer span.End()
	span.SetAttributes(attribute.Int("study.xp", xp))

	if err := s.data.Call(ctx, procUpdateUserProgress, map[string]any{
		"user_uuid": userID,
		"xp_to_add": xp,
	}); err != nil {
		return s.failed(ctx, span, "credit_progress", err)
	}
	s.metrics.AddXPCredited(xp)
	s.record(ctx, activity.Event{
		UserID:     userID,
		Action:     activity.ActionProgressCredited,
		Attributes: map[string]string{"xp": fmt.Sprint(xp)},
	})

	s.sessions.RefreshProfile(ctx)

	if err := s.data.Call(ctx, procCheckAchievements, map[string]any{"user_uuid": userID}); err != nil {
		_ = s.failed(ctx, span, "check_achievements", err)
	}
	return nil
}

// ListAnalytics returns the owner's daily analytics for the last windowDays
// days (30 when not positive), newest first.
func (s *Service) ListAnalytics(ctx context.Context, windowDays int) []models.AnalyticsDay {
	userID, ok := s.owner()
	if !ok {
		return []models.AnalyticsDay{}
	}
	if windowDays <= 0 {
		windowDays = DefaultAnalyticsWindow
	}
	rows := s.selectRows(ctx, "list_analytics", backend.Query{
		Collection: models.CollectionAnalytics,
		Filters: []backend.Filter{
			backend.Eq("user_id", userID),
			backend.Gte("date", windowStart(requestcontext.Now(ctx), windowDays)),
		},
		Orders: []backend.Order{backend.Desc("date")},
	})
	out := make([]models.AnalyticsDay, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.AnalyticsDayFromRow(row))
	}
	return out
}

// windowStart is the UTC calendar date windowDays before now.
func windowStart(now time.Time, windowDays int) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -windowDays)
}

// ListAchievements returns the owner's unlocks joined with their definitions,
// newest first.
func (s *Service) ListAchievements(ctx context.Context) []models.AchievementUnlock {
	userID, ok := s.owner()
	if !ok {
		return []models.AchievementUnlock{}
	}
	rows := s.selectRows(ctx, "list_achievements", backend.Query{
		Collection: models.CollectionUserAchievements,
		Filters:    []backend.Filter{backend.Eq("user_id", userID)},
		Orders:     []backend.Order{backend.Desc("earned_at")},
		Embeds: []backend.Embed{{
			Collection: models.CollectionAchievements,
			LocalKey:   "achievement_id",
			ForeignKey: "id",
			Columns:    models.AchievementColumns,
		}},
	})
	out := make([]models.AchievementUnlock, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.AchievementUnlockFromRow(row))
	}
	return out
}

// selectRows runs a read and degrades failures to no rows.
func (s *Service) selectRows(ctx context.Context, operation string, q backend.Query) []backend.Row {
	ctx, span := s.start(ctx, operation)
	defer span.End()
	rows, err := s.data.Execute(ctx, q)
	if err != nil {
		_ = s.failed(ctx, span, operation, err)
		return nil
	}
	span.SetAttributes(attribute.Int("study.rows", len(rows)))
	return rows
}

func (s *Service) insertOne(ctx context.Context, collection string, values backend.Row) (backend.Row, error) {
	rows, err := s.data.Execute(ctx, backend.Query{
		Collection: collection,
		Operation:  backend.OpInsert,
		Values:     values,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, dErrors.New(dErrors.CodeInternal, "insert returned no row")
	}
	return rows[0], nil
}
