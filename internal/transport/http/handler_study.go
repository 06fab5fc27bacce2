package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"studygenie/internal/study/models"
	dErrors "studygenie/pkg/domain-errors"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadSize = 50 << 20
)

// StudyService is the study facade as the HTTP layer uses it.
type StudyService interface {
	UploadMaterial(ctx context.Context, req models.UploadRequest) (*models.Material, error)
	ListMaterials(ctx context.Context) []models.Material
	ListGeneratedContent(ctx context.Context, filter models.ContentFilter) []models.GeneratedContent
	CreateQuiz(ctx context.Context, req models.CreateQuizRequest) (*models.Quiz, error)
	SubmitQuizAttempt(ctx context.Context, req models.QuizAttemptRequest, scorer models.Scorer) (*models.QuizAttempt, error)
	RecordStudySession(ctx context.Context, req models.StudySessionRequest) (*models.StudySession, error)
	CreditProgress(ctx context.Context, xp int) error
	ListAnalytics(ctx context.Context, windowDays int) []models.AnalyticsDay
	ListAchievements(ctx context.Context) []models.AchievementUnlock
}

// quizAttemptBody is a graded attempt. The client grades and sends the score.
type quizAttemptBody struct {
	Answers        []string `json:"answers"`
	ElapsedSeconds int      `json:"elapsed_seconds"`
	Score          int      `json:"score"`
}

type creditRequest struct {
	XP int `json:"xp"`
}

// StudyHandler serves the study facade.
type StudyHandler struct {
	logger *slog.Logger
	study  StudyService
}

// NewStudyHandler builds the handler.
func NewStudyHandler(study StudyService, logger *slog.Logger) *StudyHandler {
	return &StudyHandler{logger: logger, study: study}
}

// Register registers the study routes with the chi router.
func (h *StudyHandler) Register(r chi.Router) {
	r.Get("/materials", h.handleListMaterials)
	r.Post("/materials", h.handleUploadMaterial)
	r.Get("/content", h.handleListContent)
	r.Post("/quizzes", h.handleCreateQuiz)
	r.Post("/quizzes/{quizID}/attempts", h.handleSubmitAttempt)
	r.Post("/study-sessions", h.handleRecordStudySession)
	r.Post("/progress", h.handleCreditProgress)
	r.Get("/analytics", h.handleListAnalytics)
	r.Get("/achievements", h.handleListAchievements)
}

func (h *StudyHandler) handleUploadMaterial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.logger.WarnContext(ctx, "invalid upload form", "error", err)
		WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "expected a multipart form with a file"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "file is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "could not read the uploaded file"))
		return
	}

	material, err := h.study.UploadMaterial(ctx, models.UploadRequest{
		FileName:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Data:         data,
		Title:        r.FormValue("title"),
		Description:  r.FormValue("description"),
		MaterialType: r.FormValue("material_type"),
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, material)
}

func (h *StudyHandler) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.study.ListMaterials(r.Context()))
}

func (h *StudyHandler) handleListContent(w http.ResponseWriter, r *http.Request) {
	var filter models.ContentFilter
	if raw := r.URL.Query().Get("material_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "material_id must be an integer"))
			return
		}
		filter.MaterialID = &id
	}
	filter.ContentType = r.URL.Query().Get("content_type")
	writeJSON(w, http.StatusOK, h.study.ListGeneratedContent(r.Context(), filter))
}

func (h *StudyHandler) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	var req models.CreateQuizRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	quiz, err := h.study.CreateQuiz(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *StudyHandler) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseInt(chi.URLParam(r, "quizID"), 10, 64)
	if err != nil {
		WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "quiz id must be an integer"))
		return
	}
	var body quizAttemptBody
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	attempt, err := h.study.SubmitQuizAttempt(r.Context(), models.QuizAttemptRequest{
		QuizID:         quizID,
		Answers:        body.Answers,
		ElapsedSeconds: body.ElapsedSeconds,
	}, models.FixedScore(body.Score))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

func (h *StudyHandler) handleRecordStudySession(w http.ResponseWriter, r *http.Request) {
	var req models.StudySessionRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	recorded, err := h.study.RecordStudySession(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	if recorded == nil {
		// Recording is best effort; the failure is already logged.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusCreated, recorded)
}

func (h *StudyHandler) handleCreditProgress(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.study.CreditProgress(r.Context(), req.XP); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StudyHandler) handleListAnalytics(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "days must be a non-negative integer"))
			return
		}
		days = n
	}
	writeJSON(w, http.StatusOK, h.study.ListAnalytics(r.Context(), days))
}

func (h *StudyHandler) handleListAchievements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.study.ListAchievements(r.Context()))
}
