// Package models holds the study records the facade reads and writes, plus the
// request shapes it validates.
package models

import (
	"context"
	"time"

	"studygenie/internal/backend"
)

// Collection names.
const (
	CollectionMaterials        = "study_materials"
	CollectionGeneratedContent = "generated_content"
	CollectionQuizzes          = "quizzes"
	CollectionQuizAttempts     = "quiz_attempts"
	CollectionStudySessions    = "study_sessions"
	CollectionAnalytics        = "learning_analytics"
	CollectionAchievements     = "achievements"
	CollectionUserAchievements = "user_achievements"
)

// ProcessingPending is the status of a freshly uploaded material.
const ProcessingPending = "pending"

type Material struct {
	ID               int64     `json:"id"`
	UserID           string    `json:"user_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	FilePath         string    `json:"file_path"`
	MaterialType     string    `json:"material_type"`
	ProcessingStatus string    `json:"processing_status"`
	CreatedAt        time.Time `json:"created_at"`
}

func MaterialFromRow(row backend.Row) Material {
	return Material{
		ID:               row.Int64("id"),
		UserID:           row.String("user_id"),
		Title:            row.String("title"),
		Description:      row.String("description"),
		FilePath:         row.String("file_path"),
		MaterialType:     row.String("material_type"),
		ProcessingStatus: row.String("processing_status"),
		CreatedAt:        row.Time("created_at"),
	}
}

// GeneratedContent is produced offline from a material (summaries,
// flashcards). Content is kept as decoded JSON.
type GeneratedContent struct {
	ID          int64          `json:"id"`
	UserID      string         `json:"user_id"`
	MaterialID  int64          `json:"material_id"`
	ContentType string         `json:"content_type"`
	Content     map[string]any `json:"content,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func GeneratedContentFromRow(row backend.Row) (GeneratedContent, error) {
	out := GeneratedContent{
		ID:          row.Int64("id"),
		UserID:      row.String("user_id"),
		MaterialID:  row.Int64("material_id"),
		ContentType: row.String("content_type"),
		CreatedAt:   row.Time("created_at"),
	}
	err := row.Decode("content", &out.Content)
	return out, err
}

type Question struct {
	Prompt  string   `json:"prompt" validate:"required"`
	Options []string `json:"options,omitempty"`
	Answer  string   `json:"answer,omitempty"`
}

type Quiz struct {
	ID          int64      `json:"id"`
	UserID      string     `json:"user_id"`
	MaterialID  *int64     `json:"material_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	QuizType    string     `json:"quiz_type"`
	Questions   []Question `json:"questions"`
	CreatedAt   time.Time  `json:"created_at"`
}

// questionDocument is the stored shape of the questions column.
type questionDocument struct {
	Questions []Question `json:"questions"`
}

// QuestionsDocument wraps questions the way the quizzes table stores them.
func QuestionsDocument(questions []Question) map[string]any {
	return map[string]any{"questions": questions}
}

func QuizFromRow(row backend.Row) (Quiz, error) {
	out := Quiz{
		ID:          row.Int64("id"),
		UserID:      row.String("user_id"),
		MaterialID:  optionalID(row, "material_id"),
		Title:       row.String("title"),
		Description: row.String("description"),
		QuizType:    row.String("quiz_type"),
		CreatedAt:   row.Time("created_at"),
	}
	var doc questionDocument
	if err := row.Decode("questions", &doc); err != nil {
		return out, err
	}
	out.Questions = doc.Questions
	return out, nil
}

type QuizAttempt struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	QuizID    int64     `json:"quiz_id"`
	Answers   []string  `json:"answers"`
	Score     int       `json:"score"`
	TimeTaken int       `json:"time_taken"`
	CreatedAt time.Time `json:"created_at"`
}

// AnswersDocument wraps answers the way the quiz_attempts table stores them.
func AnswersDocument(answers []string) map[string]any {
	return map[string]any{"answers": answers}
}

func QuizAttemptFromRow(row backend.Row) (QuizAttempt, error) {
	out := QuizAttempt{
		ID:        row.Int64("id"),
		UserID:    row.String("user_id"),
		QuizID:    row.Int64("quiz_id"),
		Score:     row.Int("score"),
		TimeTaken: row.Int("time_taken"),
		CreatedAt: row.Time("created_at"),
	}
	var doc struct {
		Answers []string `json:"answers"`
	}
	if err := row.Decode("answers", &doc); err != nil {
		return out, err
	}
	out.Answers = doc.Answers
	return out, nil
}

type StudySession struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	MaterialID  *int64    `json:"material_id,omitempty"`
	SessionType string    `json:"session_type"`
	Duration    int       `json:"duration"`
	XPEarned    int       `json:"xp_earned"`
	CompletedAt time.Time `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func StudySessionFromRow(row backend.Row) StudySession {
	return StudySession{
		ID:          row.Int64("id"),
		UserID:      row.String("user_id"),
		MaterialID:  optionalID(row, "material_id"),
		SessionType: row.String("session_type"),
		Duration:    row.Int("duration"),
		XPEarned:    row.Int("xp_earned"),
		CompletedAt: row.Time("completed_at"),
		CreatedAt:   row.Time("created_at"),
	}
}

// XPForDuration is one point per full minute studied.
func XPForDuration(seconds int) int {
	if seconds <= 0 {
		return 0
	}
	return seconds / 60
}

// XPForScore is two points per quiz score point.
func XPForScore(score int) int {
	if score <= 0 {
		return 0
	}
	return score * 2
}

type AnalyticsDay struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	Date         time.Time `json:"date"`
	StudyMinutes int       `json:"study_minutes"`
	QuizzesTaken int       `json:"quizzes_taken"`
	XPEarned     int       `json:"xp_earned"`
}

func AnalyticsDayFromRow(row backend.Row) AnalyticsDay {
	return AnalyticsDay{
		ID:           row.Int64("id"),
		UserID:       row.String("user_id"),
		Date:         row.Time("date"),
		StudyMinutes: row.Int("study_minutes"),
		QuizzesTaken: row.Int("quizzes_taken"),
		XPEarned:     row.Int("xp_earned"),
	}
}

type Achievement struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	XPReward    int    `json:"xp_reward"`
	Category    string `json:"category"`
}

// AchievementColumns are the definition columns joined into unlocks.
var AchievementColumns = []string{"name", "description", "icon", "xp_reward", "category"}

type AchievementUnlock struct {
	ID            int64        `json:"id"`
	UserID        string       `json:"user_id"`
	AchievementID int64        `json:"achievement_id"`
	EarnedAt      time.Time    `json:"earned_at"`
	Achievement   *Achievement `json:"achievement,omitempty"`
}

func AchievementUnlockFromRow(row backend.Row) AchievementUnlock {
	out := AchievementUnlock{
		ID:            row.Int64("id"),
		UserID:        row.String("user_id"),
		AchievementID: row.Int64("achievement_id"),
		EarnedAt:      row.Time("earned_at"),
	}
	if def := row.Row(CollectionAchievements); def != nil {
		out.Achievement = &Achievement{
			Name:        def.String("name"),
			Description: def.String("description"),
			Icon:        def.String("icon"),
			XPReward:    def.Int("xp_reward"),
			Category:    def.String("category"),
		}
	}
	return out
}

func optionalID(row backend.Row, key string) *int64 {
	if row[key] == nil {
		return nil
	}
	id := row.Int64(key)
	return &id
}

// UploadRequest is a study material upload.
type UploadRequest struct {
	FileName     string `json:"file_name" validate:"required,max=255"`
	ContentType  string `json:"content_type" validate:"max=255"`
	Data         []byte `json:"-" validate:"required,min=1"`
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=2000"`
	MaterialType string `json:"material_type" validate:"required,max=64"`
}

// ContentFilter narrows generated content. Both fields are optional and
// combine with AND.
type ContentFilter struct {
	MaterialID  *int64 `json:"material_id,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type CreateQuizRequest struct {
	MaterialID  *int64     `json:"material_id,omitempty"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	QuizType    string     `json:"quiz_type" validate:"required,max=64"`
	Questions   []Question `json:"questions" validate:"required,min=1,dive"`
}

type QuizAttemptRequest struct {
	QuizID         int64    `json:"quiz_id" validate:"required,gt=0"`
	Answers        []string `json:"answers"`
	ElapsedSeconds int      `json:"elapsed_seconds" validate:"gte=0"`
}

type StudySessionRequest struct {
	MaterialID      *int64 `json:"material_id,omitempty"`
	SessionType     string `json:"session_type" validate:"required,max=64"`
	DurationSeconds int    `json:"duration_seconds" validate:"gte=0"`
}

// Scorer grades a quiz attempt. Grading lives outside the facade.
type Scorer interface {
	Score(ctx context.Context, quizID int64, answers []string) (int, error)
}

// ScoreFunc adapts a function to Scorer.
type ScoreFunc func(ctx context.Context, quizID int64, answers []string) (int, error)

func (f ScoreFunc) Score(ctx context.Context, quizID int64, answers []string) (int, error) {
	return f(ctx, quizID, answers)
}

// FixedScore is a Scorer for scores computed elsewhere, such as by the client
// that graded the attempt.
type FixedScore int

func (s FixedScore) Score(context.Context, int64, []string) (int, error) {
	return int(s), nil
}
