package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"studygenie/internal/app"
	"studygenie/internal/study/models"
	dErrors "studygenie/pkg/domain-errors"
)

const dateTimeLayout = "2006-01-02 15:04"

func (r *runner) materialsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "materials",
		Aliases: []string{"material"},
		Short:   "Upload and list study materials",
	}

	var title, description, materialType, contentType string
	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file as a study material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			if materialType == "" {
				materialType = strings.TrimPrefix(strings.ToLower(filepath.Ext(args[0])), ".")
			}
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				material, err := a.Study.UploadMaterial(ctx, models.UploadRequest{
					FileName:     filepath.Base(args[0]),
					ContentType:  contentType,
					Data:         data,
					Title:        title,
					Description:  description,
					MaterialType: materialType,
				})
				if err != nil {
					return err
				}
				r.printer.Success("Uploaded %s as material %d", r.printer.Bold(material.Title), material.ID)
				r.printer.Print("Stored at %s", r.printer.Dim(material.FilePath))
				return nil
			})
		},
	}
	upload.Flags().StringVar(&title, "title", "", "title (default: file name)")
	upload.Flags().StringVar(&description, "description", "", "description")
	upload.Flags().StringVar(&materialType, "type", "", "material type (default: file extension)")
	upload.Flags().StringVar(&contentType, "content-type", "", "MIME type (default: detected from extension)")

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your materials, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := requireSession(a); err != nil {
					return err
				}
				rows := [][]string{}
				for _, m := range a.Study.ListMaterials(ctx) {
					rows = append(rows, []string{
						strconv.FormatInt(m.ID, 10), m.Title, m.MaterialType, m.ProcessingStatus,
						m.CreatedAt.Local().Format(dateTimeLayout),
					})
				}
				r.printer.Table([]string{"ID", "TITLE", "TYPE", "STATUS", "CREATED"}, rows)
				return nil
			})
		},
	}

	cmd.AddCommand(upload, list)
	return cmd
}

func (r *runner) contentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Browse generated content",
	}
	var materialID int64
	var contentType string
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List generated content, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := models.ContentFilter{ContentType: contentType}
			if cmd.Flags().Changed("material-id") {
				filter.MaterialID = &materialID
			}
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := requireSession(a); err != nil {
					return err
				}
				rows := [][]string{}
				for _, c := range a.Study.ListGeneratedContent(ctx, filter) {
					rows = append(rows, []string{
						strconv.FormatInt(c.ID, 10), strconv.FormatInt(c.MaterialID, 10), c.ContentType,
						c.CreatedAt.Local().Format(dateTimeLayout),
					})
				}
				r.printer.Table([]string{"ID", "MATERIAL", "TYPE", "CREATED"}, rows)
				return nil
			})
		},
	}
	list.Flags().Int64Var(&materialID, "material-id", 0, "only content generated from this material")
	list.Flags().StringVar(&contentType, "type", "", "only this content type")
	cmd.AddCommand(list)
	return cmd
}

func (r *runner) quizCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Create quizzes and record attempts",
	}

	var req models.CreateQuizRequest
	var materialID int64
	var questionsFile string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a quiz from a JSON file of questions",
		Long: `Create a quiz. The questions file holds a JSON array:
  [{"prompt": "Powerhouse of the cell?", "options": ["mitochondria", "ribosome"], "answer": "mitochondria"}]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(questionsFile)
			if err != nil {
				return fmt.Errorf("read %s: %w", questionsFile, err)
			}
			if err := json.Unmarshal(raw, &req.Questions); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInvalidInput, "questions file must be a JSON array of questions")
			}
			if cmd.Flags().Changed("material-id") {
				req.MaterialID = &materialID
			}
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				quiz, err := a.Study.CreateQuiz(ctx, req)
				if err != nil {
					return err
				}
				r.printer.Success("Created quiz %d %s with %d questions", quiz.ID, r.printer.Bold(quiz.Title), len(quiz.Questions))
				return nil
			})
		},
	}
	create.Flags().StringVar(&req.Title, "title", "", "quiz title")
	create.Flags().StringVar(&req.Description, "description", "", "description")
	create.Flags().StringVar(&req.QuizType, "type", "multiple_choice", "quiz type")
	create.Flags().Int64Var(&materialID, "material-id", 0, "material the quiz is based on")
	create.Flags().StringVar(&questionsFile, "questions", "", "path to the questions JSON file")
	_ = create.MarkFlagRequired("title")
	_ = create.MarkFlagRequired("questions")

	var answers []string
	var elapsed time.Duration
	var score int
	attempt := &cobra.Command{
		Use:   "attempt <quiz-id>",
		Short: "Record a graded quiz attempt and earn XP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quizID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return dErrors.New(dErrors.CodeInvalidInput, "quiz id must be an integer")
			}
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				result, err := a.Study.SubmitQuizAttempt(ctx, models.QuizAttemptRequest{
					QuizID:         quizID,
					Answers:        answers,
					ElapsedSeconds: int(elapsed.Seconds()),
				}, models.FixedScore(score))
				if err != nil {
					return err
				}
				r.printer.Success("Attempt %d scored %d (+%d XP)", result.ID, result.Score, models.XPForScore(result.Score))
				return nil
			})
		},
	}
	attempt.Flags().StringSliceVar(&answers, "answers", nil, "answers, comma separated")
	attempt.Flags().DurationVar(&elapsed, "elapsed", 0, "time taken, e.g. 4m30s")
	attempt.Flags().IntVar(&score, "score", 0, "score awarded to the attempt")

	cmd.AddCommand(create, attempt)
	return cmd
}

func (r *runner) studyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "study",
		Short: "Record study sessions",
	}
	var req models.StudySessionRequest
	var materialID int64
	var duration time.Duration
	record := &cobra.Command{
		Use:   "record",
		Short: "Record a finished study session; one XP per full minute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("material-id") {
				req.MaterialID = &materialID
			}
			req.DurationSeconds = int(duration.Seconds())
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				recorded, err := a.Study.RecordStudySession(ctx, req)
				if err != nil {
					return err
				}
				if recorded == nil {
					r.printer.Info("The session could not be recorded")
					return nil
				}
				r.printer.Success("Recorded %s session on material %s (+%d XP)",
					recorded.SessionType, formatOptionalID(recorded.MaterialID), recorded.XPEarned)
				return nil
			})
		},
	}
	record.Flags().StringVar(&req.SessionType, "type", "", "session type, e.g. read or flashcards")
	record.Flags().DurationVar(&duration, "duration", 0, "session length, e.g. 25m")
	record.Flags().Int64Var(&materialID, "material-id", 0, "material studied")
	_ = record.MarkFlagRequired("type")
	_ = record.MarkFlagRequired("duration")
	cmd.AddCommand(record)
	return cmd
}

func (r *runner) progressCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Manage XP progress",
	}
	credit := &cobra.Command{
		Use:   "credit <xp>",
		Short: "Credit XP and check for new achievements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			xp, err := strconv.Atoi(args[0])
			if err != nil {
				return dErrors.New(dErrors.CodeInvalidInput, "xp must be an integer")
			}
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Study.CreditProgress(ctx, xp); err != nil {
					return err
				}
				if p := a.Sessions.CurrentProfile(); p != nil {
					r.printer.Success("Credited %d XP, total %d", xp, p.XPPoints)
					return nil
				}
				r.printer.Success("Credited %d XP", xp)
				return nil
			})
		},
	}
	cmd.AddCommand(credit)
	return cmd
}

func (r *runner) analyticsCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show daily study analytics, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := requireSession(a); err != nil {
					return err
				}
				rows := [][]string{}
				for _, d := range a.Study.ListAnalytics(ctx, days) {
					rows = append(rows, []string{
						d.Date.Format(time.DateOnly), strconv.Itoa(d.StudyMinutes),
						strconv.Itoa(d.QuizzesTaken), strconv.Itoa(d.XPEarned),
					})
				}
				r.printer.Table([]string{"DATE", "MINUTES", "QUIZZES", "XP"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "look-back window in days")
	return cmd
}

func (r *runner) achievementsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "achievements",
		Short: "List unlocked achievements, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := requireSession(a); err != nil {
					return err
				}
				rows := [][]string{}
				for _, u := range a.Study.ListAchievements(ctx) {
					name, category, reward := "?", "", ""
					if def := u.Achievement; def != nil {
						name, category, reward = def.Name, def.Category, strconv.Itoa(def.XPReward)
					}
					rows = append(rows, []string{name, category, reward, u.EarnedAt.Local().Format(dateTimeLayout)})
				}
				r.printer.Table([]string{"ACHIEVEMENT", "CATEGORY", "XP", "EARNED"}, rows)
				return nil
			})
		},
	}
}
