package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"studygenie/internal/app"
	"studygenie/internal/session"
	dErrors "studygenie/pkg/domain-errors"
)

func (r *runner) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local API and event stream",
		Long: `Serve the JSON API on STUDYGENIE_ADDR. Session changes, notifications and
navigation requests are streamed to clients on /api/events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, r.cfg, r.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Start(ctx); err != nil {
				return err
			}
			return a.Serve(ctx)
		},
	}
}

func (r *runner) signUpCommand() *cobra.Command {
	var req session.SignUpRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				identity, err := a.Sessions.SignUp(ctx, req)
				if err != nil {
					return err
				}
				r.printer.Print("Registered %s (%s)", identity.Email, r.printer.Dim(identity.ID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "password")
	cmd.Flags().StringVar(&req.FullName, "full-name", "", "full name")
	cmd.Flags().StringVar(&req.AcademicLevel, "academic-level", "", "academic level (default "+session.DefaultAcademicLevel+")")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (r *runner) signInCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sess, err := a.Sessions.SignIn(ctx, email, password)
				if err != nil {
					return err
				}
				if err := a.Sessions.Settle(ctx); err != nil {
					return err
				}
				st := a.Sessions.State()
				r.printer.Success("Signed in as %s", r.printer.Bold(st.Profile.DisplayName(st.Identity)))
				r.printer.Print("Session valid until %s", sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (r *runner) signInProviderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "signin-provider <provider>",
		Short: "Start sign-in with an external identity provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				redirect, err := a.Sessions.SignInWithProvider(ctx, args[0])
				if err != nil {
					return err
				}
				r.printer.Print("Flow %s started with %s", r.printer.Dim(redirect.FlowID), redirect.Provider)
				return nil
			})
		},
	}
}

func (r *runner) signOutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Sessions.SignOut(ctx); err != nil {
					return err
				}
				r.printer.Success("Signed out")
				return nil
			})
		},
	}
}

func (r *runner) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity and profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st := a.Sessions.State()
				if !st.Authenticated() {
					r.printer.Print("Not signed in")
					return nil
				}
				r.printProfile(st.Identity.Email, st)
				return nil
			})
		},
	}
}

func (r *runner) profileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage your profile",
	}

	var fullName, level, avatar string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change profile fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var upd session.ProfileUpdate
			if cmd.Flags().Changed("full-name") {
				upd.FullName = &fullName
			}
			if cmd.Flags().Changed("academic-level") {
				upd.AcademicLevel = &level
			}
			if cmd.Flags().Changed("avatar-url") {
				upd.AvatarURL = &avatar
			}
			return r.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Sessions.UpdateProfile(ctx, upd); err != nil {
					return err
				}
				st := a.Sessions.State()
				r.printProfile(st.Identity.Email, st)
				return nil
			})
		},
	}
	update.Flags().StringVar(&fullName, "full-name", "", "full name")
	update.Flags().StringVar(&level, "academic-level", "", "academic level")
	update.Flags().StringVar(&avatar, "avatar-url", "", "avatar image URL")
	cmd.AddCommand(update)
	return cmd
}

func (r *runner) printProfile(email string, st session.State) {
	r.printer.Header(st.Profile.DisplayName(st.Identity))
	rows := [][]string{{"email", email}}
	if p := st.Profile; p != nil {
		rows = append(rows,
			[]string{"role", p.Role},
			[]string{"academic level", p.AcademicLevel},
			[]string{"xp", strconv.FormatInt(p.XPPoints, 10)},
		)
		if p.AvatarURL != "" {
			rows = append(rows, []string{"avatar", p.AvatarURL})
		}
	}
	r.printer.Table([]string{"FIELD", "VALUE"}, rows)
}

// requireSession fails commands whose facade call would otherwise degrade to
// an empty result without saying why.
func requireSession(a *app.App) error {
	if !a.Sessions.IsAuthenticated() {
		return dErrors.New(dErrors.CodeNotAuthenticated, "not signed in, run `studygenie signin` first")
	}
	return nil
}

func formatOptionalID(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprint(*id)
}
