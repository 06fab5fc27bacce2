package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"studygenie/internal/session"
	dErrors "studygenie/pkg/domain-errors"
)

func TestPrinterPresenter(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPrinter(&out, &errOut, false)

	p.Notify(session.Notification{Message: "Profile updated successfully!", Severity: session.SeveritySuccess})
	p.Notify(session.Notification{Message: "heads up", Severity: session.SeverityInfo})
	p.Navigate(session.Navigation{Target: "/dashboard"})
	p.Navigate(session.Navigation{Target: "https://idp.example/login", External: true})

	assert.Equal(t,
		"[OK] Profile updated successfully!\nheads up\n→ /dashboard\nOpen https://idp.example/login to continue\n",
		out.String())
	assert.Empty(t, errOut.String())
	assert.False(t, p.reportedError())

	p.Notify(session.Notification{Message: "Invalid login credentials", Severity: session.SeverityError})
	assert.Equal(t, "[ERROR] Invalid login credentials\n", errOut.String())
	assert.True(t, p.reportedError())
}

func TestPrinterTable(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var out bytes.Buffer
		NewPrinter(&out, &out, false).Table([]string{"ID"}, nil)
		assert.Equal(t, "(none)\n", out.String())
	})

	t.Run("rows", func(t *testing.T) {
		var out bytes.Buffer
		NewPrinter(&out, &out, false).Table(
			[]string{"ID", "TITLE"},
			[][]string{{"1", "Cell biology"}, {"2", "Organic chemistry"}},
		)
		rendered := out.String()
		assert.Contains(t, rendered, "TITLE")
		assert.Contains(t, rendered, "Cell biology")
		assert.Contains(t, rendered, "Organic chemistry")
	})
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "not signed in", describe(dErrors.New(dErrors.CodeNotAuthenticated, "not signed in")))
	assert.Equal(t, "read notes.pdf: boom", describe(fmt.Errorf("read notes.pdf: %w", errors.New("boom"))))
}

type CLISuite struct {
	suite.Suite
	envFile string
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	t := s.T()
	t.Setenv("STUDYGENIE_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("REDIS_URL", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("NO_COLOR", "1")
	s.envFile = filepath.Join(t.TempDir(), "missing.env")
}

func (s *CLISuite) run(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	args = append([]string{"--env-file", s.envFile}, args...)
	err := execute(context.Background(), &out, &errOut, args)
	return out.String(), errOut.String(), err
}

func (s *CLISuite) TestWhoamiSignedOut() {
	out, _, err := s.run("whoami")
	s.Require().NoError(err)
	s.Equal("Not signed in\n", out)
}

func (s *CLISuite) TestSignUpStartsSession() {
	out, errOut, err := s.run("signup", "--email", "ada@example.com", "--password", "pw", "--full-name", "Ada")
	s.Require().NoError(err)
	s.Empty(errOut)
	s.Contains(out, "[OK] Registration successful!")
	s.Contains(out, "Registered ada@example.com")
	s.Contains(out, "→ /dashboard")
}

func (s *CLISuite) TestSignUpValidation() {
	_, errOut, err := s.run("signup", "--email", "not-an-email", "--password", "pw")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(errOut, "[ERROR] a valid email and password are required")
	s.NotContains(errOut, "Error:")
}

func (s *CLISuite) TestSignInFailureReportedOnce() {
	_, errOut, err := s.run("signin", "--email", "ghost@example.com", "--password", "pw")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBackendRejected))
	s.Equal("[ERROR] Invalid login credentials\n", errOut)
}

func (s *CLISuite) TestStudyCommandsRequireSession() {
	for _, args := range [][]string{
		{"materials", "list"},
		{"content", "list"},
		{"analytics"},
		{"achievements"},
	} {
		s.Run(args[0], func() {
			_, errOut, err := s.run(args...)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeNotAuthenticated))
			s.Contains(errOut, "Error: not signed in")
		})
	}
}

func (s *CLISuite) TestUploadSignedOut() {
	path := filepath.Join(s.T().TempDir(), "notes.pdf")
	s.Require().NoError(os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	_, errOut, err := s.run("materials", "upload", path)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthenticated))
	s.Contains(errOut, "Error: authentication required")
}

func (s *CLISuite) TestStudyRecordSignedOut() {
	_, errOut, err := s.run("study", "record", "--type", "read", "--duration", "25m")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthenticated))
	s.Contains(errOut, "Error: authentication required")
}

func (s *CLISuite) TestArgumentErrors() {
	_, _, err := s.run("quiz", "attempt", "abc")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, _, err = s.run("progress", "credit", "lots")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, _, err = s.run("materials", "upload", filepath.Join(s.T().TempDir(), "absent.pdf"))
	s.Require().Error(err)
	s.ErrorIs(err, os.ErrNotExist)
}

func (s *CLISuite) TestUnknownBackend() {
	_, errOut, err := s.run("--backend", "cloud", "whoami")
	s.Require().Error(err)
	s.Contains(errOut, `unknown backend mode "cloud"`)
}

func TestDisabledBackendRejectsSignIn(t *testing.T) {
	t.Setenv("STUDYGENIE_BACKEND", "disabled")
	t.Setenv("LOG_LEVEL", "error")
	var out, errOut bytes.Buffer
	err := execute(context.Background(), &out, &errOut, []string{
		"--env-file", filepath.Join(t.TempDir(), "missing.env"),
		"signin", "--email", "ada@example.com", "--password", "pw",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBackendRejected))
	assert.Contains(t, errOut.String(), "backend not configured")
}
