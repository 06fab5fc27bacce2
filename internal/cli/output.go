package cli

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"studygenie/internal/session"
)

// Printer writes command output and renders session notifications and
// navigation requests as console lines.
type Printer struct {
	out       io.Writer
	err       io.Writer
	useColors bool
	errored   atomic.Bool
}

var _ session.Presenter = (*Printer)(nil)

// NewPrinter builds a printer. Colors are off when NO_COLOR is set or the
// terminal is dumb.
func NewPrinter(out, errOut io.Writer, colors bool) *Printer {
	if _, ok := os.LookupEnv("NO_COLOR"); ok || os.Getenv("TERM") == "dumb" {
		colors = false
	}
	return &Printer{out: out, err: errOut, useColors: colors}
}

func (p *Printer) Notify(n session.Notification) {
	switch n.Severity {
	case session.SeveritySuccess:
		p.Success("%s", n.Message)
	case session.SeverityError:
		p.Error("%s", n.Message)
	default:
		p.Info("%s", n.Message)
	}
}

func (p *Printer) Navigate(n session.Navigation) {
	if n.External {
		p.Info("Open %s to continue", n.Target)
		return
	}
	p.Print("%s", p.Dim("→ "+n.Target))
}

func (p *Printer) Info(format string, args ...any) {
	if p.useColors {
		color.New(color.FgCyan).Fprintf(p.out, format+"\n", args...)
		return
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *Printer) Success(format string, args ...any) {
	if p.useColors {
		color.New(color.FgGreen).Fprintf(p.out, "✓ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.out, "[OK] "+format+"\n", args...)
}

func (p *Printer) Error(format string, args ...any) {
	p.errored.Store(true)
	if p.useColors {
		color.New(color.FgRed).Fprintf(p.err, "✗ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.err, "[ERROR] "+format+"\n", args...)
}

func (p *Printer) reportedError() bool {
	return p.errored.Load()
}

func (p *Printer) Print(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *Printer) Header(title string) {
	if p.useColors {
		color.New(color.FgWhite, color.Bold).Fprintf(p.out, "\n%s\n", title)
		return
	}
	fmt.Fprintf(p.out, "\n%s\n", title)
}

func (p *Printer) Bold(text string) string {
	if p.useColors {
		return color.New(color.Bold).Sprint(text)
	}
	return text
}

func (p *Printer) Dim(text string) string {
	if p.useColors {
		return color.New(color.Faint).Sprint(text)
	}
	return text
}

// Table renders rows under headers. An empty table prints a placeholder.
func (p *Printer) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		p.Print("%s", p.Dim("(none)"))
		return
	}
	table := tablewriter.NewTable(p.out,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{Borders: tw.BorderNone}),
	)
	table.Header(headers)
	_ = table.Bulk(rows)
	_ = table.Render()
}
