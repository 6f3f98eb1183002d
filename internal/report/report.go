// SPDX-License-Identifier: MPL-2.0

// Package report renders run results and plans for the terminal and as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/provisio/provisio/internal/executor"
	"github.com/provisio/provisio/internal/plan"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
)

const (
	colorHeader  = lipgloss.Color("#7C3AED")
	colorMuted   = lipgloss.Color("#6B7280")
	colorSuccess = lipgloss.Color("#10B981")
	colorError   = lipgloss.Color("#EF4444")
	colorWarning = lipgloss.Color("#F59E0B")
	colorInfo    = lipgloss.Color("#3B82F6")
)

// summaryOrder is the order statuses appear in Summary.
var summaryOrder = []executor.Status{
	executor.StatusSatisfied,
	executor.StatusDone,
	executor.StatusWouldInstall,
	executor.StatusFailed,
	executor.StatusSkipped,
	executor.StatusCancelled,
}

type (
	// Renderer formats results for one output stream.
	Renderer struct {
		r *lipgloss.Renderer
	}

	// Option configures a Renderer.
	Option func(*Renderer)
)

// WithColor forces colored output on or off. By default the stream's
// terminal capabilities decide.
func WithColor(enabled bool) Option {
	return func(rd *Renderer) {
		if !enabled {
			rd.r.SetColorProfile(termenv.Ascii)
		} else if rd.r.ColorProfile() == termenv.Ascii {
			rd.r.SetColorProfile(termenv.ANSI256)
		}
	}
}

// New returns a Renderer for w.
func New(w io.Writer, opts ...Option) *Renderer {
	rd := &Renderer{r: lipgloss.NewRenderer(w)}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

func (rd *Renderer) statusStyle(s executor.Status) lipgloss.Style {
	st := rd.r.NewStyle()
	switch s {
	case executor.StatusSatisfied, executor.StatusDone:
		return st.Foreground(colorSuccess)
	case executor.StatusFailed:
		return st.Foreground(colorError).Bold(true)
	case executor.StatusSkipped, executor.StatusCancelled:
		return st.Foreground(colorWarning)
	case executor.StatusWouldInstall:
		return st.Foreground(colorInfo)
	default:
		return st
	}
}

// Table renders one row per unit in plan order.
func (rd *Renderer) Table(res *executor.Result) string {
	rows := make([][]string, len(res.Units))
	for i, u := range res.Units {
		installed := ""
		if u.Installed {
			installed = "yes"
		}
		rows[i] = []string{string(u.Name), string(u.Kind), string(u.Status), installed, formatDuration(u.Duration)}
	}

	header := rd.r.NewStyle().Foreground(colorHeader).Bold(true).Padding(0, 1)
	cell := rd.r.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(rd.r.NewStyle().Foreground(colorMuted)).
		Headers("UNIT", "KIND", "STATUS", "INSTALLED", "TIME").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if col == 2 && row >= 0 && row < len(res.Units) {
				return rd.statusStyle(res.Units[row].Status).Padding(0, 1)
			}
			return cell
		})
	return t.String()
}

// Summary returns a one-line count of final statuses, e.g.
// "6 units: 4 satisfied, 1 done, 1 failed in 2.1s".
func (rd *Renderer) Summary(res *executor.Result) string {
	counts := res.Counts()
	var parts []string
	for _, s := range summaryOrder {
		if n := counts[s]; n > 0 {
			parts = append(parts, rd.statusStyle(s).Render(fmt.Sprintf("%d %s", n, s)))
		}
	}
	noun := "units"
	if len(res.Units) == 1 {
		noun = "unit"
	}
	line := fmt.Sprintf("%d %s", len(res.Units), noun)
	if len(parts) > 0 {
		line += ": " + strings.Join(parts, ", ")
	}
	line += " in " + formatDuration(res.Duration)
	if res.DryRun {
		line += " (dry run)"
	}
	if res.Cancelled {
		line += " (cancelled)"
	}
	return line
}

// Failures lists each failed unit with its error, one per line. Skipped
// units are left out; their cause is always a listed failure.
func (rd *Renderer) Failures(res *executor.Result) string {
	var b strings.Builder
	style := rd.statusStyle(executor.StatusFailed)
	for _, u := range res.Units {
		if u.Status != executor.StatusFailed || u.Err == nil {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", style.Render("✗ "+string(u.Name)+":"), u.Err)
	}
	return b.String()
}

// Plan renders the execution order with each unit's requirements.
func (rd *Renderer) Plan(p *plan.Plan) string {
	index := rd.r.NewStyle().Foreground(colorMuted)
	name := rd.r.NewStyle().Bold(true)
	var b strings.Builder
	for i, s := range p.Steps() {
		fmt.Fprintf(&b, "%s %s %s", index.Render(fmt.Sprintf("%3d.", i+1)), name.Render(string(s.Unit.Name)), index.Render("("+string(s.Unit.Kind)+")"))
		if len(s.Requires) > 0 {
			reqs := make([]string, len(s.Requires))
			for j, r := range s.Requires {
				reqs[j] = string(r)
			}
			slices.Sort(reqs)
			fmt.Fprintf(&b, " %s %s", index.Render("<-"), strings.Join(reqs, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

type (
	jsonUnit struct {
		Name       string `json:"name"`
		Kind       string `json:"kind"`
		Status     string `json:"status"`
		Installed  bool   `json:"installed"`
		DurationMS int64  `json:"duration_ms"`
		Error      string `json:"error,omitempty"`
	}

	jsonResult struct {
		RunID      string         `json:"run_id"`
		DryRun     bool           `json:"dry_run"`
		Cancelled  bool           `json:"cancelled"`
		Started    time.Time      `json:"started"`
		DurationMS int64          `json:"duration_ms"`
		ExitCode   int            `json:"exit_code"`
		Counts     map[string]int `json:"counts"`
		Units      []jsonUnit     `json:"units"`
	}
)

// JSON writes res as a single indented JSON document.
func JSON(w io.Writer, res *executor.Result) error {
	out := jsonResult{
		RunID:      res.RunID,
		DryRun:     res.DryRun,
		Cancelled:  res.Cancelled,
		Started:    res.Started,
		DurationMS: res.Duration.Milliseconds(),
		ExitCode:   int(res.ExitCode()),
		Counts:     make(map[string]int),
		Units:      make([]jsonUnit, len(res.Units)),
	}
	for s, n := range res.Counts() {
		out.Counts[string(s)] = n
	}
	for i, u := range res.Units {
		ju := jsonUnit{
			Name:       string(u.Name),
			Kind:       string(u.Kind),
			Status:     string(u.Status),
			Installed:  u.Installed,
			DurationMS: u.Duration.Milliseconds(),
		}
		if u.Err != nil {
			ju.Error = u.Err.Error()
		}
		out.Units[i] = ju
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
