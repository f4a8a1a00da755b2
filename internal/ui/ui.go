// Package ui renders sync results for the terminal.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/synctogit/synctogit/internal/journal"
	"github.com/synctogit/synctogit/internal/notes"
	"github.com/synctogit/synctogit/internal/syncer"
)

const maxListedKeys = 10

// Styles used by the renderer.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	OK      lipgloss.Style
	Warn    lipgloss.Style
	Fail    lipgloss.Style
	Muted   lipgloss.Style
	Section lipgloss.Style
}

// Renderer formats reports for one output stream.
type Renderer struct {
	r      *lipgloss.Renderer
	styles Styles
}

// NewRenderer detects the color profile of w. Colors are disabled for
// non-terminals and when NO_COLOR is set.
func NewRenderer(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w)
	if termenv.EnvNoColor() {
		r.SetColorProfile(termenv.Ascii)
	}
	return newRenderer(r)
}

// NewPlainRenderer renders without any escape sequences.
func NewPlainRenderer(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(termenv.Ascii)
	return newRenderer(r)
}

func newRenderer(r *lipgloss.Renderer) *Renderer {
	return &Renderer{
		r: r,
		styles: Styles{
			Title:   r.NewStyle().Bold(true),
			Label:   r.NewStyle().Width(10),
			OK:      r.NewStyle().Foreground(lipgloss.Color("2")),
			Warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
			Fail:    r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
			Muted:   r.NewStyle().Faint(true),
			Section: r.NewStyle().MarginTop(1),
		},
	}
}

// Summary renders the outcome of a sync run.
func (r *Renderer) Summary(s syncer.Summary, runErr error) string {
	st := r.styles
	last := s.Last()

	var b strings.Builder
	switch {
	case runErr != nil:
		b.WriteString(st.Fail.Render("Sync failed: " + runErr.Error()))
	case last.Changeset.Empty():
		b.WriteString(st.OK.Render("Already up to date"))
	default:
		b.WriteString(st.OK.Render("Sync done"))
	}
	b.WriteString("\n")
	if len(s.Passes) == 0 {
		return b.String()
	}

	cs := last.Changeset
	rows := []string{
		st.Label.Render("passes") + fmt.Sprint(len(s.Passes)),
		st.Label.Render("target") + fmt.Sprintf("delete %d, create %d, update %d",
			len(cs.Delete), len(cs.New), len(cs.Update)),
		st.Label.Render("result") + st.OK.Render(fmt.Sprintf("saved %d", len(last.Saved))) +
			", " + r.failedCount(len(last.Failed)),
	}
	if !last.Finished.IsZero() {
		rows = append(rows, st.Label.Render("took")+last.Finished.Sub(last.Started).Round(time.Millisecond).String())
	}
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, rows...))
	b.WriteString("\n")

	if len(last.Failed) > 0 {
		b.WriteString(st.Section.Render(st.Title.Render("Failed notes")))
		b.WriteString("\n")
		b.WriteString(r.keyList(last.Failed))
	}
	return b.String()
}

func (r *Renderer) failedCount(n int) string {
	text := fmt.Sprintf("failed %d", n)
	if n == 0 {
		return r.styles.Muted.Render(text)
	}
	return r.styles.Fail.Render(text)
}

func (r *Renderer) keyList(keys []notes.Key) string {
	var b strings.Builder
	for i, k := range keys {
		if i == maxListedKeys {
			b.WriteString(r.styles.Muted.Render(fmt.Sprintf("  ... and %d more", len(keys)-i)))
			b.WriteString("\n")
			break
		}
		b.WriteString("  " + string(k) + "\n")
	}
	return b.String()
}

// Passes renders the journal history, newest first.
func (r *Renderer) Passes(passes []journal.Pass, loc *time.Location) string {
	st := r.styles
	if len(passes) == 0 {
		return st.Muted.Render("No sync passes recorded") + "\n"
	}
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	b.WriteString(st.Title.Render(fmt.Sprintf("%-19s  %-8s  %-20s  %s", "STARTED", "STATUS", "DELETE/CREATE/UPDATE", "SAVED/FAILED")))
	b.WriteString("\n")
	for _, p := range passes {
		status := st.OK.Render(fmt.Sprintf("%-8s", "ok"))
		switch {
		case p.Error != "":
			status = st.Fail.Render(fmt.Sprintf("%-8s", "error"))
		case p.Failed > 0:
			status = st.Warn.Render(fmt.Sprintf("%-8s", "partial"))
		case !p.Converged:
			status = st.Warn.Render(fmt.Sprintf("%-8s", "changed"))
		}
		fmt.Fprintf(&b, "%-19s  %s  %-20s  %d/%d\n",
			p.Started.In(loc).Format(time.DateTime),
			status,
			fmt.Sprintf("%d/%d/%d", p.Deleted, p.Created, p.Updated),
			p.Saved, p.Failed)
		if p.Error != "" {
			b.WriteString(st.Muted.Render("  " + p.Error))
			b.WriteString("\n")
		}
	}
	return b.String()
}
