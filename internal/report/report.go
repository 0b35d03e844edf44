// Package report renders command output for the terminal.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/theme"
)

const subjectWidth = 48

// Decisions writes one line per journal entry.
func Decisions(w io.Writer, ds []model.Decision) error {
	if len(ds) == 0 {
		_, err := fmt.Fprintln(w, theme.HelpStyle.Render("No decisions recorded yet."))
		return err
	}

	lines := make([]string, 0, len(ds)+1)
	lines = append(lines, theme.HeaderStyle.Render(fmt.Sprintf("Last %d decisions", len(ds))))
	for _, d := range ds {
		rating := theme.RatingStyle(-1).Render("-")
		if d.Rating != nil {
			rating = theme.RatingStyle(*d.Rating).Render(strconv.Itoa(*d.Rating))
		}

		dest := d.Detail
		if d.Category != "" {
			dest = strings.TrimSpace(d.Category + " " + dest)
		}

		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			theme.LabelStyle.Render(d.CreatedAt.Local().Format("Jan 02 15:04")),
			lipgloss.NewStyle().Width(4).Render(rating),
			theme.ActionStyle(d.Action).Render(d.Action),
			lipgloss.NewStyle().Width(subjectWidth+2).Render(model.Truncate(d.Subject, subjectWidth)),
			theme.HelpStyle.Render(dest),
		))
	}

	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

// Counts writes a per-action summary, most frequent first.
func Counts(w io.Writer, title string, counts map[string]int) error {
	actions := make([]string, 0, len(counts))
	total := 0
	for a, n := range counts {
		actions = append(actions, a)
		total += n
	}
	sort.Slice(actions, func(i, j int) bool {
		if counts[actions[i]] != counts[actions[j]] {
			return counts[actions[i]] > counts[actions[j]]
		}
		return actions[i] < actions[j]
	})

	rows := []string{theme.LabelStyle.Render("total") + strconv.Itoa(total)}
	for _, a := range actions {
		rows = append(rows, theme.ActionStyle(a).Width(14).Render(a)+strconv.Itoa(counts[a]))
	}

	_, err := fmt.Fprintln(w, theme.HeaderStyle.Render(title)+"\n"+theme.PanelStyle.Render(strings.Join(rows, "\n")))
	return err
}

// Step is one line of a connectivity check.
type Step struct {
	Name   string
	Detail string
	Err    error
}

// Checks writes each step with its result. It returns the number of
// failed steps.
func Checks(w io.Writer, steps []Step) (int, error) {
	failed := 0
	rows := make([]string, 0, len(steps))
	for _, s := range steps {
		status := theme.HealthStyle("ok").Render("ok")
		detail := s.Detail
		if s.Err != nil {
			failed++
			status = theme.HealthStyle("Unhealthy").Render("FAIL")
			detail = s.Err.Error()
		}
		rows = append(rows, theme.LabelStyle.Render(s.Name)+lipgloss.NewStyle().Width(7).Render(status)+detail)
	}

	_, err := fmt.Fprintln(w, theme.PanelStyle.Render(strings.Join(rows, "\n")))
	return failed, err
}
