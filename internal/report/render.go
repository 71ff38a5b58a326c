package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorRed    = lipgloss.Color("#FF5555")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorGray   = lipgloss.Color("#6272A4")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle  = lipgloss.NewStyle().Foreground(colorGray)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
)

func rateStyle(v float64) lipgloss.Style {
	switch {
	case v >= 0.8:
		return okStyle
	case v >= 0.5:
		return warnStyle
	default:
		return critStyle
	}
}

// Render writes the report as styled terminal panels.
func (r *Report) Render(w io.Writer) error {
	panels := []string{
		r.renderSummary(),
		r.renderClasses(),
		r.renderConfusion(),
	}
	if len(r.Errors) > 0 {
		panels = append(panels, r.renderErrors())
	}

	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, panels...))
	return err
}

func (r *Report) renderSummary() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ACCURACY"))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-14s", label)))
		b.WriteString(value)
		b.WriteString("\n")
	}
	if r.Method != "" {
		row("Method", r.Method)
	}
	row("Total", fmt.Sprintf("%d", r.Total))
	row("Evaluated", fmt.Sprintf("%d", r.Evaluated))
	row("Failed", fmt.Sprintf("%d", r.Failed))
	row("Unlabeled", fmt.Sprintf("%d", r.Unlabeled))
	row("Unclassified", fmt.Sprintf("%d", r.Unclassified))
	row("Accuracy", rateStyle(r.Accuracy).Render(fmt.Sprintf("%.4f (%.2f%%)", r.Accuracy, r.Accuracy*100)))
	row("Macro F1", rateStyle(r.MacroF1).Render(fmt.Sprintf("%.4f", r.MacroF1)))
	row("Weighted F1", rateStyle(r.WeightedF1).Render(fmt.Sprintf("%.4f", r.WeightedF1)))
	if r.DurationMs > 0 {
		row("Duration", fmt.Sprintf("%d ms", r.DurationMs))
		row("Avg latency", fmt.Sprintf("%.2f ms", r.AvgLatencyMs))
	}

	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (r *Report) renderClasses() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("PER CLASS"))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-18s %9s %9s %9s %8s %10s %9s",
		"category", "precision", "recall", "f1", "support", "score avg", "score sd")))

	for _, c := range r.Classes {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%-18s ", c.Category))
		b.WriteString(rateStyle(c.Precision).Render(fmt.Sprintf("%9.4f", c.Precision)))
		b.WriteString(" ")
		b.WriteString(rateStyle(c.Recall).Render(fmt.Sprintf("%9.4f", c.Recall)))
		b.WriteString(" ")
		b.WriteString(rateStyle(c.F1).Render(fmt.Sprintf("%9.4f", c.F1)))
		b.WriteString(fmt.Sprintf(" %8d %10.2f %9.2f", c.Support, c.ScoreMean, c.ScoreStdDev))
	}

	return panelStyle.Render(b.String())
}

func (r *Report) renderConfusion() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("CONFUSION MATRIX"))
	b.WriteString(labelStyle.Render("  rows actual, columns predicted"))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("%-18s", ""))
	for _, l := range r.Labels {
		b.WriteString(headerStyle.Render(fmt.Sprintf(" %12s", abbreviate(l))))
	}

	for i, row := range r.Confusion {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%-18s", r.Labels[i]))
		for j, n := range row {
			cell := fmt.Sprintf(" %12d", n)
			switch {
			case i == j:
				cell = okStyle.Render(cell)
			case n > 0:
				cell = critStyle.Render(cell)
			default:
				cell = labelStyle.Render(cell)
			}
			b.WriteString(cell)
		}
	}

	return panelStyle.Render(b.String())
}

func (r *Report) renderErrors() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ERROR PATTERNS"))

	for _, e := range r.Errors {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%-18s -> %-18s ", e.Actual, e.Predicted))
		b.WriteString(warnStyle.Render(fmt.Sprintf("%5d", e.Count)))
		b.WriteString(labelStyle.Render(fmt.Sprintf("  gpa %.2f  attendance %.2f", e.MeanGPA, e.MeanAttendance)))
	}

	return panelStyle.Render(b.String())
}

// abbreviate shortens "Needs Improvement" to "NI" for matrix headers.
func abbreviate(label string) string {
	if len(label) <= 12 {
		return label
	}
	var out strings.Builder
	for _, word := range strings.Fields(label) {
		out.WriteByte(word[0])
	}
	return out.String()
}
