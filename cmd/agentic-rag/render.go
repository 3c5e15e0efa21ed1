package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/upb/agentic-rag/models"
	"github.com/upb/agentic-rag/services/pipeline"
)

const cardWidth = 80

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	metadataStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))

	statusStyleActive    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	statusStyleCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	statusStyleFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(cardWidth)

	answerStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("#4CAF50")).
			Padding(0, 1).
			Width(cardWidth)
)

// roleColors keeps each agent's cards visually distinct
var roleColors = map[models.AgentRole]lipgloss.Color{
	models.RoleSafety:  lipgloss.Color("#FF6B6B"),
	models.RoleMaker:   lipgloss.Color("#5B8DEF"),
	models.RoleChecker: lipgloss.Color("#B38DEF"),
}

// tracePrinter renders run events as styled cards while the run progresses
type tracePrinter struct {
	out io.Writer
}

func newTracePrinter(out io.Writer) *tracePrinter {
	return &tracePrinter{out: out}
}

func (p *tracePrinter) header(query, model string) {
	fmt.Fprintln(p.out, titleStyle.Render("Agentic RAG"))
	fmt.Fprintln(p.out, subtleStyle.Render(fmt.Sprintf("model %s · query %q", model, query)))
	fmt.Fprintln(p.out)
}

func (p *tracePrinter) OnStatus(_ uuid.UUID, status models.PipelineStatus) {
	fmt.Fprintln(p.out, statusStyle(status).Render("● "+string(status)))
}

func (p *tracePrinter) OnStep(_ uuid.UUID, step models.TraceStep) {
	fmt.Fprintln(p.out, renderStep(step))
}

func (p *tracePrinter) OnRunFinished(proj pipeline.Projection) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, renderSummary(proj))
}

func renderStep(step models.TraceStep) string {
	color, ok := roleColors[step.Role]
	if !ok {
		color = lipgloss.Color("#CCCCCC")
	}
	title := lipgloss.NewStyle().Bold(true).Foreground(color).Render(string(step.Role))
	stamp := subtleStyle.Render(step.Timestamp.Format("15:04:05.000"))

	body := []string{title + "  " + stamp, step.Content}
	if meta := renderMetadata(step.Metadata); meta != "" {
		body = append(body, metadataStyle.Render(meta))
	}
	return cardStyle.BorderForeground(color).Render(strings.Join(body, "\n"))
}

func renderMetadata(metadata map[string]interface{}) string {
	if len(metadata) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%s: %v", k, metadata[k])
	}
	return strings.Join(lines, "\n")
}

func renderSummary(p pipeline.Projection) string {
	stats := subtleStyle.Render(fmt.Sprintf("steps %d · maker calls %d · audit rounds %d · refined %t",
		len(p.Steps), p.MakerCalls, p.AuditRounds, p.Refined))

	if p.Status != models.StatusCompleted || p.FinalAnswer == nil {
		reason := "run failed"
		if p.Error != "" {
			reason = "run failed: " + p.Error
		} else if p.Safety != nil && !p.Safety.Passed {
			reason = fmt.Sprintf("blocked by safety monitor (%s): %s",
				p.Safety.Severity, strings.Join(p.Safety.Violations, ", "))
		}
		return statusStyleFailed.Render(reason) + "\n" + stats
	}

	return answerStyle.Render(statusStyleCompleted.Render("Final answer")+"\n"+*p.FinalAnswer) + "\n" + stats
}

func statusStyle(status models.PipelineStatus) lipgloss.Style {
	switch status {
	case models.StatusCompleted:
		return statusStyleCompleted
	case models.StatusFailed:
		return statusStyleFailed
	default:
		return statusStyleActive
	}
}
