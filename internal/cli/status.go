package cli

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/driftworks/conductor/internal/issue"
	"github.com/driftworks/conductor/internal/plan"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-issue delivery status from the plan",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "text", "output format: text or json")
}

var (
	statusHeaderStyle = lipgloss.NewStyle().Bold(true)
	statusStyles      = map[issue.Status]lipgloss.Style{
		issue.StatusPending:    lipgloss.NewStyle().Faint(true),
		issue.StatusReady:      lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		issue.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		issue.StatusCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		issue.StatusFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		issue.StatusSkipped:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := plan.NewStore(cfg.Project.PlanPath)
	doc, err := store.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if statusFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc.Issues)
	}

	fmt.Fprintf(out, "%s\n", statusHeaderStyle.Render(fmt.Sprintf("%-6s %-12s %-14s %s", "ISSUE", "STATUS", "DEPENDS ON", "TITLE")))
	for _, rec := range doc.Issues {
		title := rec.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		deps := "-"
		if len(rec.Dependencies) > 0 {
			deps = fmt.Sprintf("%v", rec.Dependencies)
		}
		status := string(rec.Status)
		if style, ok := statusStyles[rec.Status]; ok {
			status = style.Render(fmt.Sprintf("%-12s", status))
		} else {
			status = fmt.Sprintf("%-12s", status)
		}
		fmt.Fprintf(out, "#%-5d %s %-14s %s\n", rec.ID, status, deps, title)
	}

	done, failed, skipped := 0, 0, 0
	for _, rec := range doc.Issues {
		switch rec.Status {
		case issue.StatusCompleted:
			done++
		case issue.StatusFailed:
			failed++
		case issue.StatusSkipped:
			skipped++
		}
	}
	fmt.Fprintf(out, "\n%d/%d completed, %d failed, %d skipped\n", done, len(doc.Issues), failed, skipped)
	return nil
}
