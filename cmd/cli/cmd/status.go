package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"sheetsight/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusFollow bool

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get status of an analysis job",
	Long: `Retrieve the current state of an analysis job (pending, running,
completed, partial, error) together with its progress event log. Pass
--follow to poll until the job reaches a terminal state.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewJobClient(viper.GetString("url"), viper.GetString("token"))

		if statusFollow {
			followJob(cmd, client, args[0])
			return
		}

		status, err := client.Status(args[0], 0)
		if err != nil {
			cmd.Printf("Failed to fetch status: %v\n", err)
			return
		}
		printStatus(cmd, status)
	},
}

// followJob polls the status endpoint with a since cursor, printing each
// new event exactly once, until the job is terminal.
func followJob(cmd *cobra.Command, client *JobClient, jobID string) {
	since := 0
	for {
		status, err := client.Status(jobID, since)
		if err != nil {
			cmd.Printf("Failed to fetch status: %v\n", err)
			return
		}

		for _, ev := range status.Events {
			printEvent(cmd, ev)
			since = ev.Sequence
		}

		if isTerminal(status.Status) {
			cmd.Println()
			printStatus(cmd, status)
			return
		}
		time.Sleep(2 * time.Second)
	}
}

func printStatus(cmd *cobra.Command, status *api.JobStatusResponse) {
	icon := statusIcon(status.Status)
	cmd.Printf("%s %sAnalysis Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sJob ID:%s      %s\n", colorDim, colorReset, status.JobID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(status.Status))
	if status.Filename != "" {
		cmd.Printf("%sWorkbook:%s    %s\n", colorDim, colorReset, status.Filename)
	}
	if status.Message != "" {
		cmd.Printf("%sMessage:%s     %s\n", colorDim, colorReset, status.Message)
	}
	cmd.Printf("%sEvents:%s      %d\n", colorDim, colorReset, status.EventCount)
	if status.Error != "" {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, status.Error, colorReset)
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(&status.CreatedAt))
	if status.FinalizedAt != nil {
		duration := status.FinalizedAt.Sub(status.CreatedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(status.FinalizedAt),
			colorCyan, formatDuration(duration), colorReset)
	}
	if status.Ready {
		cmd.Printf("%sDashboard:%s   %s%s\n", colorDim, colorReset, viper.GetString("url"), status.DashboardURL)
	}
}

func printEvent(cmd *cobra.Command, ev api.ProgressEvent) {
	summary := ""
	var payload map[string]any
	if len(ev.Payload) > 0 && json.Unmarshal(ev.Payload, &payload) == nil {
		for _, key := range []string{"text", "tool", "message", "artifact_path", "output"} {
			if v, ok := payload[key].(string); ok && v != "" {
				summary = v
				break
			}
		}
	}
	cmd.Printf("%s[%3d]%s %-16s %s\n", colorDim, ev.Sequence, colorReset, ev.Kind, summary)
}

func isTerminal(status string) bool {
	return status == "completed" || status == "partial" || status == "error"
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "completed":
		return colorGreen + "✓" + colorReset
	case "partial":
		return colorYellow + "◐" + colorReset
	case "error":
		return colorRed + "✗" + colorReset
	case "running":
		return colorYellow + "⏳" + colorReset
	case "pending":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "completed":
		return icon + " " + colorGreen + status + colorReset
	case "partial":
		return icon + " " + colorYellow + status + colorReset
	case "error":
		return icon + " " + colorRed + status + colorReset
	case "running":
		return icon + " " + colorYellow + status + colorReset
	case "pending":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "Poll until the job reaches a terminal state")
}
