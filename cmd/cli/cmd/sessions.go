package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var sessionsAll bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List your analysis sessions",
	Long: `List your active analysis jobs. Use this after closing the browser or
terminal to find runs that are still in flight, then re-attach with
'sheetctl status <job-id> --follow'. Pass --all to include finished
sessions from your history.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := NewJobClient(viper.GetString("url"), viper.GetString("token"))

		resp, err := client.ListSessions(sessionsAll)
		if err != nil {
			cmd.Printf("Failed to list sessions: %v\n", err)
			return
		}

		if len(resp.JobIDs) == 0 {
			cmd.Println("No sessions found")
			return
		}

		for _, id := range resp.JobIDs {
			status, err := client.Status(id, 0)
			if err != nil {
				cmd.Printf("%s  %s(unavailable)%s\n", id, colorDim, colorReset)
				continue
			}
			cmd.Printf("%s  %s  %s%s%s\n", id, colorizeStatus(status.Status), colorDim, status.Filename, colorReset)
		}
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)

	sessionsCmd.Flags().BoolVar(&sessionsAll, "all", false, "Include finished sessions from history")
}
