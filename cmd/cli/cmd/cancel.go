package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Cancel a running analysis",
	Long: `Request cancellation of a running analysis. Cancellation is cooperative:
the agent stops at its next step, so the job may take a moment to reach
its terminal state.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewJobClient(viper.GetString("url"), viper.GetString("token"))

		if err := client.Cancel(args[0]); err != nil {
			cmd.Printf("Failed to cancel: %v\n", err)
			return
		}
		cmd.Printf("%s✓%s Cancellation requested for %s\n", colorGreen, colorReset, args[0])
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
