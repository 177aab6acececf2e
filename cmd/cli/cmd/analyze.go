package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	analyzeInstructions string
	analyzeNotifyEmail  string
	analyzeFollow       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [workbook.xlsx]",
	Short: "Upload a workbook and start an analysis",
	Long: `Upload an Excel workbook to sheetsight and start a background analysis.
The command returns the job id immediately; pass --follow to stay attached
and stream progress until the dashboard is ready.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewJobClient(viper.GetString("url"), viper.GetString("token"))

		resp, err := client.Analyze(args[0], analyzeInstructions, analyzeNotifyEmail)
		if err != nil {
			cmd.Printf("Failed to start analysis: %v\n", err)
			return
		}

		cmd.Printf("%s✓%s Analysis started\n", colorGreen, colorReset)
		cmd.Printf("%sJob ID:%s  %s\n", colorDim, colorReset, resp.JobID)
		cmd.Printf("%sStatus:%s  %s%s\n", colorDim, colorReset, viper.GetString("url"), resp.StatusURL)

		if analyzeFollow {
			followJob(cmd, client, resp.JobID)
		}
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeInstructions, "instructions", "i", "", "Steering instructions for the agent")
	analyzeCmd.Flags().StringVar(&analyzeNotifyEmail, "notify", "", "Email address to notify on completion")
	analyzeCmd.Flags().BoolVarP(&analyzeFollow, "follow", "f", false, "Stream progress until the analysis finishes")
}
