package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var chatHistory bool

var chatCmd = &cobra.Command{
	Use:   "chat [job_id] [question...]",
	Short: "Ask questions about a finished analysis",
	Long: `Chat with the agent about an analyzed workbook. Each question gets the
workbook and the dashboard findings as context, so follow-ups can dig
into specific numbers. Sessions are capped per job.

Use --history to print the conversation so far instead of asking.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewJobClient(viper.GetString("url"), viper.GetString("token"))
		jobID := args[0]

		if chatHistory {
			resp, err := client.ChatHistory(jobID)
			if err != nil {
				cmd.Printf("Failed to fetch history: %v\n", err)
				return
			}
			if len(resp.Messages) == 0 {
				cmd.Println("No conversation yet.")
				return
			}
			for _, m := range resp.Messages {
				label := "You"
				if m.Role == "assistant" {
					label = "Agent"
				}
				cmd.Printf("%s%s:%s %s\n", colorDim, label, colorReset, m.Content)
			}
			cmd.Printf("\n%s%d messages remaining%s\n", colorDim, resp.Remaining, colorReset)
			return
		}

		if len(args) < 2 {
			cmd.Println("Ask a question: sheetctl chat <job_id> <question>")
			return
		}
		question := strings.Join(args[1:], " ")

		resp, err := client.Chat(jobID, question)
		if err != nil {
			cmd.Printf("Failed to get an answer: %v\n", err)
			return
		}

		cmd.Println(resp.Reply)
		cmd.Printf("\n%s%d messages remaining%s\n", colorDim, resp.Remaining, colorReset)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().BoolVar(&chatHistory, "history", false, "Show the conversation so far")
}
