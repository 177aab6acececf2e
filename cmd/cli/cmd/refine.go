package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var refineFollow bool

var refineCmd = &cobra.Command{
	Use:   "refine [job_id] [instructions...]",
	Short: "Refine a finished dashboard with new instructions",
	Long: `Start a refinement of a completed analysis. The new job reuses the
original workbook and feeds the prior dashboard back to the agent along
with your new instructions. The prior job is left untouched.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewJobClient(viper.GetString("url"), viper.GetString("token"))

		jobID := args[0]
		instructions := strings.Join(args[1:], " ")

		resp, err := client.Refine(jobID, instructions)
		if err != nil {
			cmd.Printf("Failed to start refinement: %v\n", err)
			return
		}

		cmd.Printf("%s✓%s Refinement started\n", colorGreen, colorReset)
		cmd.Printf("%sJob ID:%s    %s\n", colorDim, colorReset, resp.JobID)
		cmd.Printf("%sRefines:%s   %s\n", colorDim, colorReset, resp.PriorID)

		if refineFollow {
			followJob(cmd, client, resp.JobID)
		}
	},
}

func init() {
	rootCmd.AddCommand(refineCmd)

	refineCmd.Flags().BoolVarP(&refineFollow, "follow", "f", false, "Stream progress until the refinement finishes")
}
