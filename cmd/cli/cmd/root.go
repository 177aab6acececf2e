package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sheetctl",
	Short: "Sheetctl is a command line tool for the sheetsight analysis service",
	Long: `sheetctl is the command-line interface for sheetsight, the spreadsheet
analysis service. Upload an Excel workbook, watch the agent work through
it, and fetch the generated dashboard.

Common workflows:

  Analyze a workbook:
    sheetctl analyze report.xlsx --instructions "focus on quarterly revenue"

  Watch a running analysis:
    sheetctl status <job-id> --follow

  Refine a finished dashboard:
    sheetctl refine <job-id> "break revenue down by region"

  Ask about the data:
    sheetctl chat <job-id> "which month had the highest revenue?"

  List your sessions:
    sheetctl sessions

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    SHEETSIGHT_API_URL    API endpoint (default: http://localhost:6161)
    SHEETSIGHT_TOKEN      API key for authentication (omit to run as guest)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".sheetctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".sheetctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "SHEETSIGHT_VARNAME"
	viper.SetEnvPrefix("SHEETSIGHT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sheetctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "Sheetsight API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API key for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
