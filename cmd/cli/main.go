// Package main is the entry point for the sheetctl CLI.
// The CLI is the developer terminal tool for interacting with the sheetsight API.
package main

import (
	"os"

	"sheetsight/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
