package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "icore",
	Short: "DICOM de-identification and retrieval pipeline orchestrator",
	Long:  "Queries PACS for studies named by a tabular input, retrieves their instances, de-identifies headers through an external pipeline daemon, and persists durable audit metadata.",
}

// Execute runs the root command. Exit code 1 is used for any configuration
// error or fatal orchestration failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
