package commands

import (
	"github.com/spf13/cobra"

	"github.com/bodhi-ai/bodhi/internal/printer"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printer.Printf("bodhi %s\n", version)
		printer.Printf("  commit: %s\n", commit)
		printer.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
