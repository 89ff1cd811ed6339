package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ozon-price-tracker/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ozontracker %s\n", version.String())
	},
}
