package cmd

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the sessions surface and the admin API",
	Run: func(cmd *cobra.Command, args []string) {
		startServer([]string{"sessions", "api"})
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}
