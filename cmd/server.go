package cmd

import (
	"torb/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Torb HTTP server",
	Long:  `Start the Torb HTTP server: upload intake, the transcode pipeline and the streaming API.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
