package cmd

import (
	"fmt"
	"log"
	"os"

	"torb/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "torb_server",
	Short: "Torb is a self-hosted audio streaming service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting Torb server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
