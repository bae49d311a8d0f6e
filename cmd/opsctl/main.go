// Package main implements opsctl, the command-line client for devopsd.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the devopsd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "opsctl",
		Short: "CLI for devopsd workflows",
		Long: `opsctl runs DevOps workflows in-process or submits them to a devopsd server.
It can also fetch stored workflow results and check server health.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:9191", "devopsd server URL")
	root.AddCommand(newRunCmd())
	root.AddCommand(newSubmitCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write([]byte("opsctl " + version + "\n"))
			return err
		},
	}
}
