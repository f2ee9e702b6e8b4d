package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Gemini-Podplai/mumabear/internal/api"
)

func main() {
	root := &cobra.Command{
		Use:           "mamabear",
		Short:         "Mama Bear express LLM router",
		Long:          "Routes chat requests to the cheapest model that fits, with fallback, budgets and live sessions.",
		Version:       api.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running the binary without a subcommand starts the server.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	root.AddCommand(newServeCmd(), newRouteCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}
