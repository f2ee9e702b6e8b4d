package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/Gemini-Podplai/mumabear/internal/analyzer"
	"github.com/Gemini-Podplai/mumabear/internal/router"
)

// newRouteCmd prints the routing decision for a message without calling any
// provider.
func newRouteCmd() *cobra.Command {
	var (
		mode       string
		model      string
		rulesFile  string
		contextArg string
		manual     bool
	)

	cmd := &cobra.Command{
		Use:   "route [message]",
		Short: "Show which model a message would be routed to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")

			var reqCtx map[string]any
			if contextArg != "" {
				if err := json.Unmarshal([]byte(contextArg), &reqCtx); err != nil {
					return fmt.Errorf("--context must be a JSON object: %w", err)
				}
			}

			catalog := router.DefaultCatalog()
			rules, err := router.LoadRules(rulesFile, catalog)
			if err != nil {
				return fmt.Errorf("loading routing rules: %w", err)
			}

			analysis := analyzer.Analyze(message, reqCtx)
			decision := router.NewRouter(catalog, rules).Route(router.Request{
				Message:        message,
				Analysis:       analysis,
				Mode:           mode,
				RequestedModel: model,
				Autonomous:     !manual,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"analysis": analysis,
				"decision": decision,
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "routing mode: express, premium, smart_routing or standard")
	cmd.Flags().StringVar(&model, "model", "", "explicit model id")
	cmd.Flags().StringVar(&rulesFile, "rules", os.Getenv("MAMABEAR_ROUTING_RULES"), "YAML routing rules file")
	cmd.Flags().StringVar(&contextArg, "context", "", "request context as a JSON object")
	cmd.Flags().BoolVar(&manual, "manual", false, "route as if agentic mode were disabled")
	return cmd
}
