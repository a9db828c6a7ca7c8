package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load checkhub.yaml and CHECKHUB_ environment variables and report every
problem found, without starting the server.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if path == "" {
		path = "(environment only)"
	}
	fmt.Fprintf(out, "Configuration OK: %s\n", path)
	fmt.Fprintf(out, "  Listen:          %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(out, "  Environment:     %s\n", cfg.Server.Environment)
	fmt.Fprintf(out, "  Database:        %s\n", cfg.Storage.Path)
	fmt.Fprintf(out, "  Hook URL:        %s\n", valueOrNone(cfg.Hook.URL))
	fmt.Fprintf(out, "  Allow unsigned:  %t\n", cfg.Hook.AllowUnsigned)
	fmt.Fprintf(out, "  GitHub API:      %s\n", valueOrNone(cfg.GitHub.BaseURL))
	fmt.Fprintf(out, "  Tracing:         %t\n", cfg.Telemetry.Enabled)
	return nil
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
