package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"checkhub/internal/config"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a webhook secret",
	Long: `Generate a random secret suitable for hook.secret. Use the same value
as the secret of the GitHub webhook.`,
	RunE: runSecret,
}

func runSecret(cmd *cobra.Command, args []string) error {
	secret, err := config.GenerateSecret()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), secret)
	return nil
}
