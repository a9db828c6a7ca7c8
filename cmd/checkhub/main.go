package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev" // Will be set during build

var rootCmd = &cobra.Command{
	Use:   "checkhub",
	Short: "Pull request checks driven by GitHub webhooks",
	Long: `Checkhub receives GitHub webhooks, verifies their signatures and runs the
checks enabled on each repository, reporting results as commit statuses.`,
	Version: version,
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv("CHECKHUB_CONFIG_FILE"), "Path to checkhub.yaml configuration file")

	// Register subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(deliveriesCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(versionCmd)
}
