package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "engine-notification",
	Short: "Run the workflow engine's notification executor outside the HTTP server",
}

func init() {
	rootCmd.PersistentFlags().String("rules", envOr("RULES_PATH", "rules.yaml"), "path to the engine rule file")
	rootCmd.PersistentFlags().String("database-url", envOr("DATABASE_URL", ""), "postgres connection string for the notification store (empty uses an in-memory store, for dev only)")
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
