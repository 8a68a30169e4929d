package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidyplan/tidyplan-api/cmd/configure/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "tidyplan-configure",
		Short: "Configuration tool for the TidyPlan API",
		Long:  "CLI tool for managing database-backed runtime configuration",
	}

	rootCmd.AddCommand(commands.NewCorsCmd())
	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewApplyCmd())
	rootCmd.AddCommand(commands.NewTestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
