package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskhub/core/cmd/api/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskhub",
		Short: "TaskHub API Server",
		Long:  `TaskHub is a task management backend with dependency tracking, field-level change history and cache-backed analytics.`,
	}

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewUserCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
