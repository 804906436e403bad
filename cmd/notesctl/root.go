package main

import (
	"os"

	"github.com/spf13/cobra"
)

type commandContext struct {
	server     string
	configPath string
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "notesctl",
		Short:         "Operator CLI for the voice notes service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	defaultServer := os.Getenv("VOICE_NOTES_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&ctx.server, "server", defaultServer, "Base URL of the voice notes API")
	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newProbeCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newFlashcardsCommand(ctx))
	rootCmd.AddCommand(newProgressCommand(ctx))

	return rootCmd
}
