package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func RootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hertrain",
		Short: "Distributed DDPG+HER training",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// optional .env for defaults; flags still win
			_ = godotenv.Load()
			UpdateFlags()
		},
	}
	AddFlags(cmd)

	cmd.AddCommand(
		TrainCommand(),
	)

	return cmd
}
