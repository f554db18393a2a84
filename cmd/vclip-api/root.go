package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vclip-api",
		Short: "vclip gateway",
		Long:  "The vclip gateway: WebSocket session admission, job submission, and progress streaming.",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

func Execute() {
	root := NewRootCmd()
	root.SetContext(context.Background())
	root.SetOutput(os.Stdout)
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("vclip-api: fatal")
	}
}
