package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vclip-worker",
		Short: "vclip pipeline worker",
		Long:  "Claims jobs from the queue and runs the analyze/download/reprocess/render pipeline.",
	}
	root.AddCommand(newWorkCmd())
	root.AddCommand(newJanitorCmd())
	return root
}

func Execute() {
	root := NewRootCmd()
	root.SetContext(context.Background())
	root.SetOutput(os.Stdout)
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("vclip-worker: fatal")
	}
}
