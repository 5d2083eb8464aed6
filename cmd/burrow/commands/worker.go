package commands

import (
	"context"
	"log"

	"github.com/dyluth/burrow/internal/transform"
	"github.com/dyluth/burrow/internal/worker"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Serve the worker protocol on stdin and stdout",
	Long:   `Started by "burrow run" for process and container isolation. Not meant to be run by hand.`,
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout is the protocol stream
		log.SetOutput(cmd.ErrOrStderr())

		handler := worker.NewHandler(transform.DefaultRegistry())
		return worker.Serve(context.Background(), cmd.InOrStdin(), cmd.OutOrStdout(), handler)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
