package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/onflow/flow-dkg-stress/module/mocknode"
)

var (
	opts mocknode.Options
	log  zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dkg-mocknode",
	Short: "Run a simulated DKG node for stress test development",
	// the supervisor passes the full argument set of a real node
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	SilenceUsage:       true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts.Finalize(cmd.Flags())
		return mocknode.Run(cmd.Context(), log, opts)
	},
}

func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	opts.BindFlags(rootCmd.Flags())

	log = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
