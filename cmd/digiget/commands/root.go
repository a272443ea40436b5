package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"digiget/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	dumpHttp   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "The config file to use, defaults to config.json5 in the cwd or the user config dir.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug information.")
	rootCmd.PersistentFlags().StringVar(&dumpHttp, "dump-http", "", "Write a transcript of every http request into this directory, which must be new or empty.")
}

var rootCmd = &cobra.Command{
	Use:   "digiget",
	Short: "digiget downloads the books of a digi4school account as pdfs.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
		err := telemetry.SetupFromEnv(cmd.Context(), "digiget")
		if err != nil {
			slog.Warn("failed to setup telemetry", "err", err)
		}
		telemetry.InstrumentPerfStats(cmd.Context(), 5*time.Second)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := telemetry.Shutdown(ctx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
