package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resetFailed bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Re-enqueue terminally failed sample points",
	Long:  "Failed points stay failed until explicitly reset; the crawl never retries them on its own. `reset --failed` moves them back to pending so the next crawl picks them up.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if !resetFailed {
			return eris.New("nothing to reset: pass --failed to re-enqueue failed points")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ResetFailed(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("reset failed points", zap.Int("points", n))
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetFailed, "failed", false, "re-enqueue failed points as pending")
	rootCmd.AddCommand(resetCmd)
}
