package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show crawl progress and panorama count",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.StatusCounts(ctx)
		if err != nil {
			return err
		}
		unique, err := st.CountPanoramas(ctx)
		if err != nil {
			return err
		}
		outside, err := st.CountFoundOutside(ctx)
		if err != nil {
			return err
		}

		p := message.NewPrinter(language.English)
		p.Fprintf(os.Stdout, "Sample points\n")
		p.Fprintf(os.Stdout, "  pending:      %12d\n", counts.Pending)
		p.Fprintf(os.Stdout, "  in progress:  %12d\n", counts.InProgress)
		p.Fprintf(os.Stdout, "  queried:      %12d\n", counts.Queried)
		p.Fprintf(os.Stdout, "  failed:       %12d\n", counts.Failed)
		p.Fprintf(os.Stdout, "  total:        %12d\n", counts.Total())
		if total := counts.Total(); total > 0 {
			done := counts.Queried + counts.Failed
			p.Fprintf(os.Stdout, "  progress:     %11.1f%%\n", 100*float64(done)/float64(total))
		}
		p.Fprintf(os.Stdout, "\nPanoramas\n")
		p.Fprintf(os.Stdout, "  unique:       %12d\n", unique)
		p.Fprintf(os.Stdout, "  outside:      %12d\n", outside)
		if counts.Complete() {
			p.Fprintf(os.Stdout, "\nCrawl complete.\n")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
