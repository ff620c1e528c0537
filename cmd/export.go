package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/panocount/internal/export"
	"github.com/sells-group/panocount/internal/store"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the canonical panorama set to CSV or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		panos, err := st.ListPanoramas(ctx, store.PanoramaFilter{Limit: 1 << 30})
		if err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.Data.OutputDir, 0o755); err != nil {
			return eris.Wrap(err, "create output directory")
		}

		path := exportOut
		switch exportFormat {
		case "csv":
			if path == "" {
				path = filepath.Join(cfg.Data.OutputDir, "panoramas.csv")
			}
			err = export.WriteCSV(panos, path)
		case "xlsx":
			if path == "" {
				path = filepath.Join(cfg.Data.OutputDir, "panoramas.xlsx")
			}
			err = export.WriteXLSX(panos, path)
		default:
			return eris.Errorf("unsupported format %q (want csv or xlsx)", exportFormat)
		}
		if err != nil {
			return err
		}

		zap.L().Info("exported panoramas",
			zap.String("path", path),
			zap.Int("panoramas", len(panos)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default under the output directory)")
	rootCmd.AddCommand(exportCmd)
}
