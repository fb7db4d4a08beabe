package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/sheet"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply store migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var refdataFlags struct {
	codes      string
	regulatory string
	sheetName  string
	skipRows   int
}

var refdataCmd = &cobra.Command{
	Use:   "refdata",
	Short: "Manage tariff reference data",
}

var refdataImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the code book and regulatory sheets",
	RunE: func(cmd *cobra.Command, args []string) error {
		if refdataFlags.codes == "" && refdataFlags.regulatory == "" {
			return eris.New("at least one of --codes or --regulatory is required")
		}
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return importRefdata(cmd.Context(), st, refdataFlags.codes, refdataFlags.regulatory, sheet.Options{
			SheetName: refdataFlags.sheetName,
			SkipRows:  refdataFlags.skipRows,
		})
	},
}

func init() {
	f := refdataImportCmd.Flags()
	f.StringVar(&refdataFlags.codes, "codes", "", "path to the code book xlsx")
	f.StringVar(&refdataFlags.regulatory, "regulatory", "", "path to the regulatory xlsx")
	f.StringVar(&refdataFlags.sheetName, "sheet", "", "sheet name (default first sheet)")
	f.IntVar(&refdataFlags.skipRows, "skip-rows", 0, "rows to skip before the header")
	refdataCmd.AddCommand(refdataImportCmd)
	rootCmd.AddCommand(refdataCmd, migrateCmd)
}

// refdataImporter is the part of the store that loads reference data.
type refdataImporter interface {
	ImportCodes(ctx context.Context, recs []model.CodeRecord) (int64, error)
	ImportRegulatory(ctx context.Context, recs []model.RegulatoryRecord) (int64, error)
}

func importRefdata(ctx context.Context, st refdataImporter, codesPath, regPath string, opts sheet.Options) error {
	if codesPath != "" {
		recs, err := sheet.ReadCodes(codesPath, opts)
		if err != nil {
			return err
		}
		n, err := st.ImportCodes(ctx, recs)
		if err != nil {
			return eris.Wrap(err, "import codes")
		}
		zap.L().Info("codes imported", zap.String("file", codesPath), zap.Int64("rows", n))
	}

	if regPath != "" {
		recs, err := sheet.ReadRegulatory(regPath, opts)
		if err != nil {
			return err
		}
		n, err := st.ImportRegulatory(ctx, recs)
		if err != nil {
			return eris.Wrap(err, "import regulatory")
		}
		zap.L().Info("regulatory records imported", zap.String("file", regPath), zap.Int64("rows", n))
	}
	return nil
}
