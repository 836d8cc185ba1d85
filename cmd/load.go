package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/openbuildings-cli/internal/store"
)

var loadBatchSize int

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Bulk-copy the dataset into the postgres buildings table",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("load"); err != nil {
			return err
		}
		ctx := cmd.Context()

		ds, err := loadDataset(ctx)
		if err != nil {
			return err
		}

		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := st.LoadBuildings(ctx, ds.Source, ds.Records, loadBatchSize)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d buildings from %s\n", n, ds.Source)
		return nil
	},
}

func init() {
	loadCmd.Flags().IntVar(&loadBatchSize, "batch-size", store.DefaultBatchSize, "rows per COPY batch")
	rootCmd.AddCommand(loadCmd)
}
