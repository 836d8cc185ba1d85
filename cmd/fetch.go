package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	fetchForce   bool
	fetchRefresh bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the dataset into the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("dataset"); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if cfg.Dataset.Path != "" {
			fmt.Fprintf(out, "Using local dataset %s, nothing to fetch\n", cfg.Dataset.Path)
			return nil
		}

		src := cachedSource(fetchForce)
		if fetchRefresh {
			changed, err := src.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			if changed {
				fmt.Fprintf(out, "Updated %s\n", src.Path())
			} else {
				fmt.Fprintf(out, "%s is up to date\n", src.Path())
			}
			return nil
		}

		path, downloaded, err := src.Ensure(cmd.Context())
		if err != nil {
			return err
		}
		if downloaded {
			fmt.Fprintf(out, "Downloaded %s\n", path)
		} else {
			fmt.Fprintf(out, "File already exists: %s\n", path)
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "download even if a cached copy exists")
	fetchCmd.Flags().BoolVar(&fetchRefresh, "refresh", false, "re-download only if the remote ETag changed")
	rootCmd.AddCommand(fetchCmd)
}
