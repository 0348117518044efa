package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spec-kit/flow-helpdesk/internal/service"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize data from external sources",
}

var syncVendorsCmd = &cobra.Command{
	Use:   "vendors",
	Short: "Pull vendors from BigQuery and upsert them by handle",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		result, err := s.app.Sync.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import records from files",
}

var importVendorsCmd = &cobra.Command{
	Use:   "vendors <file>",
	Short: "Upsert vendors from a CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := service.FormatFromFilename(filepath.Base(args[0]))
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		result, err := s.app.Imports.ImportVendors(cmd.Context(), nil, format, f)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

func init() {
	syncCmd.AddCommand(syncVendorsCmd)
	importCmd.AddCommand(importVendorsCmd)
	rootCmd.AddCommand(syncCmd, importCmd)
}
