package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/riftapp/rift/internal/store"
	"github.com/riftapp/rift/internal/tracker"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the collection as pretty-printed JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		st, err := store.Open(dbPath, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		tr, err := tracker.New(cmd.Context(), st, logger)
		if err != nil {
			return err
		}

		data, filename, err := tr.Export()
		if err != nil {
			return err
		}

		out := exportOutput
		if out == "-" {
			_, err = os.Stdout.Write(append(data, '\n'))
			return err
		}
		if out == "" {
			out = filename
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Printf("exported %s\n", out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default dated filename, \"-\" for stdout)")
	rootCmd.AddCommand(exportCmd)
}
