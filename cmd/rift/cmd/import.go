package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/riftapp/rift/internal/store"
	"github.com/riftapp/rift/internal/tracker"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the collection from a JSON export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read import file: %w", err)
		}

		st, err := store.Open(dbPath, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		tr, err := tracker.New(cmd.Context(), st, logger)
		if err != nil {
			return err
		}

		count, err := tr.Import(cmd.Context(), data)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d books\n", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
