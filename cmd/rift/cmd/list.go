package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/riftapp/rift/internal/store"
	"github.com/riftapp/rift/internal/tracker"
)

var (
	listFilter string
	listQuery  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the collection",
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

		books := tr.List(listFilter, listQuery)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPROGRESS\tRATING\tFAV")
		for _, b := range books {
			fav := ""
			if b.IsFavorite {
				fav = "*"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d %s\t%s\t%s\n",
				b.ID, b.Title, b.Status, b.CurrentCount, b.TrackingType, b.Rating, fav)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringVar(&listFilter, "filter", "all", `status filter ("all", "favorites", or a status)`)
	listCmd.Flags().StringVarP(&listQuery, "search", "s", "", "title search")
	rootCmd.AddCommand(listCmd)
}
