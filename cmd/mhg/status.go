package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workers currently underground",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Entries []*model.EntrySession `json:"entries"`
		}
		if err := apiRequest("GET", "/v1/entries?live=1", nil, &resp); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp.Entries)
		}

		if len(resp.Entries) == 0 {
			fmt.Println("No workers underground.")
			return nil
		}

		now := time.Now().UTC()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ENTRY\tWORKER\tSITE\tSTATE\tELAPSED\tALLOWED")
		for _, e := range resp.Entries {
			elapsed := now.Sub(e.EntryTime).Round(time.Minute)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dm\n",
				e.ID, e.WorkerID, e.SiteID, ui.RenderState(e.State),
				elapsed, e.AllowedDurationMinutes)
		}
		return w.Flush()
	},
}
