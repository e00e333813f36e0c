package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldward/manholeguard/internal/model"
)

var (
	sosWorkerID string
	sosEntryID  string
	sosOutcome  string
)

var sosCmd = &cobra.Command{
	Use:   "sos",
	Short: "Trigger or resolve an SOS",
}

var sosTriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Manually trigger an SOS for a worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"worker_id":        sosWorkerID,
			"entry_session_id": sosEntryID,
			"method":           string(model.TriggerManual),
		}
		var record model.SOSRecord
		if err := apiRequest("POST", "/v1/sos", body, &record); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(record)
		}
		fmt.Printf("SOS %s triggered for worker %s.\n", record.ID, record.WorkerID)
		if record.NearestHospital != nil {
			fmt.Printf("  nearest hospital: %s (%.1f km)\n",
				record.NearestHospital.Name, record.NearestHospital.DistanceKm)
		}
		if record.NearestFireStation != nil {
			fmt.Printf("  nearest fire station: %s (%.1f km)\n",
				record.NearestFireStation.Name, record.NearestFireStation.DistanceKm)
		}
		return nil
	},
}

var sosResolveCmd = &cobra.Command{
	Use:   "resolve <sos-id>",
	Short: "Close out an SOS record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"outcome": sosOutcome}
		var record model.SOSRecord
		if err := apiRequest("POST", "/v1/sos/"+args[0]+"/resolve", body, &record); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(record)
		}
		fmt.Printf("SOS %s resolved: %s\n", record.ID, record.Outcome)
		return nil
	},
}

func init() {
	sosTriggerCmd.Flags().StringVar(&sosWorkerID, "worker", "", "worker ID (required)")
	sosTriggerCmd.Flags().StringVar(&sosEntryID, "entry", "", "entry session ID (optional)")
	_ = sosTriggerCmd.MarkFlagRequired("worker")

	sosResolveCmd.Flags().StringVar(&sosOutcome, "outcome", "resolved", "resolution outcome")

	sosCmd.AddCommand(sosTriggerCmd)
	sosCmd.AddCommand(sosResolveCmd)
}
