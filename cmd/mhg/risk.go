package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/ui"
)

var riskCmd = &cobra.Command{
	Use:   "risk <site-id>",
	Short: "Recompute and show a site's risk assessment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var assessment model.RiskAssessment
		if err := apiRequest("POST", "/v1/sites/"+args[0]+"/risk", nil, &assessment); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(assessment)
		}

		fmt.Printf("Site %s: score %d (%s)\n",
			assessment.SiteID, assessment.RiskScore, ui.RenderRiskLevel(assessment.RiskLevel))
		f := assessment.Factors
		fmt.Printf("  blockage %.0f  incidents %.0f  rainfall %.0f  area %.0f  gas %.0f  weather %.0f\n",
			f.BlockageFrequency, f.IncidentFactor, f.RainfallFactor,
			f.AreaRisk, f.GasFactor, f.WeatherFactor)
		fmt.Println(ui.RenderMuted("calculated " + assessment.CalculatedAt.Format("2006-01-02 15:04:05 MST")))
		return nil
	},
}
