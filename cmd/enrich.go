package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <lead-id>",
	Short: "Run the enrichment waterfall for one lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		orchestrator, _, err := newOrchestrator(st)
		if err != nil {
			return err
		}

		lead, err := orchestrator.EnrichLead(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lead)
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}
