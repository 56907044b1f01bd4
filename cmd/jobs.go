package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/store"
)

var (
	jobsStatus string
	jobsUser   string
	jobsLimit  int
	jobsJSON   bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List scrape jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		jobs, err := st.ListJobs(cmd.Context(), store.JobFilter{
			Status: model.JobStatus(jobsStatus),
			UserID: jobsUser,
			Limit:  jobsLimit,
		})
		if err != nil {
			return err
		}

		if jobsJSON {
			return json.NewEncoder(os.Stdout).Encode(jobs)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tCATEGORY\tLOCATIONS\tLEADS\tCREATED")
		for _, j := range jobs {
			leads := "-"
			if j.Result != nil {
				leads = fmt.Sprintf("%d", j.Result.LeadCount)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
				j.ID, j.Status, j.Category, len(j.Locations), leads,
				j.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return tw.Flush()
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (pending|processing|completed|failed)")
	jobsCmd.Flags().StringVar(&jobsUser, "user", "", "filter by user id")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "maximum jobs to list")
	jobsCmd.Flags().BoolVar(&jobsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(jobsCmd)
}
