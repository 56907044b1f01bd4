package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/scrape"
)

var (
	scrapeCategory  string
	scrapeLocations []string
	scrapePages     []int
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run a one-off interactive scrape",
	Long:  "Queries the search provider for every (location, page) pair concurrently and prints deduplicated results as JSON. Nothing is persisted; use the serve/worker pair for durable jobs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := scrape.NewService(newSearchClient(), scrape.WithRetry(searchRetry()))

		results, err := svc.Run(cmd.Context(), model.ScrapeRequest{
			Category:  scrapeCategory,
			Locations: scrapeLocations,
			Pages:     scrapePages,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeCategory, "category", "", "business category to search for")
	scrapeCmd.Flags().StringSliceVar(&scrapeLocations, "location", nil, "target location (repeatable)")
	scrapeCmd.Flags().IntSliceVar(&scrapePages, "page", []int{1}, "result page (repeatable)")
	scrapeCmd.MarkFlagRequired("category")
	scrapeCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(scrapeCmd)
}
