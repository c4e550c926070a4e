package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/meterfetch/pkg/models"
)

var listEndpoint string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored usage data",
	Long:  `Displays the stored series of the configured usage point from the database.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listEndpoint, "endpoint", "", "Filter by endpoint (default: all endpoints)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	// Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.UsagePointID == "" {
		return fmt.Errorf("%w: api.usage_point_id", models.ErrMissingCredentials)
	}

	// Open database
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// Determine which endpoints to query
	endpoints := models.Endpoints()
	if listEndpoint != "" {
		kind, err := models.ParseEndpointKind(listEndpoint)
		if err != nil {
			return err
		}
		endpoints = []models.EndpointKind{kind}
	}

	// Query and display data for each endpoint
	for _, kind := range endpoints {
		data, err := db.ListUsage(cfg.API.UsagePointID, kind.String())
		if err != nil {
			return fmt.Errorf("listing data for %s: %w", kind, err)
		}

		if len(data) == 0 {
			fmt.Printf("No data found for %s\n", kind)
			continue
		}

		fmt.Printf("\n%s:\n", kind)
		fmt.Println("----------------------------------------------")
		fmt.Printf("%-20s  %12s  %s\n", "Timestamp", "Value", "")
		fmt.Println("----------------------------------------------")

		var total float64
		for _, record := range data {
			mark := ""
			if record.Filled {
				mark = "(filled)"
			}
			fmt.Printf("%-20s  %12.2f  %s\n", record.Timestamp.Format(time.DateTime), record.Consumption, mark)
			total += record.Consumption
		}

		fmt.Println("----------------------------------------------")
		fmt.Printf("Total: %.2f (%d records)\n", total, len(data))
	}

	return nil
}
