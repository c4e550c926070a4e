package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/meterfetch/internal/publisher"
	"github.com/jgoulah/meterfetch/pkg/models"
)

var (
	publishEndpoint string
	publishSince    string
	publishUntil    string
	publishAll      bool
	publishLimit    int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish usage data to MQTT and/or Home Assistant",
	Long:  `Reads stored usage data from the database and publishes it to the enabled MQTT broker and Home Assistant instance.`,
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishEndpoint, "endpoint", "", "Endpoint to publish (default: all endpoints)")
	publishCmd.Flags().StringVar(&publishSince, "since", "", "Only publish data since this date (YYYY-MM-DD or relative like 7d)")
	publishCmd.Flags().StringVar(&publishUntil, "until", "", "Only publish data until this date (YYYY-MM-DD)")
	publishCmd.Flags().BoolVar(&publishAll, "all", false, "Force republish all records (ignore published flag)")
	publishCmd.Flags().IntVar(&publishLimit, "limit", 0, "Limit number of records to publish (0 = no limit)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	// Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.UsagePointID == "" {
		return fmt.Errorf("%w: api.usage_point_id", models.ErrMissingCredentials)
	}

	// Create publisher (MQTT and/or Home Assistant)
	pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant, cfg.GetTopicPrefix(), newLogger(cfg))
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	// Open database
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// Determine which endpoints to publish
	endpoints := models.Endpoints()
	if publishEndpoint != "" {
		kind, err := models.ParseEndpointKind(publishEndpoint)
		if err != nil {
			return err
		}
		endpoints = []models.EndpointKind{kind}
	}

	// Parse date filters if provided
	var sinceDate, untilDate *time.Time
	if publishSince != "" {
		since, err := parseDate(publishSince)
		if err != nil {
			return fmt.Errorf("parsing --since date: %w", err)
		}
		sinceDate = &since
	}
	if publishUntil != "" {
		until, err := parseDate(publishUntil)
		if err != nil {
			return fmt.Errorf("parsing --until date: %w", err)
		}
		// include the whole day
		until = until.AddDate(0, 0, 1).Add(-time.Second)
		untilDate = &until
	}

	ctx := cmd.Context()
	totalPublished := 0
	for _, kind := range endpoints {
		// Get usage data based on --all flag
		var data []models.UsageData
		if publishAll {
			data, err = db.ListUsage(cfg.API.UsagePointID, kind.String())
		} else {
			data, err = db.ListUnpublishedUsage(cfg.API.UsagePointID, kind.String())
		}
		if err != nil {
			return fmt.Errorf("listing data for %s: %w", kind, err)
		}

		filtered := filterByDate(data, sinceDate, untilDate)
		if len(filtered) == 0 {
			fmt.Printf("No data to publish for %s\n", kind)
			continue
		}

		// Apply limit if specified
		if publishLimit > 0 && len(filtered) > publishLimit {
			filtered = filtered[:publishLimit]
			fmt.Printf("Limiting to %d records (--limit flag)\n", publishLimit)
		}

		fmt.Printf("Publishing %d records for %s...\n", len(filtered), kind)
		published := 0
		for i, record := range filtered {
			fmt.Printf("[%d/%d] Publishing %s (%.2f)... ", i+1, len(filtered), record.Timestamp.Format(time.DateTime), record.Consumption)
			if err := pub.Publish(ctx, record); err != nil {
				fmt.Printf("FAILED: %v\n", err)
				continue
			}

			// Mark record as published in database
			if err := db.MarkPublished(record.ID); err != nil {
				fmt.Printf("✓ (warning: failed to mark as published: %v)\n", err)
			} else {
				fmt.Printf("✓\n")
			}
			published++
		}

		fmt.Printf("Successfully published %d/%d records for %s\n", published, len(filtered), kind)
		totalPublished += published
	}

	fmt.Printf("\nTotal records published: %d\n", totalPublished)
	return nil
}

func filterByDate(data []models.UsageData, since, until *time.Time) []models.UsageData {
	if since == nil && until == nil {
		return data
	}
	var out []models.UsageData
	for _, record := range data {
		if since != nil && record.Timestamp.Before(*since) {
			continue
		}
		if until != nil && record.Timestamp.After(*until) {
			continue
		}
		out = append(out, record)
	}
	return out
}

// parseDate parses a date string in either YYYY-MM-DD format or relative format (e.g., "7d")
func parseDate(dateStr string) (time.Time, error) {
	// Try absolute date format first
	t, err := time.Parse(models.DateLayout, dateStr)
	if err == nil {
		return t, nil
	}

	// Try relative format (e.g., "7d" for 7 days ago)
	if len(dateStr) > 1 && dateStr[len(dateStr)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(dateStr[:len(dateStr)-1], "%d", &days); err == nil {
			return models.Date(time.Now().AddDate(0, 0, -days)), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD or Nd for N days ago)", dateStr)
}
