package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/jgoulah/meterfetch/internal/config"
	"github.com/jgoulah/meterfetch/internal/fetch"
	"github.com/jgoulah/meterfetch/internal/scraper"
	"github.com/jgoulah/meterfetch/internal/series"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a template config file",
	Long: `Writes a config.yaml with every setting at its default value. Credentials are
left empty; fill them in or set them through the .env file.`,
	RunE: runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := getConfigPath()
	if err := writeTemplateConfig(path, configForce); err != nil {
		return err
	}
	fmt.Printf("✓ Wrote %s\n", path)
	fmt.Printf("  Set api.usage_point_id and api.access_token, or %s/%s in .env\n", config.EnvUsagePointID, config.EnvAccessToken)
	return nil
}

// templateConfig returns a config holding every default explicitly
func templateConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{
			BaseURL:           scraper.DefaultBaseURL,
			RequestsPerSecond: scraper.DefaultRequestsPerSecond,
		},
		Cache: config.CacheConfig{
			Backend: config.CacheFile,
			Dir:     (&config.Config{}).GetCacheDir(),
		},
		MaxAPICalls: fetch.DefaultMaxCalls,
		Tariff:      series.DefaultTariff,
		Exclude:     series.DefaultExclude,
		LogLevel:    "info",
	}
}

// writeTemplateConfig refuses to replace an existing file unless force is set
func writeTemplateConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", path, err)
		}
	}

	if err := config.Save(path, templateConfig()); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}
