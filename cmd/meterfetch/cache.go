package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jgoulah/meterfetch/internal/cache"
	"github.com/jgoulah/meterfetch/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the raw response cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached raw responses",
	Long:  `Lists the raw API responses kept by the file cache backend.`,
	RunE:  runCacheList,
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	// Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if backend := cfg.GetCacheBackend(); backend != config.CacheFile {
		return fmt.Errorf("cache list only supports the file backend (configured: %s)", backend)
	}

	dir := cfg.GetCacheDir()
	entries, err := cache.NewFile(dir).List()
	if err != nil {
		return fmt.Errorf("listing cache: %w", err)
	}
	if len(entries) == 0 {
		fmt.Printf("No cached responses in %s\n", dir)
		return nil
	}

	var total uint64
	for _, e := range entries {
		fmt.Printf("%-70s  %10s  %s\n", e.Name, humanize.Bytes(uint64(e.Size)), humanize.Time(e.ModTime))
		total += uint64(e.Size)
	}
	fmt.Printf("\n%d responses, %s in %s\n", len(entries), humanize.Bytes(total), dir)
	return nil
}
