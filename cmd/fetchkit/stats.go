package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"fetchkit/pkg/storage"
)

// statsCmd prints the most recent batch report
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the most recent batch report",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		dir := cfg.Output.BaseDirectory
		if outputDir != "" {
			dir = outputDir
		}

		reports, err := filepath.Glob(filepath.Join(dir, "report-*.json"))
		if err != nil || len(reports) == 0 {
			return fmt.Errorf("no reports found in %s", dir)
		}
		sort.Strings(reports)
		latest := reports[len(reports)-1]

		content, err := os.ReadFile(latest)
		if err != nil {
			return fmt.Errorf("failed to read report: %w", err)
		}

		var report storage.Report
		if err := json.Unmarshal(content, &report); err != nil {
			return fmt.Errorf("failed to parse report: %w", err)
		}

		fmt.Printf("Report:       %s\n", latest)
		printReport(&report)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory to read reports from")
}
