package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fetchkit/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage Fetchkit configuration files.

Configuration can be loaded from:
  - Environment variables (FETCHKIT_*)
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with defaults",
	Long: `Create a configuration file populated with the default values.

The file is created as '.fetchkit.yaml' in the current directory unless a
different path is specified with the --config flag.`,
	RunE: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".fetchkit.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	fmt.Printf("Configuration written to %s\n", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Mask secrets before printing
	shown := *cfg
	if shown.Redis.Password != "" {
		shown.Redis.Password = "********"
	}

	out, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}

	fmt.Print(string(out))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Println("Configuration is valid.")
	return nil
}
