package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the gateway configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run 'sbridge start' to create defaults.")
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-15s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-15s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-15s: %s\n", "API Key", maskString(cfg.APIKey))
	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())
	fmt.Printf("  %-15s: %v\n", "Strip Reasoning", cfg.StripReasoning)
	fmt.Printf("  %-15s: %v\n", "Clean Mode", cfg.CleanMode)

	fmt.Println("\nProviders:")
	for name, provider := range cfg.Providers {
		fmt.Printf("  - Name: %s\n", name)
		fmt.Printf("    Enabled: %v\n", provider.Enabled)
		if provider.BaseURL != "" {
			fmt.Printf("    Base URL: %s\n", provider.BaseURL)
		}
		if provider.Strategy != "" {
			fmt.Printf("    Strategy: %s\n", provider.Strategy)
		}
		if provider.FailLimit > 0 {
			fmt.Printf("    Fail Limit: %d\n", provider.FailLimit)
		}
		if limit := cfg.RateLimits[name]; limit > 0 {
			fmt.Printf("    Rate Limit: %d/min\n", limit)
		}
		fmt.Println()
	}

	if cfg.AutoRefresh.Enabled {
		fmt.Printf("Auto refresh: every %d minutes\n", cfg.AutoRefresh.IntervalMinutes)
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		return fmt.Errorf("no configuration found")
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var problems []string

	enabled := 0
	for name, provider := range cfg.Providers {
		if provider.Enabled {
			enabled++
		}

		switch provider.Strategy {
		case "", "round-robin", "random":
		default:
			problems = append(problems, fmt.Sprintf("provider %s: unknown strategy %q", name, provider.Strategy))
		}

		if provider.FailLimit < 0 {
			problems = append(problems, fmt.Sprintf("provider %s: fail limit must not be negative", name))
		}
	}

	if enabled == 0 {
		problems = append(problems, "no providers enabled")
	}

	for name, limit := range cfg.RateLimits {
		if limit < 0 {
			problems = append(problems, fmt.Sprintf("rate limit for %s must not be negative", name))
		}
	}

	if len(problems) > 0 {
		color.Red("Configuration validation failed:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("configuration validation failed")
	}

	color.Green("Configuration is valid!")
	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
