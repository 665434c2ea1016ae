package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Manage provider credential pools",
	Long:    `List, add, remove and reset credentials in a provider's pool.`,
}

var credentialsListCmd = &cobra.Command{
	Use:   "list <provider>",
	Short: "List credentials for a provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsList,
}

var credentialsAddFile string

var credentialsAddCmd = &cobra.Command{
	Use:   "add <provider> [key=value...]",
	Short: "Add a credential to a provider's pool",
	Long: `Add a credential built from key=value payload fields, for example:
  sbridge credentials add deepseek token=... cookie=...
  sbridge credentials add claude session_key=... org_id=...

With --file the payload is read as a JSON object from the given path,
or from stdin when the path is "-", as produced by a capture tool:
  sbridge credentials add deepseek --file captured.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCredentialsAdd,
}

var credentialsRemoveCmd = &cobra.Command{
	Use:   "remove <provider> <id>",
	Short: "Remove a credential by id",
	Args:  cobra.ExactArgs(2),
	RunE:  runCredentialsRemove,
}

var credentialsResetCmd = &cobra.Command{
	Use:   "reset <provider> <id>",
	Short: "Restore a credential to active with a clean failure count",
	Args:  cobra.ExactArgs(2),
	RunE:  runCredentialsReset,
}

var credentialsReorderCmd = &cobra.Command{
	Use:   "reorder <provider> <id> [id...]",
	Short: "Reorder a provider's credentials",
	Long:  `Rearrange rotation order. Ids not mentioned keep their relative order and move to the end.`,
	Args:  cobra.MinimumNArgs(2),
	RunE:  runCredentialsReorder,
}

func init() {
	credentialsAddCmd.Flags().StringVar(&credentialsAddFile, "file", "", "read the payload as a JSON object from this path, or stdin with -")

	credentialsCmd.AddCommand(credentialsListCmd)
	credentialsCmd.AddCommand(credentialsAddCmd)
	credentialsCmd.AddCommand(credentialsRemoveCmd)
	credentialsCmd.AddCommand(credentialsResetCmd)
	credentialsCmd.AddCommand(credentialsReorderCmd)
}

func runCredentialsList(cmd *cobra.Command, args []string) error {
	provider := args[0]

	pool, err := loadPool(provider, cfgMgr.Get().Providers[provider])
	if err != nil {
		return err
	}

	summary := pool.Summary()

	color.Blue("Credentials for %s (%d total, strategy %s):", provider, summary.Total, summary.Strategy)

	if summary.Total == 0 {
		color.Yellow("  (none)")
		return nil
	}

	for _, e := range summary.Entries {
		status := string(e.Status)

		switch e.Status {
		case "active":
			status = color.GreenString(status)
		case "failed":
			status = color.RedString(status)
		case "expired":
			status = color.YellowString(status)
		}

		lastUsed := "never"
		if e.LastUsed != nil {
			lastUsed = e.LastUsed.Format(time.RFC3339)
		}

		if e.ExpiresSoon {
			status += color.YellowString(" (expires soon)")
		}

		fmt.Printf("  %s  %s  failures=%d  last_used=%s\n", e.ID, status, e.FailCount, lastUsed)

		if e.LastError != "" {
			fmt.Printf("      last error: %s\n", e.LastError)
		}
	}

	return nil
}

func runCredentialsAdd(cmd *cobra.Command, args []string) error {
	provider := args[0]

	payload, err := buildPayload(args[1:])
	if err != nil {
		return err
	}

	if len(payload) == 0 {
		return fmt.Errorf("no payload fields given; pass key=value pairs or --file")
	}

	pool, err := loadPool(provider, cfgMgr.Get().Providers[provider])
	if err != nil {
		return err
	}

	id, err := pool.Add(payload)
	if err != nil {
		return err
	}

	color.Green("Added credential %s to %s pool", id, provider)
	return nil
}

// buildPayload merges --file JSON (if given) with key=value overrides.
func buildPayload(pairs []string) (map[string]string, error) {
	payload := make(map[string]string)

	if credentialsAddFile != "" {
		var data []byte
		var err error

		if credentialsAddFile == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(credentialsAddFile)
		}

		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}

		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("parse payload file: %w", err)
		}
	}

	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid payload field %q, expected key=value", pair)
		}

		payload[key] = value
	}

	return payload, nil
}

func runCredentialsRemove(cmd *cobra.Command, args []string) error {
	provider, id := args[0], args[1]

	pool, err := loadPool(provider, cfgMgr.Get().Providers[provider])
	if err != nil {
		return err
	}

	removed, err := pool.Remove(id)
	if err != nil {
		return err
	}

	if !removed {
		color.Yellow("No credential %s in %s pool", id, provider)
		return nil
	}

	color.Green("Removed credential %s from %s pool", id, provider)
	return nil
}

func runCredentialsReorder(cmd *cobra.Command, args []string) error {
	provider := args[0]

	pool, err := loadPool(provider, cfgMgr.Get().Providers[provider])
	if err != nil {
		return err
	}

	if err := pool.Reorder(args[1:]); err != nil {
		return err
	}

	color.Green("Reordered %s pool", provider)
	return nil
}

func runCredentialsReset(cmd *cobra.Command, args []string) error {
	provider, id := args[0], args[1]

	pool, err := loadPool(provider, cfgMgr.Get().Providers[provider])
	if err != nil {
		return err
	}

	if err := pool.ResetStatus(id); err != nil {
		return err
	}

	color.Green("Reset credential %s in %s pool", id, provider)
	return nil
}
