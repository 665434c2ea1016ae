package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sessionbridge/sessionbridge/internal/config"
	"github.com/sessionbridge/sessionbridge/internal/credential"
	"github.com/sessionbridge/sessionbridge/internal/process"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway service status",
	Long:  `Display the current status of the gateway service and its credential pools.`,
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) {
	procMgr := process.NewManager(baseDir)
	cfg := cfgMgr.Get()

	running := procMgr.IsRunning()
	pid := procMgr.ReadPID()

	color.Blue("Status for %s:", AppName)
	fmt.Printf("  %-15s: %v\n", "Running", running)
	fmt.Printf("  %-15s: %d\n", "PID", pid)

	fmt.Printf("  %-15s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-15s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-15s: %s\n", "Endpoint", fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port))

	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())
	fmt.Printf("  %-15s: v%s\n", "Version", Version)

	fmt.Println("\nCredential pools:")

	for name, providerCfg := range cfg.Providers {
		if !providerCfg.Enabled {
			continue
		}

		pool, err := loadPool(name, providerCfg)
		if err != nil {
			color.Red("  %s: %v", name, err)
			continue
		}

		summary := pool.Summary()
		fmt.Printf("  %-10s: %d total, %d active, %d expired, %d failed\n",
			name, summary.Total, summary.Active, summary.Expired, summary.Failed)
	}
}

func loadPool(provider string, cfg config.ProviderConfig) (*credential.Pool, error) {
	store := credential.NewFileStore(baseDir, provider)

	return credential.NewPool(provider, store, credential.PoolOptions{
		Strategy:  credential.Strategy(cfg.Strategy),
		FailLimit: cfg.FailLimit,
	})
}
