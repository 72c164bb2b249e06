// knxipd runs a KNX/IP routing device.
//
// The daemon joins the KNX/IP multicast group, dispatches group telegrams
// to the callbacks registered by the application in app.go and keeps its
// address, assignments and configuration in a non-volatile store. State is
// published to MQTT and InfluxDB and exposed over an HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "knxipd",
		Short: "KNX/IP routing device daemon",
		Long: `knxipd is a KNX/IP device that listens on the routing multicast group,
dispatches group telegrams to application callbacks and persists its
configuration across restarts.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd.Context())
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", getConfigPath(), "config file")

	root.AddCommand(
		newRunCmd(),
		newInspectCmd(),
		newResetCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the device until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd.Context())
		},
	}
}

func runCommand(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return run(ctx, cfgFile)
}

// getConfigPath returns the configuration file path.
// Uses KNXIP_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("KNXIP_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
