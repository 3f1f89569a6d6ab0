// Bluerial - BLE presence watcher
//
// This is the main entry point for the Bluerial service. Bluerial listens
// for Bluetooth Low Energy advertisements, keeps a presence cache of the
// devices it hears, and bridges that cache onto MQTT using the plain-text
// "<namespace>-<verb>[-###<payload>]" command protocol. A second bridge
// pipes device payloads out through a framed serial port.
//
// Commands:
//   - serve:   run the watcher and both bridges until interrupted
//   - console: interactive MQTT client for the text protocol
//   - version: print build information
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
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnvVar overrides defaultConfigPath when --config is not given.
const configEnvVar = "BLUERIAL_CONFIG"

func main() {
	// Cancel on Ctrl+C and SIGTERM so every command shuts down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "bluerial",
		Short: "BLE presence watcher with MQTT and serial bridges",
		Long: `Bluerial listens for Bluetooth Low Energy advertisements, keeps a
presence cache of nearby devices, and exposes it over MQTT using the
ble-* and serial-* text protocol.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to config file (default $"+configEnvVar+" or "+defaultConfigPath+")")

	cmd.AddCommand(
		newServeCmd(opts),
		newConsoleCmd(opts),
		newDevicesCmd(opts),
		newHistoryCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// resolveConfigPath returns the configuration file path.
//
// Priority:
//  1. --config flag
//  2. BLUERIAL_CONFIG environment variable
//  3. Default path (configs/config.yaml)
func (o *rootOptions) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}
