// Package main is the entry point for the dtc binary.
//
// The Device Tracking Container ingests GPS fixes from WebSocket clients and
// MQTT producers, derives motion telemetry, and fans enriched location events
// out to every viewer subscribed to the device.
//
// Usage:
//
//	dtc serve -c dtc.yml  # Start the tracking server
//	dtc version           # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "dtc",
	Short: "Real-time device tracking server",
	Long: `dtc is a real-time device tracking server.

Trackers publish GPS fixes over WebSocket or MQTT; the server derives
distance, bearing, speed, and motion state from each fix and broadcasts
the enriched event to every viewer joined to the device's topic.

Quick start:
  1. Create a config file (dtc.yml)
  2. Run: dtc serve -c dtc.yml
  3. Connect a viewer to ws://localhost:8000/api/v1/ws`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dtc %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
