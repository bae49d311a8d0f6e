// Devopsd runs the multi-agent DevOps workflow orchestrator.
//
// By default it serves the HTTP API. With --mcp it serves the same tools over
// MCP stdio for editor and agent integrations.
//
// Configuration is read from ~/.config/devopsd/config.yaml (or --config) and
// DEVOPSD_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the HTTP daemon
//	devopsd
//
//	# Serve MCP over stdio
//	devopsd --mcp
//
//	# Configure via environment
//	DEVOPSD_SERVER_HTTP_PORT=9292 DEVOPSD_NATS_ENABLED=true devopsd
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/devopsd/config.yaml)")
	mcpMode := flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  devopsd [--config path]   Start the HTTP daemon\n")
			fmt.Fprintf(os.Stderr, "  devopsd --mcp             Serve MCP over stdio\n")
			fmt.Fprintf(os.Stderr, "  devopsd version           Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, options{configPath: *configPath, mcp: *mcpMode}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("devopsd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}
