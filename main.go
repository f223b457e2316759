// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/app"
	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/config"
)

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("sessiond v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "serve":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: serve command requires directory path")
			fmt.Fprintln(os.Stderr, "Usage: sessiond serve <data-directory>")
			os.Exit(1)
		}
		runServe(args[1])

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", args[0])
		fmt.Fprintln(os.Stderr)
		showUsage()
		os.Exit(1)
	}
}

func runServe(dirArg string) {
	absDir, err := filepath.Abs(dirArg)
	if err != nil {
		log.Fatalf("Invalid data directory: %v", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		log.Fatalf("Cannot create data directory: %v", err)
	}

	cfgPath := filepath.Join(absDir, "sessiond.json")
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	printBanner(absDir, cfgPath, created, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := app.Run(ctx, app.Options{
		DataDir: absDir,
		CfgPath: cfgPath,
		Cfg:     cfg,
	}); err != nil {
		log.Fatalf("Coordinator failed: %v", err)
	}
}

func showUsage() {
	fmt.Println("sessiond - telemedicine session coordinator")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sessiond serve <directory>   Run the coordinator")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve <directory>")
	fmt.Println("        Run the coordinator from the specified data directory.")
	fmt.Println("        A sessiond.json config file is created there on first run.")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -h        Show this help message")
	fmt.Println("  -version  Show version information")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Run with a fresh data directory")
	fmt.Println("  sessiond serve ./data")
	fmt.Println()
	fmt.Println("  # Point at the directory service instead of the local store")
	fmt.Println("  SESSIOND_DIRECTORY_MODE=http \\")
	fmt.Println("  SESSIOND_DIRECTORY_URL=https://appointments.internal \\")
	fmt.Println("  sessiond serve ./data")
}

func printBanner(dataDir, cfgPath string, createdCfg bool, cfg config.Config) {
	fmt.Println("╔════════════════════════════════════════════════════════╗")
	fmt.Println("║              MediConnect Session Coordinator           ║")
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Data Directory: %s\n", dataDir)
	fmt.Printf("Config File:    %s\n", cfgPath)
	if createdCfg {
		fmt.Println("                (created with defaults)")
	}
	fmt.Println()
	fmt.Printf("HTTP API:       http://%s\n", cfg.HTTP.Addr)
	if cfg.Directory.Mode == "http" {
		fmt.Printf("Directory:      %s\n", cfg.Directory.URL)
	} else {
		fmt.Printf("Directory:      local store (%s)\n", cfg.Directory.DataDir)
	}
	fmt.Printf("Chat Broker:    %s\n", cfg.Broker.URL)
	fmt.Println()
	fmt.Println("Starting coordinator... (Press Ctrl+C to stop)")
	fmt.Println("────────────────────────────────────────────────────────")
	fmt.Println()
}
