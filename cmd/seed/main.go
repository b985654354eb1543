// Command seed is a one-shot tool that creates the fixed demo graph
// (accounts A1-A5, device D1, user U1) and reports the graph server's
// expected index layout, for standing up a fresh environment before
// the generator or console are started.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/novassure/graph-fraud-engine/internal/config"
	"github.com/novassure/graph-fraud-engine/internal/orchestrator"
	"github.com/novassure/graph-fraud-engine/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	inspectOnly := flag.Bool("inspect-only", false, "report index layout without seeding data")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	orch, err := orchestrator.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "constructing orchestrator: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !*inspectOnly {
		ids, err := orch.SeedSampleData(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seeding sample data: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("seeded accounts: %v\n", ids)
	}

	report := orch.InspectIndexes(ctx)
	fmt.Println(report.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		os.Exit(1)
	}
}
