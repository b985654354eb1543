// Command cli is an interactive console over the fraud engine's
// control API: start/stop the transaction generator, toggle rules,
// inspect indexes, and watch sliding-window statistics without
// standing up the HTTP control surface.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/novassure/graph-fraud-engine/internal/config"
	"github.com/novassure/graph-fraud-engine/internal/orchestrator"
	"github.com/novassure/graph-fraud-engine/internal/performance"
	"github.com/novassure/graph-fraud-engine/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
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

	ctx := context.Background()

	orch, err := orchestrator.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "constructing orchestrator: %v\n", err)
		os.Exit(1)
	}
	if err := orch.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "starting orchestrator: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("graph-fraud-engine console. Type 'help' for commands.")
	runREPL(ctx, orch)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		os.Exit(1)
	}
}

func runREPL(ctx context.Context, orch *orchestrator.Orchestrator) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		cmd, args := fields[0], fields[1:]
		if cmd == "quit" || cmd == "exit" {
			return
		}
		if err := dispatch(ctx, orch, cmd, args); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func dispatch(ctx context.Context, orch *orchestrator.Orchestrator, cmd string, args []string) error {
	switch cmd {
	case "help":
		printHelp()
	case "stats":
		printStats(orch.Stats(1))
	case "performance":
		printStats(orch.Stats(parseWindow(args)))
	case "fraud":
		return printFraud(ctx, orch, parseWindow(args))
	case "transactions":
		ok, err := orch.GenerateOne(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("generated transaction, submitted=%v\n", ok)
	case "indexes":
		fmt.Println(orch.InspectIndexes(ctx).String())
	case "create-fraud-index":
		if err := orch.CreateFraudIndex(ctx); err != nil {
			return err
		}
		fmt.Println("fraud index probe succeeded")
	case "seed":
		ids, err := orch.SeedSampleData(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("seeded accounts: %s\n", strings.Join(ids, ", "))
	case "start":
		if len(args) != 1 {
			return fmt.Errorf("usage: start <tps>")
		}
		tps, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid tps %q", args[0])
		}
		fmt.Println(orch.StartGenerator(ctx, tps))
	case "stop":
		fmt.Println(orch.StopGenerator())
	default:
		return fmt.Errorf("unknown command %q; try 'help'", cmd)
	}
	return nil
}

func printHelp() {
	fmt.Println(`Commands:
  help                       show this message
  stats                      1-minute window across all streams
  performance [1|5|10]       transaction/execution/queueWait/dbLatency stats
  fraud [1|5|10]             per-rule stats plus fraud counters
  transactions               generate and submit one transaction synchronously
  indexes                    report expected graph indexes
  create-fraud-index         probe graph connectivity for index creation
  seed                       create the fixed demo graph and rebind the generator
  start <tps>                start the transaction generator
  stop                       stop the transaction generator
  quit                       exit the console`)
}

func printStats(s orchestrator.StatsReport) {
	if s.WindowCoerced {
		fmt.Println("(window out of range; coerced to 1 minute)")
	}
	fmt.Printf("transaction: %s\n", formatStats(s.Transaction))
	fmt.Printf("execution:   %s\n", formatStats(s.Execution))
	fmt.Printf("queueWait:   %s\n", formatStats(s.QueueWait))
	fmt.Printf("dbLatency:   %s\n", formatStats(s.DBLatency))
	for name, rs := range s.Rules {
		fmt.Printf("rule %-6s %s\n", name, formatStats(rs))
	}
}

func printFraud(ctx context.Context, orch *orchestrator.Orchestrator, window int) error {
	counters, err := orch.FraudCounters(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("fraud: total=%d blocked=%d review=%d amount=%d\n",
		counters["total"], counters["blocked"], counters["review"], counters["amount"])

	for _, state := range orch.ListRules() {
		rs, coerced, known := orch.RuleStats(window, state.Name)
		if !known {
			continue
		}
		if coerced {
			fmt.Print("(window out of range; coerced to 1 minute) ")
		}
		fmt.Printf("rule %-6s enabled=%-5v %s\n", state.Name, state.Enabled, formatStats(rs))
	}
	return nil
}

func formatStats(s performance.Stats) string {
	return fmt.Sprintf("count=%d avg=%s max=%s min=%s successRate=%.2f qps=%.1f",
		s.Count, s.Avg.Round(time.Microsecond), s.Max.Round(time.Microsecond), s.Min.Round(time.Microsecond), s.SuccessRate, s.QPS)
}

func parseWindow(args []string) int {
	if len(args) == 0 {
		return 1
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 1
	}
	return n
}
