// Package main runs one multi-wallet dispatch operation from the command line
// and prints its execution summary as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-dispatch/internal/app"
	"solana-dispatch/internal/config"
	"solana-dispatch/internal/dispatch"
	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/planner"
	"solana-dispatch/internal/reporting"
	"solana-dispatch/internal/wallet"
)

func main() {
	configPath := flag.String("config", "dispatch.toml", "Path to TOML configuration")
	keysPath := flag.String("keys", "", "Keypair file (overrides operation.keys_path)")
	total := flag.Float64("total", 0, "Total SOL to distribute (overrides operation.total_sol)")
	shape := flag.String("shape", "", "Distribution shape: even, random, fibonacci, whale")
	seed := flag.Int64("seed", 0, "Planner seed, 0 for operation.seed or a time-based seed")
	wallets := flag.Int("wallets", 0, "Wallet count for -dry-run without a keypair file")
	dryRun := flag.Bool("dry-run", false, "Print the plan without sending anything")
	format := flag.String("format", "json", "Summary output: json, markdown or csv")
	flag.Parse()

	if err := run(*configPath, flags{
		keysPath: *keysPath,
		total:    *total,
		shape:    *shape,
		seed:     *seed,
		wallets:  *wallets,
		dryRun:   *dryRun,
		format:   *format,
	}, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "dispatch: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	keysPath string
	total    float64
	shape    string
	seed     int64
	wallets  int
	dryRun   bool
	format   string
}

// apply overlays non-zero flags on the [operation] section.
func (f flags) apply(cfg *config.Config) {
	if f.keysPath != "" {
		cfg.Operation.KeysPath = f.keysPath
	}
	if f.total > 0 {
		cfg.Operation.TotalSOL = f.total
	}
	if f.shape != "" {
		cfg.Operation.Shape = f.shape
	}
	if f.seed != 0 {
		cfg.Operation.Seed = f.seed
	}
}

func run(configPath string, f flags, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	stealth, err := cfg.StealthParams()
	if err != nil {
		return err
	}
	shape, err := domain.ParseDistributionShape(cfg.Operation.Shape)
	if err != nil {
		return err
	}
	totalAmount := domain.LamportsFromSOL(cfg.Operation.TotalSOL)
	seed := cfg.Operation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var signers []domain.Signer
	if cfg.Operation.KeysPath != "" {
		keys, err := wallet.LoadKeypairFile(cfg.Operation.KeysPath)
		if err != nil {
			return fmt.Errorf("load keys: %w", err)
		}
		for _, k := range keys {
			signers = append(signers, k)
		}
		logger.Info("loaded wallets", slog.Int("count", len(signers)))
	}

	if f.dryRun {
		n := f.wallets
		if len(signers) > 0 {
			n = len(signers)
		}
		plan, err := planner.New(seed).PlanCount(totalAmount, n, shape, stealth)
		if err != nil {
			return err
		}
		return writeJSON(out, app.NewPlanView(plan))
	}

	if len(signers) == 0 {
		return &domain.ConfigError{Field: "operation.keys_path", Reason: "a keypair file is required to dispatch"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer engine.Close()
	engine.Start(ctx)

	sum, err := engine.Controller.SubmitOperation(ctx, dispatch.OperationRequest{
		TotalAmount: totalAmount,
		Wallets:     signers,
		Shape:       shape,
		Stealth:     stealth,
		Seed:        &seed,
	})
	if err != nil {
		return err
	}
	return writeSummary(out, f.format, sum)
}

func writeSummary(w io.Writer, format string, sum *domain.ExecutionSummary) error {
	switch format {
	case "", "json":
		return writeJSON(w, app.NewSummaryView(sum))
	case "markdown", "md":
		_, err := io.WriteString(w, reporting.RenderSummaryMarkdown(sum))
		return err
	case "csv":
		_, err := io.WriteString(w, reporting.RenderOutcomesCSV(sum.Outcomes))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
