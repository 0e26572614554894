package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/gridbot/broker"
	"github.com/rustyeddy/gridbot/broker/binance"
	"github.com/rustyeddy/gridbot/journal"
	"github.com/rustyeddy/gridbot/live"
	"github.com/rustyeddy/gridbot/sim"
	"github.com/rustyeddy/gridbot/strategy"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run the ladder against Binance USD-M futures",
	Long: `Live polls the venue every live.poll_interval and runs one strategy step
per poll. Keys are read from BINANCE_API_KEY and BINANCE_API_SECRET.

With --dry-run, prices and signals come from the venue but orders fill
against a paper position, and no account settings are changed.

Example:
  gridbot live -c gridbot.yaml --dry-run`,
	RunE: runLive,
}

var (
	liveDryRun  bool
	liveMetrics string
	liveDB      string
)

func init() {
	rootCmd.AddCommand(liveCmd)

	liveCmd.Flags().BoolVar(&liveDryRun, "dry-run", false, "fill orders against a paper position")
	liveCmd.Flags().StringVar(&liveMetrics, "metrics-addr", "", "listen address for /metrics (overrides live.metrics_addr)")
	liveCmd.Flags().StringVarP(&liveDB, "db", "d", "", "SQLite trade journal (overrides live.db_path)")
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if liveMetrics != "" {
		cfg.Live.MetricsAddr = liveMetrics
	}
	if liveDB != "" {
		cfg.Live.DBPath = liveDB
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()
	log = log.With(zap.String("symbol", cfg.Symbol), zap.Bool("dry_run", liveDryRun))

	bcfg := cfg.Binance()
	if !liveDryRun && (bcfg.APIKey == "" || bcfg.APISecret == "") {
		return fmt.Errorf("BINANCE_API_KEY and BINANCE_API_SECRET are required unless --dry-run is set")
	}
	client, err := binance.New(bcfg, log.Named("binance"))
	if err != nil {
		return err
	}

	var (
		gw   broker.Gateway = broker.NewRetryGateway(client, cfg.Live.Retry, log.Named("retry"))
		prep live.Preparer  = client
	)
	if liveDryRun {
		gw = sim.DryRun{Market: gw, Paper: sim.NewPaperGateway(cfg.Fees.TakerFee)}
		prep = nil
	}

	var j journal.Journal = journal.Nop{}
	if cfg.Live.DBPath != "" {
		db, err := journal.NewSQLite(cfg.Live.DBPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		j = db
	}

	engine, err := strategy.NewEngine(cfg.Params(), gw, j, log.Named("engine"))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := live.NewMetrics(reg)

	worker := live.NewWorker(engine, gw, live.Config{
		PollInterval: cfg.Live.PollInterval,
		RSIRefresh:   cfg.Live.RSIRefresh,
	}, metrics, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting live loop",
		zap.String("base_url", client.BaseURL()),
		zap.Int("leverage", cfg.Live.Leverage),
		zap.Duration("poll_interval", cfg.Live.PollInterval))
	return live.Serve(ctx, worker, prep, cfg.Live.MetricsAddr, reg)
}
