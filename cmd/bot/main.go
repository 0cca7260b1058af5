package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/kalshibot/internal/execution"
	"github.com/betbot/kalshibot/internal/risk"
	"github.com/betbot/kalshibot/pkg/config"
	"github.com/betbot/kalshibot/pkg/kalshi"
	"github.com/betbot/kalshibot/pkg/logger"
	"github.com/betbot/kalshibot/pkg/shutdown"
	"github.com/betbot/kalshibot/pkg/syncgroup"
)

func main() {
	var (
		envFile      = flag.String("env", ".env", "dotenv file with KALSHI_* credentials")
		strategyFile = flag.String("strategy", "strategy.yml", "strategy config file")
		logLevel     = flag.String("log-level", "info", "debug, info, warn, error")
		logFile      = flag.String("log-file", "", "optional log file with rotation")
		intentTTL    = flag.Duration("intent-ttl", 2*time.Minute, "watchdog TTL for stuck pending intents")
	)
	flag.Parse()

	if err := run(*envFile, *strategyFile, *logLevel, *logFile, *intentTTL); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile, strategyFile, logLevel, logFile string, intentTTL time.Duration) error {
	// Missing dotenv is fine when the variables come from the shell.
	_ = godotenv.Load(envFile)

	if err := logger.Init(logger.Config{
		Level:      logLevel,
		OutputFile: logFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		return err
	}

	creds := config.LoadCredentials()
	if err := creds.Validate(); err != nil {
		return err
	}

	strat, err := config.LoadStrategyConfig(strategyFile)
	if err != nil {
		return err
	}

	// A key that fails to load means no request can ever be signed.
	auth, err := kalshi.NewAuth(creds.APIKeyID, creds.PrivateKeyPath)
	if err != nil {
		return err
	}
	client := kalshi.NewClient(creds.Host(), auth)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !client.HealthCheck(ctx) {
		return fmt.Errorf("exchange unreachable at %s", creds.Host())
	}
	logger.Infof("connected to %s (demo=%v)", creds.Host(), creds.DemoMode)

	ledger := risk.NewGroupLedger()
	for name, limit := range strat.GroupLimits() {
		if err := ledger.Register(name, limit); err != nil {
			return err
		}
		if strat.LiveMode {
			resp, err := client.CreateOrderGroup(ctx, limit)
			if err != nil {
				return err
			}
			ledger.MarkCreated(name, resp.OrderGroupID)
			logger.Infof("order group %q registered as %s (cap %d)", name, resp.OrderGroupID, limit)
		}
	}

	engine := execution.NewEngine(client, ledger)
	engine.StartWatchdog(ctx, intentTTL, 15*time.Second)

	stream := kalshi.NewStreamClient(creds.Host(), auth)
	if err := stream.Start(ctx); err != nil {
		return err
	}
	if err := stream.Subscribe(
		[]string{kalshi.ChannelTicker, kalshi.ChannelOrderbookDelta, kalshi.ChannelFill},
		[]string{strat.Ticker},
	); err != nil {
		return err
	}

	sg := syncgroup.NewSyncGroup()
	sg.Add(func() { consumeStream(ctx, stream) })
	sg.Add(func() { balanceLoop(ctx, client) })
	sg.Run()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigC
	logger.Infof("received %s, stopping", sig)

	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(context.Context) { cancel() })
	mgr.OnShutdown(func(context.Context) { stream.Stop() })

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	mgr.Shutdown(stopCtx)
	sg.Wait()
	return nil
}

// consumeStream drains market data. Strategy logic plugs in here; the
// core only routes frames.
func consumeStream(ctx context.Context, stream *kalshi.StreamClient) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream.Messages():
			if !ok {
				return
			}
			logger.Debugf("stream %s frame (%d bytes)", msg.Type, len(msg.Msg))
		}
	}
}

// balanceLoop logs the cash balance periodically so operators can see
// drift without hitting the dashboard.
func balanceLoop(ctx context.Context, client *kalshi.Client) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bal, err := client.GetBalance(ctx)
			if err != nil {
				logger.Warnf("balance fetch failed: %v", err)
				continue
			}
			logger.Infof("balance $%s", bal.Dollars().StringFixed(2))
		}
	}
}
