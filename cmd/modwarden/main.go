package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"modwarden/internal/bot"
	"modwarden/internal/config"
	"modwarden/internal/handler"
	"modwarden/internal/metrics"
	"modwarden/internal/storage"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var app = cli.Command{
	Name:  "modwarden",
	Usage: "Discord moderation bot",

	Flags: []cli.Flag{
		&flagConfig,
		&flagLog,
	},
	Commands: []*cli.Command{
		{
			Name:   "check",
			Usage:  "Load every handler definition and report the result without connecting",
			Action: cliCheck,
		},
	},
	Action: cliRun,
}

var (
	flagConfig = cli.StringFlag{
		Name:       "config",
		Usage:      "YAML or TOML config file, also read from CONFIG_PATH",
		Value:      config.Path(),
		Persistent: true,
	}

	flagLog = cli.StringFlag{
		Name:       "log",
		Usage:      "Logging level, one of debug, info, warn, error; overrides the config file",
		Persistent: true,
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cli.Command, connect bool) (config.Config, *zap.Logger, error) {
	read := config.Read
	if connect {
		read = config.Load
	}
	cfg, err := read(cmd.String("config"))
	if err != nil {
		return config.Config{}, nil, err
	}
	if level := cmd.String("log"); level != "" {
		cfg.LogLevel = level
	}
	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func cliRun(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("storage init failed: %w", err)
	}
	m := metrics.New()
	botSvc, err := bot.New(cfg, logger, store, m)
	if err != nil {
		return fmt.Errorf("bot init failed: %w", err)
	}
	defer botSvc.Close()

	group, ctx := errgroup.WithContext(ctx)
	if cfg.Health.Enabled {
		group.Go(func() error {
			return metrics.Serve(ctx, cfg.Health.Addr, metrics.Mux(m.Registry()), logger)
		})
	}
	group.Go(func() error {
		if err := botSvc.Start(ctx); err != nil {
			return fmt.Errorf("bot start failed: %w", err)
		}
		logger.Info("bot started")
		<-ctx.Done()
		logger.Info("shutdown requested")
		return nil
	})
	return group.Wait()
}

// cliCheck runs one load cycle per kind and prints the reports. It fails the
// same way startup would.
func cliCheck(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("storage init failed: %w", err)
	}
	botSvc, err := bot.New(cfg, logger, store, nil)
	if err != nil {
		return err
	}
	defer botSvc.Close()

	reports, err := botSvc.LoadHandlers()
	for _, report := range reports {
		printReport(report)
	}
	return err
}

func printReport(report handler.LoadReport) {
	fmt.Printf("%-8s %d files, %d loaded, %d failed\n", report.Kind, report.TotalFiles, report.LoadedCount, report.FailedCount)
	for _, failure := range report.Failures {
		fmt.Printf("         %s: %s\n", failure.File, failure.Reason)
	}
}
