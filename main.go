package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dselans/zpeek/checkpoint"
	"github.com/dselans/zpeek/config"
	"github.com/dselans/zpeek/scanner"
	"github.com/dselans/zpeek/server"
	"github.com/dselans/zpeek/sink"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Println("ERROR: ", err)
		os.Exit(1)
	}

	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: cfg.CLI.DisableColor,
		FullTimestamp: true,
	})

	logrus.SetLevel(cfg.LogLevel())

	if cfg.CLI.Debug {
		logrus.Info("debug mode enabled")
	}

	if !cfg.CLI.Quiet {
		displayConfig(cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.CLI.Command() {
	case config.CommandServe:
		err = serve(ctx, cfg)
	default:
		err = scan(ctx, cfg)
	}

	if err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func scan(ctx context.Context, cfg *config.Config) error {
	store, err := checkpoint.New(cfg)
	if err != nil {
		return fmt.Errorf("unable to create checkpoint store: %s", err)
	}
	defer store.Close()

	out, err := newSink(ctx, cfg)
	if err != nil {
		return fmt.Errorf("unable to create sink: %s", err)
	}
	defer out.Close()

	s, err := scanner.New(cfg, store, out)
	if err != nil {
		return fmt.Errorf("unable to create scanner: %s", err)
	}

	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("error during scanner run: %s", err)
	}

	return nil
}

// newSink opens the configured destination, except on dry runs which must
// leave it untouched.
func newSink(ctx context.Context, cfg *config.Config) (sink.Sink, error) {
	if cfg.CLI.Scan.DryRun {
		return sink.Discard{}, nil
	}

	return sink.New(ctx, cfg.TOML.Destination)
}

func serve(ctx context.Context, cfg *config.Config) error {
	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("unable to create server: %s", err)
	}

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("error during server run: %s", err)
	}

	return nil
}

func displayConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	logrus.Info("zpeek settings:")
	logrus.Info("  [CLI]")
	logrus.Infof("  version: %s", config.VERSION)
	logrus.Infof("  command: %s", cfg.CLI.Command())
	logrus.Infof("  debug: %v", cfg.CLI.Debug)
	logrus.Infof("  config file: %s", cfg.CLI.ConfigFile)
	logrus.Infof("  disable color: %v", cfg.CLI.DisableColor)
	logrus.Infof("  quiet: %v", cfg.CLI.Quiet)

	if cfg.CLI.Command() == config.CommandScan {
		logrus.Infof("  report output: %s", cfg.CLI.Scan.ReportOutput)
		logrus.Infof("  report interval: %s", cfg.CLI.Scan.ReportInterval)
		logrus.Infof("  dry run: %v", cfg.CLI.Scan.DryRun)
		logrus.Infof("  disable resume: %v", cfg.CLI.Scan.DisableResume)
	}

	logrus.Info("")
	logrus.Info("  [CONFIG]")
	logrus.Infof("  config.log_level: %s", cfg.LogLevel())
	logrus.Infof("  config.num_workers: %d", cfg.TOML.Config.NumWorkers)
	logrus.Infof("  config.chunk_size: %d", cfg.TOML.Config.ChunkSize)
	logrus.Infof("  config.checkpoint_file: %s", cfg.TOML.Config.CheckpointFile)
	logrus.Infof("  config.checkpoint_redis: %s", cfg.TOML.Config.CheckpointRedis)
	logrus.Infof("  config.checkpoint_interval: %s", cfg.TOML.Config.CheckpointInterval.Duration())
	logrus.Infof("  config.disable_checkpointing: %v", cfg.TOML.Config.DisableCheckpointing)
	logrus.Infof("  config.disable_dupecheck: %v", cfg.TOML.Config.DisableDupecheck)
	logrus.Info("")

	if cfg.CLI.Command() == config.CommandServe {
		logrus.Info("  [SERVER]")
		logrus.Infof("  server.listen: %s", cfg.TOML.Server.Listen)
		logrus.Infof("  server.max_body: %d", cfg.TOML.Server.MaxBody)
		return
	}

	logrus.Info("  [SOURCE]")
	for _, f := range cfg.TOML.Source.Files {
		logrus.Infof("  source.files: %s", f)
	}
	for _, e := range cfg.TOML.Source.Exclude {
		logrus.Infof("  source.exclude: %s", e)
	}
	logrus.Info("")
	logrus.Info("  [DESTINATION]")
	logrus.Infof("  destination.type: %s", cfg.TOML.Destination.Type)
	logrus.Infof("  destination.path: %s", cfg.TOML.Destination.Path)
	logrus.Infof("  destination.table: %s", cfg.TOML.Destination.Table)
}
