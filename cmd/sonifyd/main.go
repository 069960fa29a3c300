// Command sonifyd serves the sonify transcription and diarization sessions
// over HTTP.
//
//	sonifyd -config ./config.yml
//
// Every setting can also come from the environment, e.g.
// TRANSCRIPTION_MODEL=small or DIARIZATION_CREDENTIAL=hf_xxx.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kbukum/sonify/config"
	"github.com/kbukum/sonify/logger"
	"github.com/kbukum/sonify/version"
)

func main() {
	configFile := flag.String("config", "", "path to config.yml (default: searched)")
	envFile := flag.String("env", "", "path to a .env file (default: searched)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	if err := run(*configFile, *envFile); err != nil {
		logger.Error("sonifyd stopped", logger.Fields(logger.FieldError, err.Error()))
		os.Exit(1)
	}
}

func run(configFile, envFile string) error {
	opts := []config.LoaderOption{config.WithDefaults(config.Defaults())}
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	if envFile != "" {
		opts = append(opts, config.WithEnvFile(envFile))
	}

	var cfg config.Config
	if err := config.LoadConfig("sonifyd", &cfg, opts...); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(&cfg.Logging)
	log := logger.New(&cfg.Logging, cfg.Name)
	logger.SetGlobalLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, &cfg, log)
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		a.close(context.Background())
		return err
	}

	<-ctx.Done()
	log.Info("shutting down")
	a.close(context.Background())
	return nil
}
