// Command signalist runs the alert evaluation and notification engine. It
// loads configuration, validates it, sets up signal handling and starts the
// application in the configured mode.
//
// With -seal-out it instead reads a secret from stdin, seals it with the
// passphrase in SIGNALIST_SECRET_PASSPHRASE and writes it to the given path.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/signalist/internal/app"
	"github.com/alanyoungcy/signalist/internal/config"
	"github.com/alanyoungcy/signalist/internal/crypto"
)

func main() {
	configPath := flag.String("config", "", "path to TOML configuration file (empty: defaults + environment)")
	mode := flag.String("mode", "", "override the configured mode (engine, once, full)")
	sealOut := flag.String("seal-out", "", "seal a secret read from stdin into this file and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *sealOut != "" {
		if err := sealSecret(os.Stdin, *sealOut); err != nil {
			fmt.Fprintf(os.Stderr, "seal: %v\n", err)
			os.Exit(1)
		}
		logger.Info("sealed secret written", slog.String("path", *sealOut))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("signalist starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = application.Run(ctx)
	stop()
	application.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	logger.Info("signalist stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// sealSecret reads the first line of r and writes it sealed to path.
func sealSecret(r io.Reader, path string) error {
	passphrase := os.Getenv("SIGNALIST_SECRET_PASSPHRASE")
	if passphrase == "" {
		return errors.New("SIGNALIST_SECRET_PASSPHRASE must be set")
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return errors.New("empty secret on stdin")
	}
	return crypto.SealFile(path, secret, passphrase)
}
