package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alxayo/go-rornet/internal/config"
	"github.com/alxayo/go-rornet/internal/logger"
	"github.com/alxayo/go-rornet/internal/rornet/client"
)

func main() {
	cli, err := parseFlags(os.Args[1:])
	if err != nil {
		// flag package already printed usage/error
		os.Exit(2)
	}
	if cli.showVersion {
		fmt.Println(version)
		return
	}

	// Initialize global logger and set level based on flag
	logger.Init()
	if err := logger.SetLevel(cli.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cli.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	cfg, err := config.Load(cli.configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	bot := client.New(cfg)
	log.Info("bot starting",
		"server_addr", cfg.Server.Addr(),
		"username", cfg.User.Name,
		"version", version)

	// Set up signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("bot exited", "error", err)
		os.Exit(1)
	}
	log.Info("bot stopped cleanly")
}
