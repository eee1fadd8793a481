// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/playgrid/playgrid/bot"
	"github.com/playgrid/playgrid/engine"
	"github.com/playgrid/playgrid/input"
	"github.com/playgrid/playgrid/lib/config"
	"github.com/playgrid/playgrid/lib/ref"
	"github.com/playgrid/playgrid/lib/version"
	"github.com/playgrid/playgrid/messaging"
	"github.com/playgrid/playgrid/persist"
	"github.com/playgrid/playgrid/scheduler"
	"github.com/playgrid/playgrid/session"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var verbose bool

	flagSet := pflag.NewFlagSet("playgrid-bot", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to playgrid.yaml (overrides PLAYGRID_CONFIG)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("playgrid-bot")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runBot(ctx, cfg, logger)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// runBot assembles the service from configuration and runs it until
// the context is cancelled.
func runBot(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	userID, err := ref.ParseUserID(cfg.Homeserver.UserID)
	if err != nil {
		return fmt.Errorf("homeserver.user_id: %w", err)
	}
	roomID, err := ref.ParseRoomID(cfg.Homeserver.Room)
	if err != nil {
		return fmt.Errorf("homeserver.room: %w", err)
	}
	accessToken, err := readAccessToken(cfg.Homeserver.AccessTokenFile)
	if err != nil {
		return err
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver.URL,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	matrix, err := client.SessionFromToken(userID, accessToken)
	if err != nil {
		return err
	}
	defer matrix.CloseIdleConnections()

	// Fail fast on a stale or mismatched token before touching the room.
	actual, err := matrix.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("verifying access token: %w", err)
	}
	if actual != userID {
		return fmt.Errorf("access token belongs to %s, config names %s", actual, userID)
	}

	if err := matrix.JoinRoom(ctx, roomID); err != nil {
		return err
	}
	watcher, err := messaging.WatchRoom(ctx, matrix, roomID)
	if err != nil {
		return err
	}

	overflow, err := session.ParseOverflowPolicy(cfg.Sessions.QueueOverflow)
	if err != nil {
		return err
	}
	compression, err := persist.ParseCompression(cfg.Persistence.Compression)
	if err != nil {
		return err
	}

	store, err := persist.OpenStore(persist.StoreConfig{
		Path:        cfg.Persistence.DatabasePath,
		Compression: compression,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("opening save store: %w", err)
	}
	defer store.Close()

	keymap := input.DefaultKeymap()
	if cfg.Input.KeymapFile != "" {
		keymap, err = input.LoadKeymap(cfg.Input.KeymapFile)
		if err != nil {
			return err
		}
	}

	registry := session.NewRegistry(session.RegistryConfig{
		MaxSessions:    cfg.Sessions.MaxConcurrent,
		SinglePerOwner: cfg.Sessions.SinglePerOwner,
		Logger:         logger,
	})

	b := bot.New(bot.Config{
		Transport: matrix,
		Events:    watcher,
		Room:      roomID,
		Self:      userID,
		Registry:  registry,
		Gateway:   persist.NewGateway(store, nil, logger),
		Keymap:    keymap,
		NewEngine: func() engine.Engine {
			return engine.NewDemo(cfg.Display.GridWidth, cfg.Display.GridHeight)
		},
		SessionConfig: session.Config{
			GridWidth:       cfg.Display.GridWidth,
			GridHeight:      cfg.Display.GridHeight,
			NoiseThreshold:  cfg.Display.NoiseThreshold,
			QueueCapacity:   cfg.Sessions.QueueCapacity,
			Overflow:        overflow,
			CommandsPerTick: cfg.Sessions.CommandsPerTick,
			StatusLine:      cfg.Display.StatusLine,
		},
		Scheduler: scheduler.Config{
			TickInterval:      cfg.Scheduler.TickInterval.Std(),
			SendBudget:        cfg.Scheduler.SendBudget,
			RetryLimit:        cfg.Scheduler.TransportRetryLimit,
			IdleRenderDivisor: cfg.Scheduler.IdleRenderDivisor,
			IdleTimeout:       cfg.Sessions.IdleTimeout.Std(),
		},
		Debounce: cfg.Input.Debounce.Std(),
		Logger:   logger,
	})

	logger.Info("playgrid starting",
		"version", version.Info(),
		"homeserver", cfg.Homeserver.URL,
		"room", roomID,
		"max_sessions", cfg.Sessions.MaxConcurrent,
	)
	return b.Run(ctx)
}

func readAccessToken(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("homeserver.access_token_file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading access token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("access token file %s is empty", path)
	}
	return token, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Playgrid bot — multiplexes game sessions into a Matrix room.

Players start a game with "!play"; the bot posts a message that it
continuously edits with rendered frames, seeds control reactions on
it, and translates reaction presses back into game input.

Configuration is a YAML file named by PLAYGRID_CONFIG or --config.

Usage:
  playgrid-bot [flags]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
