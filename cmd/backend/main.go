package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/foxseedlab/bonfire/external/config"
	"github.com/foxseedlab/bonfire/external/discord"
	repositoryimpl "github.com/foxseedlab/bonfire/external/repository"
	webhookimpl "github.com/foxseedlab/bonfire/external/webhook"
	"github.com/foxseedlab/bonfire/internal/access"
	"github.com/foxseedlab/bonfire/internal/api"
	"github.com/foxseedlab/bonfire/internal/commands"
	"github.com/foxseedlab/bonfire/internal/config"
	"github.com/foxseedlab/bonfire/internal/dbpool"
	discordpkg "github.com/foxseedlab/bonfire/internal/discord"
	"github.com/foxseedlab/bonfire/internal/notes"
	"github.com/foxseedlab/bonfire/internal/presence"
	"github.com/foxseedlab/bonfire/internal/verify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do/v2"
	"golang.org/x/sync/errgroup"
)

const discordConnectTimeout = 20 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, injector); err != nil {
		slog.Error("bonfire stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, newRegistry())
	repositoryimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	access.RegisterDI(injector)
	notes.RegisterDI(injector)
	verify.RegisterDI(injector)
	presence.RegisterDI(injector)
	commands.RegisterDI(injector)
	api.RegisterDI(injector)

	return injector
}

func run(ctx context.Context, cfg *config.Config, injector do.Injector) error {
	pool, err := do.Invoke[*dbpool.Pool](injector)
	if err != nil {
		return err
	}
	defer pool.Close()

	dc, err := do.Invoke[discordpkg.Client](injector)
	if err != nil {
		return err
	}
	tracker, err := do.Invoke[*presence.Tracker](injector)
	if err != nil {
		return err
	}
	handler, err := do.Invoke[*commands.Handler](injector)
	if err != nil {
		return err
	}
	server, err := do.Invoke[*api.Server](injector)
	if err != nil {
		return err
	}

	// Handlers go in before the gateway opens so no early event is missed.
	dc.RegisterVoiceStateUpdateHandler(tracker.HandleVoiceStateUpdate)
	dc.RegisterSlashCommandHandler(handler.HandleSlashCommand)
	dc.RegisterMemberUpdateHandler(handler.HandleMemberUpdate)

	connectCtx, cancel := context.WithTimeout(ctx, discordConnectTimeout)
	defer cancel()
	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(connectCtx); err != nil {
		return err
	}
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()
	slog.Info("startup: discord connected")

	if err := dc.UpsertGuildSlashCommands(cfg.DiscordGuildID, commands.SlashCommandDefinitions()); err != nil {
		slog.Error("failed to upsert slash commands", "error", err, "guild_id", cfg.DiscordGuildID)
		return err
	}
	slog.Info("discord handlers registered", "guild_id", cfg.DiscordGuildID, "commands", commands.CommandNames())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.HTTPAddr)
	})
	g.Go(func() error {
		slog.Info("startup: entering discord run loop")
		return dc.Run(gctx)
	})

	err = g.Wait()
	handler.Wait()
	slog.Info("shutting down", "open_sessions", tracker.OpenSessionCount())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
