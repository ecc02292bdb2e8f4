// Command cliplink runs the ClipLink Discord bot. It:
//   - Loads configuration and initializes structured logging.
//   - Opens the flat-file subscription store.
//   - Connects the Discord session and registers the slash commands.
//   - Starts the clip reconciliation loop once the gateway is ready.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dinushay/ClipLink/bot"
	"github.com/dinushay/ClipLink/clipwatch"
	"github.com/dinushay/ClipLink/config"
	"github.com/dinushay/ClipLink/server"
	"github.com/dinushay/ClipLink/store"
	"github.com/dinushay/ClipLink/telemetry"
	"github.com/dinushay/ClipLink/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("cliplink", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Subscription store
	st, err := store.Open(cfg.DataFile)
	if err != nil {
		slog.Error("failed to open subscription store", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("subscription store opened", slog.String("path", cfg.DataFile), slog.Int("subscriptions", st.Count()))

	// Twitch client. The access token cell starts from the optional seed and
	// is refreshed on the first 401.
	auth := &twitchapi.Authenticator{
		ClientID:     cfg.TwitchClientID,
		RefreshToken: cfg.TwitchRefreshToken,
		Credential:   twitchapi.NewCredential(cfg.TwitchAccessToken),
	}
	twitch := &twitchapi.Client{
		ClientID:     cfg.TwitchClientID,
		Auth:         auth,
		PollInterval: cfg.CheckInterval,
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Discord session. The watcher's readiness gate opens from the ready
	// handler, so the first tick cannot precede the gateway handshake. The
	// handler may fire again on reconnect, hence the Once.
	gateOpen := make(chan struct{})
	var gateOnce sync.Once
	discord, err := bot.New(cfg.DiscordBotToken, st, twitch, cfg.MaxStreamersPerGuild, func() {
		gateOnce.Do(func() { close(gateOpen) })
	})
	if err != nil {
		slog.Error("cannot create discord bot", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := discord.Close(); err != nil {
			slog.Error("failed to close discord session", slog.Any("err", err))
		}
	}()

	watcher := clipwatch.New(st, twitch, discord.Messenger(), cfg.CheckInterval, nil)
	go func() {
		select {
		case <-ctx.Done():
		case <-gateOpen:
			watcher.MarkReady()
		}
	}()
	go watcher.Run(ctx)

	// HTTP server (health/status/metrics)
	if cfg.HTTPAddr != "off" {
		go func() {
			if err := server.Start(ctx, st, watcher, cfg.HTTPAddr); err != nil {
				slog.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	}

	slog.Info("cliplink running", slog.Duration("check_interval", cfg.CheckInterval))
	<-ctx.Done()
	slog.Info("shutting down")
}
