// Command client runs a script in a local origin realm bridged to a realm
// host.
//
// Usage:
//
//	./client -url ws://localhost:8000/realm -script app.js -linger 5s
//
// BRIDGE_MANIFEST may name a YAML, TOML or JSON manifest whose types are set
// up before the script runs.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/realmbridge/internal/manifest"
	"github.com/GriffinCanCode/realmbridge/internal/proxify"
	"github.com/GriffinCanCode/realmbridge/internal/realm"
	"github.com/GriffinCanCode/realmbridge/internal/transport/ws"
)

func main() {
	url := flag.String("url", "ws://localhost:8000/realm", "Realm host websocket URL")
	script := flag.String("script", "", "Script to run in the origin realm")
	linger := flag.Duration("linger", 0, "How long to keep the link open after the script; 0 waits for a signal")
	flag.Parse()

	cfg := config.LoadOrDefault()
	logger := logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)
	defer logger.Sync()

	if *script == "" {
		logger.Fatal("No script given")
	}
	source, err := os.ReadFile(*script)
	if err != nil {
		logger.Fatal("Failed to read script", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	realmCfg := realm.DefaultConfig("origin")
	realmCfg.Timeout = cfg.Realm.Timeout
	realmCfg.EnableConsole = cfg.Realm.Console
	origin, err := realm.New(realmCfg, logger.Component("realm"))
	if err != nil {
		logger.Fatal("Failed to start realm", zap.Error(err))
	}
	defer origin.Close()

	peer, err := ws.Dial(ctx, *url, origin,
		ws.WithName("origin"),
		ws.WithLogger(logger.Component("peer")),
		ws.WithRequestTimeout(cfg.Bridge.RequestTimeout),
		ws.WithReadLimit(cfg.Bridge.MaxMessageBytes),
		ws.WithBreaker(resilience.Settings{
			MaxFailures: cfg.Bridge.BreakerFailures,
			Cooldown:    cfg.Bridge.BreakerCooldown,
		}),
	)
	if err != nil {
		logger.Fatal("Failed to connect", zap.String("url", *url), zap.Error(err))
	}
	defer peer.Close()

	o := proxify.NewOrigin(origin, peer,
		proxify.WithLogger(logger.Component("proxify")),
		proxify.WithRequestTimeout(cfg.Bridge.RequestTimeout),
	)
	peer.Bind(o)
	go func() {
		if err := peer.Run(ctx); err != nil {
			logger.Warn("Link closed", zap.Error(err))
		}
	}()

	bridge := proxify.NewBridge(o)
	if err := bridge.Install(ctx); err != nil {
		logger.Fatal("Failed to install bridge", zap.Error(err))
	}

	if cfg.Bridge.Manifest != "" {
		m, err := manifest.Load(cfg.Bridge.Manifest)
		if err != nil {
			logger.Fatal("Failed to load manifest", zap.Error(err))
		}
		if err := bridge.SetupManifest(ctx, m); err != nil {
			logger.Fatal("Failed to set up manifest types", zap.Error(err))
		}
	}

	res, err := origin.ExecuteNamed(ctx, *script, string(source))
	if err != nil {
		logger.Fatal("Script failed", zap.Error(err))
	}
	logger.Info("Script finished", zap.Any("result", res.Value), zap.Duration("duration", res.Duration))

	if *linger > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *linger)
		defer cancel()
	}

	select {
	case <-ctx.Done():
	case <-peer.Done():
		logger.Info("Realm host closed the link")
	}
}
