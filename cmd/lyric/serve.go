package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joshp123/gohome-lyric/internal/config"
	"github.com/joshp123/gohome-lyric/internal/logging"
	"github.com/joshp123/gohome-lyric/internal/metrics"
	"github.com/joshp123/gohome-lyric/internal/oauth"
	"github.com/joshp123/gohome-lyric/internal/poller"
	"github.com/joshp123/gohome-lyric/internal/publish"
	"github.com/joshp123/gohome-lyric/internal/server"
	"github.com/joshp123/gohome-lyric/internal/service"
	"github.com/joshp123/gohome-lyric/lyric"
)

const apiTimeout = 30 * time.Second

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	return config.Load(c.String("config"))
}

func checkConfigCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if _, err := cfg.Lyric.ResolveAPIKey(); err != nil {
		return err
	}
	if _, err := oauth.LoadBootstrap(cfg.Lyric.BootstrapFile); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "config ok: grpc=%s http=%s poll=%s mqtt=%t\n",
		cfg.Core.GRPCAddr, cfg.Core.HTTPAddr, cfg.Lyric.PollInterval, cfg.MQTT.Enabled)
	return nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Core.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger)
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	apiKey, err := cfg.Lyric.ResolveAPIKey()
	if err != nil {
		return err
	}

	store, err := oauth.NewBlobStore(cfg.OAuth)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	manager, err := oauth.NewManager(
		oauth.Honeywell(cfg.Lyric.StatePath),
		cfg.Lyric.BootstrapFile,
		store,
		oauth.WithLogger(logger.Named("oauth")),
	)
	if err != nil {
		return fmt.Errorf("oauth: %w", err)
	}
	manager.StartWithInterval(ctx, oauth.RefreshInterval(cfg.OAuth))

	opts := []lyric.Option{lyric.WithLogger(logger.Named("lyric"))}
	if cfg.Lyric.BaseURL != "" {
		opts = append(opts, lyric.WithBaseURL(cfg.Lyric.BaseURL))
	}
	client, err := lyric.NewClient(manager.HTTPClient(nil, apiTimeout), apiKey, opts...)
	if err != nil {
		return err
	}

	var publisher *publish.Publisher
	if cfg.MQTT.Enabled {
		publisher, err = publish.New(publish.Config{
			BrokerURL: cfg.MQTT.BrokerURL,
			ClientID:  cfg.MQTT.ClientID,
			BaseTopic: cfg.MQTT.BaseTopic,
			QoS:       cfg.MQTT.QoS,
			Retain:    cfg.MQTT.Retain,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
		}, client, logger.Named("mqtt"))
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	var collector *metrics.Collector
	pollOpts := []poller.Option{
		poller.WithLogger(logger.Named("poller")),
		poller.WithObserver(func(err error) { collector.ObservePoll(err) }),
		poller.WithAuthFailureHandler(manager.TriggerRefresh),
	}
	if publisher != nil {
		pollOpts = append(pollOpts, poller.WithSubscriber(publisher.Publish))
	}
	poll, err := poller.New(client, cfg.Lyric.PollInterval, pollOpts...)
	if err != nil {
		return err
	}
	collector = metrics.NewCollector(poll)

	registry, err := server.NewRegistry(append(oauth.MetricsCollectors(), collector)...)
	if err != nil {
		return fmt.Errorf("metrics registry: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr, logger.Named("grpc"))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	service.Register(grpcServer.Server, service.New(client, logger.Named("service")))

	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, server.NewMux(registry, pollHealth(poll, time.Now)))

	logger.Info("lyric starting",
		zap.String("grpc_addr", cfg.Core.GRPCAddr),
		zap.String("http_addr", cfg.Core.HTTPAddr),
		zap.Duration("poll_interval", cfg.Lyric.PollInterval),
		zap.Bool("mqtt", publisher != nil),
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return httpServer.Run(ctx) })
	eg.Go(func() error { return grpcServer.Run(ctx) })
	eg.Go(func() error { return poll.Run(ctx) })
	if publisher != nil {
		eg.Go(func() error { return publisher.Run(ctx) })
	}

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("lyric stopped", zap.Error(err))
	return err
}
