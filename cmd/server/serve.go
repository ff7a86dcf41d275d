package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"ardrone-svr/internal/api"
	"ardrone-svr/internal/config"
	"ardrone-svr/internal/events"
	"ardrone-svr/internal/grpcclient"
	"ardrone-svr/internal/link"
	"ardrone-svr/internal/observability"
	"ardrone-svr/internal/pipeline"
	"ardrone-svr/internal/server"
	"ardrone-svr/internal/session"
	"ardrone-svr/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the drone and serve the control API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogLevel)
	logger.Info("Starting ardrone-svr...", "drone", cfg.DroneIP, "version", Version)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := session.New(session.Config{
		Terminator:    cfg.Terminator,
		MaxFrameBytes: cfg.MaxFrameBytes,
		Decoder: pipeline.DecoderConfig{
			LengthMode:     cfg.LengthMode,
			StrictChecksum: cfg.StrictChecksum,
		},
	}, logger)

	// destinos de snapshots
	var (
		sinks  []pipeline.Sink
		mirror api.Mirror
	)
	if cfg.RedisAddr != "" {
		r, err := store.NewRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			logger.Error("Redis init failed", "error", err)
			return err
		}
		defer r.Close()
		sinks = append(sinks, r)
		mirror = r
	}
	if cfg.GRPCServer != "" {
		g, err := grpcclient.NewGRPCClient(cfg.GRPCServer)
		if err != nil {
			logger.Error("gRPC client init failed", "error", err)
			return err
		}
		defer g.Close()
		sinks = append(sinks, g)
	}
	if len(cfg.KafkaBrokers) > 0 {
		prod, err := events.ConnectProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.Error("Kafka producer init failed", "error", err)
			return err
		}
		pub := events.NewPublisher(prod, cfg.KafkaTopic)
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	proc := pipeline.NewProcessor(sess.ID, logger, sinks...)
	sess.Decoder().Subscribe(proc.Observer())

	rx, err := server.NewNavdataReceiver(server.ReceiverConfig{
		ListenAddr: cfg.ListenAddr(),
		DroneAddr:  cfg.NavdataAddr(),
		Multicast:  cfg.Multicast,
		Interface:  cfg.Interface,
		RawLogDir:  cfg.RawLogDir,
	}, logger)
	if err != nil {
		return err
	}
	rx.Register(cfg.NavdataAddr(), sess)

	tx, err := server.NewControlSender(server.SenderConfig{
		DroneAddr: cfg.ControlAddr(),
		Tick:      cfg.Tick,
		RawLogDir: cfg.RawLogDir,
	}, sess, logger)
	if err != nil {
		rx.Close()
		return err
	}

	cl := link.NewLink(cfg.ConfigAddr(), sess.ConfigBuffer(), link.Options{}, logger)
	cl.OnDump(func(dump string) {
		logger.Debug("drone configuration", "keys", len(link.ParseConfig(dump)))
	})

	sess.Identify()
	sess.SetOption("general:navdata_demo", "TRUE")
	// el firmware ignora FTRIM en vuelo
	sess.ResetTrim()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error(name+" failed", "error", err)
				stop()
			}
		}()
	}

	run("pipeline", proc.Run)
	run("navdata receiver", rx.Run)
	run("control sender", tx.Run)
	run("config link", func(ctx context.Context) error { cl.Run(ctx); return nil })
	if cfg.MetricsPort != "" {
		run("metrics server", func(ctx context.Context) error {
			return observability.StartMetricsServer(ctx, cfg.MetricsPort)
		})
	}
	if cfg.APIAddr != "" {
		srv := api.NewServer(cfg.APIAddr, sess, api.Options{
			Processor:  proc,
			Mirror:     mirror,
			ConfigLink: cl,
			ConfigAddr: cfg.ConfigAddr(),
		}, logger)
		run("api", srv.Run)
	}

	<-ctx.Done()
	logger.Info("shutting down", "session", sess.ID)
	wg.Wait()
	return nil
}
