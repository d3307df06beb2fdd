package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	barcodescan "github.com/ericlevine/barcodescan"
	"github.com/ericlevine/barcodescan/device"
	"github.com/ericlevine/barcodescan/logger"
	"github.com/ericlevine/barcodescan/metrics"
	"github.com/ericlevine/barcodescan/server"
	"github.com/ericlevine/barcodescan/sink"
	"github.com/ericlevine/barcodescan/telemetry"
)

func serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve scan attempts over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(flushCtx); err != nil {
					logger.Log.Warn("tracing shutdown failed", slog.String("error", err.Error()))
				}
			}()

			cam, err := openCamera(cfg, nil)
			if err != nil {
				return err
			}
			scanCfg, err := cfg.ScanConfiguration()
			if err != nil {
				return err
			}

			m := metrics.New()
			opts := []server.Option{
				server.WithConfiguration(scanCfg),
				server.WithScanOptions(scannerOptions(cfg)...),
				server.WithMetrics(m),
			}
			if cfg.NATS.URL != "" {
				conn, err := sink.Connect(cfg.NATS.URL, cfg.NATS.Timeout)
				if err != nil {
					return err
				}
				defer conn.Drain()
				subject := cfg.NATS.Subject
				opts = append(opts, server.WithSinkFactory(func(id string) barcodescan.ResultSink {
					return sink.NewNATS(conn, subject, sink.WithSessionID(id))
				}))
			}

			handler := server.NewHandler(func() device.Camera { return cam }, opts...)
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler.SetupRoutes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Log.Info("starting server", slog.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Log.Info("shutdown signal received, cleaning up")
				if err := handler.Close(); err != nil {
					logger.Log.Warn("closing scan failed", slog.String("error", err.Error()))
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				return err
			}
			logger.Log.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.host:server.port)")
	return cmd
}
