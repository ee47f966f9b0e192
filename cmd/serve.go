// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code.hybscloud.com/captp"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(cfg *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo bootstrap object over TCP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, closeLog, err := loggerFromConfig(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.GetString(keyListen))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			log.Info("serving", "addr", ln.Addr().String())
			return serve(ctx, ln, cfg.GetString(keyMetrics), log)
		},
	}
	cmd.Flags().String("listen", "", "TCP address to accept peers on")
	cmd.Flags().String("metrics", "", "HTTP address for /metrics (disabled if empty)")
	_ = cfg.BindPFlag(keyListen, cmd.Flags().Lookup("listen"))
	_ = cfg.BindPFlag(keyMetrics, cmd.Flags().Lookup("metrics"))
	return cmd
}

// serve runs one session per accepted connection until ctx ends.
func serve(ctx context.Context, ln net.Listener, metricsAddr string, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	metrics := captp.NewMetrics(reg)

	g, ctx := errgroup.WithContext(ctx)
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			nc, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			id := uuid.NewString()
			clog := log.With("conn", id, "remote", nc.RemoteAddr().String())
			c := captp.NewConn(ctx, nc,
				captp.WithBootstrap(newDemo()),
				captp.WithLogger(clog),
				captp.WithMetrics(metrics),
				captp.WithName(id),
			)
			clog.Info("peer connected")
			g.Go(func() error {
				<-c.Done()
				clog.Info("peer disconnected", "reason", c.Err())
				_ = c.Wait()
				return nil
			})
		}
	})
	return g.Wait()
}
