package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/vqueue/internal/logging"
	"github.com/vnykmshr/vqueue/internal/metrics"
	"github.com/vnykmshr/vqueue/pkg/vqueue"
)

func newTailCommand(ctx *commandContext) *cobra.Command {
	var consumerFlag string
	var jsonOutput bool
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "tail <queue>",
		Short: "Follow a queue as a named consumer until interrupted",
		Long: `Print and commit records as they are pushed, waiting with backoff when
the queue is drained. Stops on SIGINT or SIGTERM.

When metrics.listen_addr (or --metrics-addr) is set, Prometheus metrics are
served at /metrics on that address while tailing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if consumerFlag == "" {
				return fmt.Errorf("--consumer is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if metricsAddr == "" {
				metricsAddr = cfg.Metrics.ListenAddr
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			collector := metrics.NewCollector(args[0])
			if metricsAddr != "" {
				shutdown, err := serveMetrics(metricsAddr, collector, ctx.loggerValue())
				if err != nil {
					return err
				}
				defer shutdown()
			}

			c, release, err := ctx.openConsumer(consumerFlag, args[0], vqueue.ModeDefault, collector)
			if err != nil {
				return err
			}
			defer release()

			err = c.Stream(runCtx, func(msg *vqueue.Message) error {
				return printRecord(cmd, msg, jsonOutput)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&consumerFlag, "consumer", "", "Consumer (cursor) name")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print records as JSON lines")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

// serveMetrics exposes collector on addr/metrics and returns a shutdown func.
func serveMetrics(addr string, collector *metrics.Collector, logger logging.Logger) (func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)
	reg.MustRegister(collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", logging.F("error", err))
		}
	}()
	logger.Info("serving metrics", logging.F("addr", ln.Addr().String()))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
