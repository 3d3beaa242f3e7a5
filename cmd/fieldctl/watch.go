package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/effectus/fieldmap/mapping"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultPollInterval = time.Minute

func newWatchCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a mapping loaded and reload it when it changes",
		Long: `Load the mapping and keep it current until interrupted.

File mappings are reloaded when the file changes. Other sources are polled.
A reload that fails keeps the previous mapping. Metrics are served on
--metrics-addr when set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			debounce, _ := cmd.Flags().GetDuration("debounce")
			interval, _ := cmd.Flags().GetDuration("interval")

			if cfg := opts.config; cfg != nil {
				if !cmd.Flags().Changed("metrics-addr") {
					metricsAddr = cfg.Metrics.Addr
				}
				if !cmd.Flags().Changed("debounce") {
					d, err := cfg.Watch.DebounceDuration()
					if err != nil {
						return err
					}
					debounce = d
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			svc, ms, err := opts.load(ctx, reg)
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				srv := newMetricsServer(metricsAddr, reg)
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						opts.logger.WithError(err).Error("metrics server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				opts.logger.WithField("addr", metricsAddr).Info("serving metrics")
			}

			if ms.path != "" {
				return mapping.NewWatcher(svc, ms.path, debounce).Run(ctx)
			}
			return poll(ctx, svc, ms, interval, opts.logger)
		},
	}
	cmd.Flags().String("metrics-addr", "", "Address to serve /metrics on")
	cmd.Flags().Duration("debounce", mapping.DefaultDebounce, "Wait for file writes to settle")
	cmd.Flags().Duration("interval", defaultPollInterval, "Poll interval for non-file sources")
	return cmd
}

func newMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// poll reloads a remote source every interval until ctx is done.
func poll(ctx context.Context, svc *mapping.Service, ms mappingSource, interval time.Duration, logger logrus.FieldLogger) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	logger = logger.WithField("source", ms.source.Label())
	logger.WithField("interval", interval.String()).Info("polling mapping source")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// Failures are logged by the service.
			_ = loadInto(ctx, svc, ms)
		}
	}
}
