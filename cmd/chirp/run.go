package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/4thel00z/chirp/internal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const personaDebounce = 500 * time.Millisecond

func NewRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent until interrupted",
		Long: `Run the agent in randomized activation windows. Each window runs pipeline
cycles at random intervals; a failing cycle is logged and the loop goes on.`,
		Args: cobra.NoArgs,
		RunE: makeRunRunner(a),
	}

	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")
	cmd.Flags().Bool("watch-persona", true, "Reload persona.yaml when it changes")
	cmd.Flags().Bool("no-initial", false, "Wait for the first activation window instead of running at once")
	return cmd
}

func makeRunRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		ag, release, err := a.agent(cmd, internal.AgentOptions{Registerer: reg})
		if err != nil {
			return err
		}
		defer release()
		logger := ag.Logger

		addr, _ := cmd.Flags().GetString("metrics-addr")
		if addr == "" {
			addr = ag.Config.Metrics.Addr
		}
		if addr != "" {
			go serveMetrics(ctx, addr, reg, logger)
		}

		if watch, _ := cmd.Flags().GetBool("watch-persona"); watch {
			go func() {
				if err := internal.WatchPersona(ctx, ag.Persona, personaDebounce, logger); err != nil {
					logger.Warn("persona watcher stopped", zap.Error(err))
				}
			}()
		}

		schedule := ag.Config.Schedule
		if noInitial, _ := cmd.Flags().GetBool("no-initial"); noInitial {
			schedule.InitialRun = false
		}

		logger.Info("agent started",
			zap.String("username", ag.Config.Account.Username),
			zap.String("data_dir", ag.Scope.DataPath),
			zap.String("store", ag.Config.Store.Driver))

		loop := internal.NewRunLoop(ag.Pipeline, schedule, ag.Clock, nil, logger)
		err = loop.Run(ctx)
		logger.Info("agent stopped")
		return err
	}
}

// serveMetrics exposes reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server", zap.Error(err))
	}
}
