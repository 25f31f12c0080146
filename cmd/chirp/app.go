package main

import (
	"fmt"
	"os"

	"github.com/4thel00z/chirp/internal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app resolves scope, configuration and the wired agent for each command.
type app struct {
	resolver *internal.ScopeResolver
	getenv   func(string) string
}

func newApp() *app {
	return &app{
		resolver: internal.NewScopeResolver(),
		getenv:   os.Getenv,
	}
}

func (a *app) scope(cmd *cobra.Command) internal.Scope {
	hint, _ := cmd.Flags().GetString("scope")
	return a.resolver.Resolve(hint)
}

// config loads config.yaml of the resolved scope and applies environment
// overrides on top.
func (a *app) config(cmd *cobra.Command) (*internal.Config, internal.Scope, error) {
	scope := a.scope(cmd)
	cfg, err := internal.LoadConfig(scope)
	if err != nil {
		return nil, scope, err
	}
	cfg.ApplyEnv(a.getenv)
	return cfg, scope, nil
}

func (a *app) logger(cmd *cobra.Command, cfg *internal.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	return internal.NewLogger(level, cfg.Log.JSON)
}

// store opens the scope's store without wiring any network collaborator.
func (a *app) store(cmd *cobra.Command) (*internal.SQLStore, *internal.Config, error) {
	cfg, scope, err := a.config(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := internal.OpenAgentStore(cmd.Context(), cfg, scope)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return store, cfg, nil
}

// agent builds the full agent. The returned release func closes the store and
// flushes the logger.
func (a *app) agent(cmd *cobra.Command, opts internal.AgentOptions) (*internal.Agent, func(), error) {
	cfg, scope, err := a.config(cmd)
	if err != nil {
		return nil, nil, err
	}

	if opts.Logger == nil {
		logger, err := a.logger(cmd, cfg)
		if err != nil {
			return nil, nil, err
		}
		opts.Logger = logger
	}

	ag, err := internal.BuildAgent(cmd.Context(), cfg, scope, opts)
	if err != nil {
		_ = opts.Logger.Sync()
		return nil, nil, err
	}

	release := func() {
		if err := ag.Close(); err != nil {
			opts.Logger.Warn("close agent", zap.Error(err))
		}
		_ = opts.Logger.Sync()
	}
	return ag, release, nil
}
