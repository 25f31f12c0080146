package v1

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	scope      string
	getenv     func(string) string
	logger     *zap.Logger
	registerer prometheus.Registerer
	readOnly   bool
}

// WithScope forces a specific scope: "global", "project" or a data directory
// path.
func WithScope(scope string) Option {
	return func(c *clientConfig) {
		c.scope = scope
	}
}

// WithEnv replaces os.Getenv as the source of secret overrides.
func WithEnv(getenv func(string) string) Option {
	return func(c *clientConfig) {
		c.getenv = getenv
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithRegisterer registers the agent's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *clientConfig) {
		c.registerer = reg
	}
}

// WithReadOnly skips configuration validation. The client can then inspect
// memories and posts without credentials, but cycles will fail.
func WithReadOnly() Option {
	return func(c *clientConfig) {
		c.readOnly = true
	}
}
