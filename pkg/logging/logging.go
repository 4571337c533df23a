// Package logging builds the process-wide zap logger.
package logging

import (
	"go.uber.org/zap"
)

// New returns a logger configured for the given environment: human-readable
// console output for local development, JSON at Info level otherwise.
func New(env string) (*zap.Logger, error) {
	if env == "local" || env == "test" {
		cfg := zap.NewDevelopmentConfig()
		return cfg.Build()
	}
	return zap.NewProduction()
}
