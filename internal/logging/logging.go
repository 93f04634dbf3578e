// Package logging constructs the zap.Logger used across the node.
package logging

import "go.uber.org/zap"

// New builds the production logger used by cmd/cyclonode, or a development
// logger with human-readable encoding when verbose is requested.
func New(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
