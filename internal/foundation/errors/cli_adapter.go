package errors

import (
	"context"
	"fmt"
	"log/slog"
)

// CLIErrorAdapter handles error presentation and exit code determination for the CLI.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger}
}

// ExitCodeFor determines the process exit code for err.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	c, ok := AsClassified(err)
	if !ok {
		return 1
	}
	switch c.Category() {
	case CategoryValidation:
		return 2
	case CategoryNotReady:
		return 3
	case CategoryAuth, CategoryCommonState:
		return 5
	case CategoryConfig:
		return 7
	case CategoryNetwork, CategoryFetch, CategoryKubernetes, CategoryNotFound:
		return 8
	case CategoryInternal:
		return 10
	case CategoryEventStore, CategoryNotify, CategoryRuntime:
		return 12
	default:
		return 1
	}
}

// FormatError formats err for display. Non-verbose output only carries the user message.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	if a.verbose {
		return fmt.Sprintf("Error: %v", err)
	}
	return "Error: " + Normalize(err).UserMessage()
}

// Log records err at a level derived from its severity.
func (a *CLIErrorAdapter) Log(ctx context.Context, err error) {
	if err == nil {
		return
	}
	c, ok := AsClassified(err)
	if !ok {
		a.logger.ErrorContext(ctx, "Unclassified error", slog.String("error", err.Error()))
		return
	}
	attrs := []slog.Attr{slog.String("category", string(c.Category()))}
	if c.Cause() != nil {
		attrs = append(attrs, slog.String("cause", c.Cause().Error()))
	}
	if c.CanRetry() {
		attrs = append(attrs, slog.Bool("retryable", true))
	}
	a.logger.LogAttrs(ctx, SlogLevel(c.Severity()), c.Message(), attrs...)
}
