// Package commands implements the registrydash subcommands.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"k8s.io/client-go/dynamic"

	"git.home.luguber.info/inful/registrydash/internal/config"
)

// Global is shared with every subcommand.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
	// Kube replaces the client built from kubernetes.kubeconfig.
	Kube dynamic.Interface
}

// CLI is the root command with its global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"registrydash.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable debug logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve      ServeCmd     `cmd:"" help:"Serve the dashboard API and keep resources fresh"`
	Fetch      FetchCmd     `cmd:"" help:"Fetch one resource once and print it as JSON"`
	Resources  ResourcesCmd `cmd:"" help:"List resource names"`
	K8s        K8sCmd       `cmd:"" name:"k8s" help:"Inspect and manage ModelRegistry resources"`
	Init       InitCmd      `cmd:"" help:"Write an example configuration file"`
	VersionCmd VersionCmd   `cmd:"" name:"version" help:"Print version information"`
}

// AfterApply installs a default logger until a command loads its configuration.
func (c *CLI) AfterApply() error {
	slog.SetDefault(newLogger(os.Stderr, config.LogLevelInfo, config.LogFormatText, c.Verbose))
	return nil
}

// newLogger builds the process logger. verbose forces debug level.
func newLogger(w io.Writer, level config.LogLevel, format config.LogFormat, verbose bool) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadConfig loads the configuration and switches to the logger it asks for,
// unless g already carries one.
func loadConfig(g *Global, root *CLI) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, nil, err
	}
	logger := g.Logger
	if logger == nil {
		logger = newLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format, root.Verbose)
		slog.SetDefault(logger)
	}
	return cfg, logger, nil
}

func output(g *Global) io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}
