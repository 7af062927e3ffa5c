package commands

import (
	"context"
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/registrydash/internal/dashboard"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/logfields"
)

// FetchCmd implements the 'fetch' command.
type FetchCmd struct {
	Resource string        `arg:"" help:"Resource name (see 'registrydash resources')"`
	Timeout  time.Duration `help:"Give up after this long" default:"30s"`
	DryRun   bool          `help:"Ask the backend to validate without persisting"`
	Raw      bool          `help:"Print REST responses undecoded"`
	Pretty   bool          `short:"p" help:"Indent the JSON output"`
}

func (f *FetchCmd) Run(g *Global, root *CLI) error {
	cfg, logger, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	cfg.Fetch.RefreshRate = 0
	cfg.Fetch.DryRun = cfg.Fetch.DryRun || f.DryRun
	cfg.Fetch.RawBody = cfg.Fetch.RawBody || f.Raw

	dash, err := dashboard.New(cfg, dashboard.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := dash.Close(); err != nil {
			logger.Warn("Failed to close dashboard", logfields.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), f.Timeout)
	defer cancel()
	v, err := dash.Fetch(ctx, f.Resource)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(output(g))
	if f.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to encode resource").Build()
	}

	switch {
	case v.Error != nil:
		return errors.FetchError(v.Error.Message).
			WithContext("resource", f.Resource).
			WithContext("category", v.Error.Category).
			Build()
	case !v.Loaded:
		return errors.NotReady("resource").WithContext("resource", f.Resource)
	}
	return nil
}
