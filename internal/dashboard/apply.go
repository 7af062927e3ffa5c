package dashboard

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/registrydash/internal/config"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/logfields"
)

// ApplyConfig brings the running dashboard in line with cfg. Host path and
// namespace changes go through the gates, which refresh their resources.
// Credential changes force a gate recomputation without a path change. New
// list parameters or a new model id replace the affected producers. Fetch,
// storage and notification settings need a restart.
func (d *Dashboard) ApplyConfig(_ context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errors.ValidationError("config is required").Build()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	old := d.cfg
	d.cfg = cfg
	d.mu.Unlock()

	if !d.api.SetHostPath(cfg.API.HostPath) && clientSettings(old.API) != clientSettings(cfg.API) {
		d.log.Info("Model registry credentials changed", logfields.HostPath(cfg.API.HostPath))
		d.api.Toggle()
	}

	reconnect := d.ownsKube && cfg.Kubernetes.Enabled &&
		(old.Kubernetes.Kubeconfig != cfg.Kubernetes.Kubeconfig || !old.Kubernetes.Enabled)
	if reconnect {
		d.connectKube(cfg.Kubernetes.Kubeconfig)
	}
	if !d.kube.SetHostPath(kubeKey(cfg)) && reconnect {
		d.kube.Toggle()
	}

	params, paramsChanged := d.params.Update(listParams(cfg.API.List))
	modelChanged := old.API.ModelID != cfg.API.ModelID
	if paramsChanged {
		d.models.SetProducer(d.modelsProducer(params))
	}
	if modelChanged {
		d.model.SetProducer(d.modelProducer(cfg.API.ModelID))
	}
	if paramsChanged || modelChanged {
		d.versions.SetProducer(d.versionsProducer(cfg.API.ModelID, params))
	}

	if old.Fetch != cfg.Fetch || old.Storage != cfg.Storage || old.Notify != cfg.Notify || old.Server != cfg.Server {
		d.log.Warn("Some configuration changes take effect after a restart",
			slog.Bool("fetch", old.Fetch != cfg.Fetch),
			slog.Bool("storage", old.Storage != cfg.Storage),
			slog.Bool("notify", old.Notify != cfg.Notify),
			slog.Bool("server", old.Server != cfg.Server))
	}
	return nil
}

// clientSettings strips the fields that do not affect how the REST client is
// built.
func clientSettings(api config.APIConfig) config.APIConfig {
	api.HostPath = ""
	api.ModelID = ""
	api.List = config.ListConfig{}
	return api
}
