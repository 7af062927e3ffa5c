package config

import (
	"net/url"

	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
)

// Validate checks a defaulted configuration.
func (c *Config) Validate() error {
	for field, raw := range map[string]string{
		"api.host_path":         c.API.HostPath,
		"api.catalog_host_path": c.API.CatalogHostPath,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.ValidationError("host path must be an absolute URL").
				WithContext("field", field).
				WithContext("value", raw).
				Build()
		}
	}
	if c.API.Timeout < 0 {
		return invalid("api.timeout", "must not be negative")
	}
	if c.API.List.PageSize < 0 {
		return invalid("api.list.page_size", "must not be negative")
	}
	if c.API.Retry.MaxRetries < 0 {
		return invalid("api.retry.max_retries", "must not be negative")
	}
	if c.Fetch.RefreshRate < 0 {
		return invalid("fetch.refresh_rate", "must not be negative")
	}
	if c.Storage.Retention < 0 {
		return invalid("storage.retention", "must not be negative")
	}
	if c.Storage.PruneInterval < 0 {
		return invalid("storage.prune_interval", "must not be negative")
	}
	return nil
}

func invalid(field, reason string) error {
	return errors.ValidationError(field + " " + reason).
		WithContext("field", field).
		Build()
}
