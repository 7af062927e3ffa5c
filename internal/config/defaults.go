package config

import "time"

const (
	DefaultTimeout       = 30 * time.Second
	DefaultPageSize      = 100
	DefaultOrderBy       = "ID"
	DefaultRefreshRate   = 30 * time.Second
	DefaultAddress       = ":8080"
	DefaultStoragePath   = "registrydash.db"
	DefaultRetention     = 7 * 24 * time.Hour
	DefaultPruneInterval = time.Hour
	DefaultSubject       = "registrydash.events"
)

// Default returns a configuration with every default applied and no backend
// configured.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.API.CatalogHostPath == "" {
		c.API.CatalogHostPath = c.API.HostPath
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultTimeout
	}
	if c.API.List.PageSize == 0 {
		c.API.List.PageSize = DefaultPageSize
	}
	if c.API.List.OrderBy == "" {
		c.API.List.OrderBy = DefaultOrderBy
	}
	c.API.List.SortOrder = NormalizeSortOrder(string(c.API.List.SortOrder))

	// retry fields are left for retry.NewPolicy, which owns their defaults
	if c.API.Retry.Backoff != "" {
		c.API.Retry.Backoff = NormalizeRetryBackoff(string(c.API.Retry.Backoff))
	}

	if c.Kubernetes.Namespace == "" && c.Kubernetes.Enabled {
		c.Kubernetes.Namespace = "default"
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Storage.Retention == 0 {
		c.Storage.Retention = DefaultRetention
	}
	if c.Storage.PruneInterval == 0 {
		c.Storage.PruneInterval = DefaultPruneInterval
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = DefaultSubject
	}
	c.Logging.Level = NormalizeLogLevel(string(c.Logging.Level))
	c.Logging.Format = NormalizeLogFormat(string(c.Logging.Format))
}
