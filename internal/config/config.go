// Package config loads the registrydash YAML configuration.
package config

import "time"

// Config is the root of registrydash.yaml.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Notify     NotifyConfig     `yaml:"notify"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// APIConfig describes the model registry REST backend.
type APIConfig struct {
	// HostPath is the backend base URL. Empty leaves every REST resource not ready.
	HostPath string `yaml:"host_path"`
	// CatalogHostPath defaults to HostPath.
	CatalogHostPath string        `yaml:"catalog_host_path,omitempty"`
	Token           string        `yaml:"token,omitempty"`
	Timeout         time.Duration `yaml:"timeout"`
	ModelID         string        `yaml:"model_id,omitempty"` // model whose versions are tracked
	List            ListConfig    `yaml:"list"`
	Retry           RetryConfig   `yaml:"retry"`
}

// ListConfig holds the list query used for collection resources.
type ListConfig struct {
	PageSize  int       `yaml:"page_size"`
	OrderBy   string    `yaml:"order_by"`
	SortOrder SortOrder `yaml:"sort_order"`
	Filter    string    `yaml:"filter,omitempty"`
}

type RetryConfig struct {
	Backoff    RetryBackoffMode `yaml:"backoff"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries int              `yaml:"max_retries"`
}

// KubernetesConfig enables the ModelRegistry custom resource view.
type KubernetesConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Kubeconfig string `yaml:"kubeconfig,omitempty"` // empty means in-cluster
	Namespace  string `yaml:"namespace"`
}

// FetchConfig is applied to every fetch-state container.
type FetchConfig struct {
	RefreshRate          time.Duration `yaml:"refresh_rate"`
	StopOnError          bool          `yaml:"stop_on_error"`
	InitialPromisePurity bool          `yaml:"initial_promise_purity"`
	LoadOnFirstNotReady  bool          `yaml:"load_on_first_not_ready"`
	DryRun               bool          `yaml:"dry_run"`
	// RawBody serves REST resources undecoded.
	RawBody bool `yaml:"raw_body"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig controls the fetch event history.
type StorageConfig struct {
	Path          string        `yaml:"path"`
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// NotifyConfig enables NATS publishing when NATSURL is set.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject"`
}

type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}
