package config

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
)

// Load reads path, expands ${VAR} references, applies defaults and validates.
// Variables from .env files next to the working directory are loaded first
// without overriding the process environment.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", path).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read configuration").
			WithContext("path", path).
			Build()
	}
	return Parse(data)
}

// Parse decodes YAML content. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse configuration").Build()
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init writes an example configuration to path.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	}

	example := Default()
	example.API.HostPath = "https://model-registry.example.com"
	example.API.CatalogHostPath = ""
	example.API.Token = "${REGISTRY_TOKEN}"
	example.API.ModelID = "1"
	example.API.Retry = RetryConfig{Backoff: RetryBackoffExponential, MaxRetries: 2}
	example.Kubernetes = KubernetesConfig{Enabled: true, Namespace: "odh-model-registries"}
	example.Fetch.RefreshRate = DefaultRefreshRate

	data, err := yaml.Marshal(example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal configuration").Build()
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "failed to write configuration").
			WithContext("path", path).
			Build()
	}
	return nil
}
