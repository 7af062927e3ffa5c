package registryapi

import "encoding/json"

// ModelRegistry is a registry instance known to the dashboard backend.
type ModelRegistry struct {
	Name          string `json:"name"`
	DisplayName   string `json:"displayName,omitempty"`
	Description   string `json:"description,omitempty"`
	ServerAddress string `json:"serverAddress,omitempty"`
	Ready         bool   `json:"ready"`
}

// RegisteredModel is a logical model in a registry.
type RegisteredModel struct {
	ID                       string         `json:"id"`
	Name                     string         `json:"name"`
	Description              string         `json:"description,omitempty"`
	Owner                    string         `json:"owner,omitempty"`
	State                    string         `json:"state,omitempty"`
	CustomProperties         map[string]any `json:"customProperties,omitempty"`
	CreateTimeSinceEpoch     string         `json:"createTimeSinceEpoch,omitempty"`
	LastUpdateTimeSinceEpoch string         `json:"lastUpdateTimeSinceEpoch,omitempty"`
}

// ModelVersion is one version of a RegisteredModel.
type ModelVersion struct {
	ID                       string         `json:"id"`
	Name                     string         `json:"name"`
	RegisteredModelID        string         `json:"registeredModelId"`
	Author                   string         `json:"author,omitempty"`
	State                    string         `json:"state,omitempty"`
	Description              string         `json:"description,omitempty"`
	CustomProperties         map[string]any `json:"customProperties,omitempty"`
	LastUpdateTimeSinceEpoch string         `json:"lastUpdateTimeSinceEpoch,omitempty"`
}

// CatalogSource is a model catalog source.
type CatalogSource struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// List is a page of T. With RawBody set, Items stays empty and Raw carries
// the undecoded response.
type List[T any] struct {
	Items         []T             `json:"items"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
	PageSize      int             `json:"pageSize"`
	Size          int             `json:"size"`
	Raw           json.RawMessage `json:"-"`
}

// ListParams selects a page of a collection. The zero value requests the
// server defaults.
type ListParams struct {
	PageSize      int
	OrderBy       string
	SortOrder     string
	Filter        string
	NextPageToken string
}

// RawBody returns the undecoded response when the list was fetched with RawBody set.
func (l List[T]) RawBody() json.RawMessage {
	return l.Raw
}
