// Package registryapi is the REST client for the model registry and model
// catalog backends. Every call fails with a not-ready error while the client
// has no host path.
package registryapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/registrydash/internal/fetchstate"
	"git.home.luguber.info/inful/registrydash/internal/logfields"
	"git.home.luguber.info/inful/registrydash/internal/metrics"
	"git.home.luguber.info/inful/registrydash/internal/retry"
)

const (
	registriesPath = "/api/v1/model-registry"
	modelsPath     = "/api/model_registry/v1alpha3/registered_models"
	sourcesPath    = "/api/model_catalog/v1alpha1/sources"
)

// Client talks to one model registry host and, optionally, a separate
// catalog host.
type Client struct {
	host        string
	catalogHost string
	token       string
	http        *http.Client
	policy      retry.Policy
	log         *slog.Logger
	rec         metrics.FetchRecorder
}

// Option configures a Client.
type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithCatalogHost points catalog calls at a different host. Defaults to the
// registry host.
func WithCatalogHost(host string) Option {
	return func(c *Client) { c.catalogHost = host }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout bounds every HTTP request including retries' individual attempts.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d, Transport: c.http.Transport}
		}
	}
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithRecorder(r metrics.FetchRecorder) Option {
	return func(c *Client) { c.rec = r }
}

// New returns a client for hostPath. An empty hostPath yields a valid client
// whose calls fail with ErrNoHostPath.
func New(hostPath string, opts ...Option) *Client {
	c := &Client{
		host:   strings.TrimSpace(hostPath),
		http:   &http.Client{Timeout: 30 * time.Second},
		policy: retry.DefaultPolicy(),
		log:    slog.Default(),
		rec:    metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.catalogHost == "" {
		c.catalogHost = c.host
	}
	return c
}

// HostPath returns the registry host this client was built for.
func (c *Client) HostPath() string {
	return c.host
}

// ListRegistries lists the registries the dashboard backend knows about.
func (c *Client) ListRegistries(ctx context.Context, opts fetchstate.APIOptions) (List[ModelRegistry], error) {
	var out List[ModelRegistry]
	err := c.get(ctx, "list_registries", c.host, registriesPath, nil, opts, &out)
	return out, err
}

// ListRegisteredModels lists registered models.
func (c *Client) ListRegisteredModels(ctx context.Context, params ListParams, opts fetchstate.APIOptions) (List[RegisteredModel], error) {
	var out List[RegisteredModel]
	err := c.get(ctx, "list_registered_models", c.host, modelsPath, params.query(), opts, &out)
	return out, err
}

// GetRegisteredModel fetches one registered model.
func (c *Client) GetRegisteredModel(ctx context.Context, id string, opts fetchstate.APIOptions) (RegisteredModel, error) {
	var out RegisteredModel
	if strings.TrimSpace(id) == "" {
		return out, ErrNoModelID
	}
	err := c.get(ctx, "get_registered_model", c.host, modelsPath+"/"+url.PathEscape(id), nil, opts, &out)
	return out, err
}

// ListModelVersions lists the versions of the model with modelID.
func (c *Client) ListModelVersions(ctx context.Context, modelID string, params ListParams, opts fetchstate.APIOptions) (List[ModelVersion], error) {
	var out List[ModelVersion]
	if strings.TrimSpace(modelID) == "" {
		return out, ErrNoModelID
	}
	err := c.get(ctx, "list_model_versions", c.host, modelsPath+"/"+url.PathEscape(modelID)+"/versions", params.query(), opts, &out)
	return out, err
}

// ListCatalogSources lists model catalog sources from the catalog host.
func (c *Client) ListCatalogSources(ctx context.Context, opts fetchstate.APIOptions) (List[CatalogSource], error) {
	var out List[CatalogSource]
	err := c.get(ctx, "list_catalog_sources", c.catalogHost, sourcesPath, nil, opts, &out)
	return out, err
}

// rawSetter lets get store the undecoded body on List values.
type rawSetter interface {
	setRaw([]byte)
}

func (l *List[T]) setRaw(b []byte) {
	l.Raw = b
}

func (c *Client) get(ctx context.Context, operation, base, endpoint string, query url.Values, opts fetchstate.APIOptions, result any) error {
	req, err := c.newRequest(ctx, base, endpoint, query, opts)
	if err != nil {
		return err
	}

	return c.policy.Do(ctx, func(ctx context.Context) error {
		raw, err := c.do(req.Clone(ctx), opts, result)
		if err != nil {
			return err
		}
		if opts.RawBody {
			if rs, ok := result.(rawSetter); ok {
				rs.setRaw(raw)
			}
		}
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		c.rec.IncRetry(operation)
		c.log.Debug("Retrying model registry request",
			slog.String("operation", operation),
			logfields.Attempt(attempt),
			slog.Duration("delay", delay),
			logfields.Error(err))
	})
}

func (p ListParams) query() url.Values {
	q := url.Values{}
	if p.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(p.PageSize))
	}
	if p.OrderBy != "" {
		q.Set("orderBy", p.OrderBy)
	}
	if p.SortOrder != "" {
		q.Set("sortOrder", p.SortOrder)
	}
	if p.Filter != "" {
		q.Set("filterQuery", p.Filter)
	}
	if p.NextPageToken != "" {
		q.Set("nextPageToken", p.NextPageToken)
	}
	return q
}
