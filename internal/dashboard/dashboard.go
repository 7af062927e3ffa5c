// Package dashboard wires the fetch-state containers of the model registry
// dashboard to their API gates, the event history and the notifiers.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"k8s.io/client-go/dynamic"

	"git.home.luguber.info/inful/registrydash/internal/apigate"
	"git.home.luguber.info/inful/registrydash/internal/config"
	"git.home.luguber.info/inful/registrydash/internal/eventstore"
	"git.home.luguber.info/inful/registrydash/internal/fetchstate"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/k8sapi"
	"git.home.luguber.info/inful/registrydash/internal/logfields"
	"git.home.luguber.info/inful/registrydash/internal/memo"
	"git.home.luguber.info/inful/registrydash/internal/metrics"
	"git.home.luguber.info/inful/registrydash/internal/notify"
	"git.home.luguber.info/inful/registrydash/internal/registryapi"
	"git.home.luguber.info/inful/registrydash/internal/retry"
)

// Resource names.
const (
	ResourceRegistries     = "registries"
	ResourceModels         = "models"
	ResourceModel          = "model"
	ResourceModelVersions  = "model_versions"
	ResourceCatalogSources = "catalog_sources"
	ResourceK8sRegistries  = "k8s_registries"
	ResourceEvents         = "events"
)

// eventsLimit bounds the events resource.
const eventsLimit = 50

// Options supplies collaborators. Nil fields are built from the config.
type Options struct {
	Store      eventstore.Store
	Kube       dynamic.Interface
	Notifier   notify.Notifier
	Recorder   metrics.FetchRecorder
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Dashboard owns every resource container for one configuration.
type Dashboard struct {
	log *slog.Logger
	rec metrics.FetchRecorder

	store      eventstore.Store
	ownsStore  bool
	projection *eventstore.SummaryProjection
	notifier   notify.Notifier
	nats       *notify.NATSNotifier
	httpClient *http.Client
	pruner     *pruner

	api    *apigate.Gate[*registryapi.Client]
	kube   *apigate.Gate[*k8sapi.Client]
	params *memo.Memo[registryapi.ListParams]

	models   *fetchstate.Container[registryapi.List[registryapi.RegisteredModel]]
	model    *fetchstate.Container[registryapi.RegisteredModel]
	versions *fetchstate.Container[registryapi.List[registryapi.ModelVersion]]
	events   *fetchstate.Container[[]eventstore.Event]

	resources map[string]resource
	order     []string
	unsub     []func()

	mu        sync.Mutex
	cfg       *config.Config
	dyn       dynamic.Interface
	ownsKube  bool
	runCtx    context.Context
	started   bool
	lastClass map[string]errors.Class
	lastState map[string]string

	closeOnce sync.Once
}

// New builds the dashboard for cfg. Nothing is fetched until Start.
func New(cfg *config.Config, opts Options) (*Dashboard, error) {
	if cfg == nil {
		return nil, errors.ValidationError("config is required").Build()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Dashboard{
		log:        opts.Logger,
		rec:        opts.Recorder,
		store:      opts.Store,
		notifier:   opts.Notifier,
		httpClient: opts.HTTPClient,
		params:     memo.New[registryapi.ListParams](),
		resources:  make(map[string]resource),
		cfg:        cfg,
		dyn:        opts.Kube,
		ownsKube:   opts.Kube == nil,
		runCtx:     context.Background(),
		lastClass:  make(map[string]errors.Class),
		lastState:  make(map[string]string),
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.rec == nil {
		d.rec = metrics.NoopRecorder{}
	}
	if err := d.openCollaborators(cfg); err != nil {
		_ = d.closeCollaborators()
		return nil, err
	}
	if err := d.build(cfg); err != nil {
		_ = d.closeCollaborators()
		return nil, err
	}
	return d, nil
}

func (d *Dashboard) openCollaborators(cfg *config.Config) error {
	if d.store == nil {
		store, err := eventstore.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return err
		}
		d.store = store
		d.ownsStore = true
	}
	d.projection = eventstore.NewSummaryProjection(d.store, errors.ClassNone.String(), errors.ClassUnknown.String())

	if d.notifier == nil {
		notifiers := notify.Multi{notify.LogNotifier{Logger: d.log}}
		if cfg.Notify.NATSURL != "" {
			n, err := notify.ConnectNATS(cfg.Notify.NATSURL, cfg.Notify.Subject)
			if err != nil {
				return err
			}
			d.nats = n
			notifiers = append(notifiers, n)
		}
		d.notifier = notifiers
	}

	if d.ownsKube && cfg.Kubernetes.Enabled {
		d.connectKube(cfg.Kubernetes.Kubeconfig)
	}

	if cfg.Storage.Retention > 0 && cfg.Storage.PruneInterval > 0 {
		p, err := newPruner(d.store, cfg.Storage.Retention, cfg.Storage.PruneInterval, d.log, d.afterPrune)
		if err != nil {
			return err
		}
		d.pruner = p
	}
	return nil
}

// connectKube leaves the client nil on failure, which keeps the Kubernetes
// resource not ready.
func (d *Dashboard) connectKube(kubeconfig string) {
	dyn, err := k8sapi.Connect(kubeconfig)
	if err != nil {
		d.log.Warn("Kubernetes client unavailable", logfields.Path(kubeconfig), logfields.Error(err))
		dyn = nil
	}
	d.mu.Lock()
	d.dyn = dyn
	d.mu.Unlock()
}

func (d *Dashboard) build(cfg *config.Config) error {
	d.api = apigate.New(cfg.API.HostPath, d.newRegistryClient,
		apigate.WithName("model_registry"),
		apigate.WithLogger(d.log),
		apigate.WithRecorder(d.rec))
	d.kube = apigate.New(kubeKey(cfg), d.newKubeClient,
		apigate.WithName("kubernetes"),
		apigate.WithLogger(d.log),
		apigate.WithRecorder(d.rec))

	params := d.params.Stabilize(listParams(cfg.API.List))

	var err error
	if _, err = addResource(d, ResourceRegistries, apigate.Bind(d.api, listRegistries), registryapi.List[registryapi.ModelRegistry]{}); err != nil {
		return err
	}
	if d.models, err = addResource(d, ResourceModels, d.modelsProducer(params), registryapi.List[registryapi.RegisteredModel]{}); err != nil {
		return err
	}
	if d.model, err = addResource(d, ResourceModel, d.modelProducer(cfg.API.ModelID), registryapi.RegisteredModel{}); err != nil {
		return err
	}
	if d.versions, err = addResource(d, ResourceModelVersions, d.versionsProducer(cfg.API.ModelID, params), registryapi.List[registryapi.ModelVersion]{}); err != nil {
		return err
	}
	if _, err = addResource(d, ResourceCatalogSources, apigate.Bind(d.api, listCatalogSources), registryapi.List[registryapi.CatalogSource]{}); err != nil {
		return err
	}
	if _, err = addResource(d, ResourceK8sRegistries, apigate.Bind(d.kube, listKubeRegistries), []k8sapi.ModelRegistry(nil)); err != nil {
		return err
	}
	if d.events, err = addResource(d, ResourceEvents, d.eventsProducer, []eventstore.Event(nil)); err != nil {
		return err
	}

	restful := []resource{d.resources[ResourceRegistries], d.resources[ResourceModels], d.resources[ResourceModel], d.resources[ResourceModelVersions], d.resources[ResourceCatalogSources]}
	d.unsub = append(d.unsub,
		d.api.Subscribe(func(apigate.State[*registryapi.Client]) { d.refreshIfStarted(restful...) }),
		d.kube.Subscribe(func(apigate.State[*k8sapi.Client]) { d.refreshIfStarted(d.resources[ResourceK8sRegistries]) }),
	)
	return nil
}

// addResource creates and registers a container named name.
func addResource[T any](d *Dashboard, name string, producer fetchstate.Producer[T], def T) (*fetchstate.Container[T], error) {
	c, err := fetchstate.New(producer, def, d.fetchConfig(name))
	if err != nil {
		return nil, err
	}
	d.resources[name] = &tracked[T]{name: name, c: c}
	d.order = append(d.order, name)
	return c, nil
}

func (d *Dashboard) fetchConfig(name string) fetchstate.Config {
	f := d.config().Fetch
	cfg := fetchstate.Config{
		Name:                 name,
		RefreshRate:          f.RefreshRate,
		InitialPromisePurity: f.InitialPromisePurity,
		StopPollingOnError:   f.StopOnError,
		LoadOnFirstNotReady:  f.LoadOnFirstNotReady,
		APIOptions:           fetchstate.APIOptions{DryRun: f.DryRun, RawBody: f.RawBody},
		Logger:               d.log,
		Recorder:             d.rec,
		OnCommonStateError:   func(err error) { d.onCommonState(name, err) },
	}
	// the history resource does not record its own runs
	if name != ResourceEvents {
		cfg.OnSettle = func(s fetchstate.Settlement) { d.onSettle(name, s) }
	}
	return cfg
}

func (d *Dashboard) newRegistryClient(hostPath string) *registryapi.Client {
	api := d.config().API
	opts := []registryapi.Option{
		registryapi.WithToken(api.Token),
		registryapi.WithCatalogHost(api.CatalogHostPath),
		registryapi.WithRetryPolicy(retry.FromConfig(api.Retry)),
		registryapi.WithLogger(d.log),
		registryapi.WithRecorder(d.rec),
	}
	if d.httpClient != nil {
		opts = append(opts, registryapi.WithHTTPClient(d.httpClient))
	}
	opts = append(opts, registryapi.WithTimeout(api.Timeout))
	return registryapi.New(hostPath, opts...)
}

func (d *Dashboard) newKubeClient(namespace string) *k8sapi.Client {
	d.mu.Lock()
	dyn := d.dyn
	d.mu.Unlock()
	return k8sapi.New(dyn, namespace, d.log)
}

func (d *Dashboard) modelsProducer(params registryapi.ListParams) fetchstate.Producer[registryapi.List[registryapi.RegisteredModel]] {
	return apigate.Bind(d.api, func(ctx context.Context, c *registryapi.Client, opts fetchstate.APIOptions) (registryapi.List[registryapi.RegisteredModel], error) {
		return c.ListRegisteredModels(ctx, params, opts)
	})
}

func (d *Dashboard) modelProducer(id string) fetchstate.Producer[registryapi.RegisteredModel] {
	return apigate.Bind(d.api, func(ctx context.Context, c *registryapi.Client, opts fetchstate.APIOptions) (registryapi.RegisteredModel, error) {
		return c.GetRegisteredModel(ctx, id, opts)
	})
}

func (d *Dashboard) versionsProducer(id string, params registryapi.ListParams) fetchstate.Producer[registryapi.List[registryapi.ModelVersion]] {
	return apigate.Bind(d.api, func(ctx context.Context, c *registryapi.Client, opts fetchstate.APIOptions) (registryapi.List[registryapi.ModelVersion], error) {
		return c.ListModelVersions(ctx, id, params, opts)
	})
}

func (d *Dashboard) eventsProducer(ctx context.Context, _ fetchstate.APIOptions) ([]eventstore.Event, error) {
	return d.store.Recent(ctx, "", eventsLimit)
}

func listRegistries(ctx context.Context, c *registryapi.Client, opts fetchstate.APIOptions) (registryapi.List[registryapi.ModelRegistry], error) {
	return c.ListRegistries(ctx, opts)
}

func listCatalogSources(ctx context.Context, c *registryapi.Client, opts fetchstate.APIOptions) (registryapi.List[registryapi.CatalogSource], error) {
	return c.ListCatalogSources(ctx, opts)
}

func listKubeRegistries(ctx context.Context, c *k8sapi.Client, opts fetchstate.APIOptions) ([]k8sapi.ModelRegistry, error) {
	return c.List(ctx, opts)
}

func listParams(c config.ListConfig) registryapi.ListParams {
	return registryapi.ListParams{
		PageSize:  c.PageSize,
		OrderBy:   c.OrderBy,
		SortOrder: string(c.SortOrder),
		Filter:    c.Filter,
	}
}

// kubeKey is the Kubernetes gate's host path: the namespace, or empty while
// the integration is disabled.
func kubeKey(cfg *config.Config) string {
	if !cfg.Kubernetes.Enabled {
		return ""
	}
	return cfg.Kubernetes.Namespace
}

// Start rebuilds the history summaries, starts retention pruning and issues
// the first run of every resource. Cancelling ctx tears every container down.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	d.runCtx = ctx
	d.mu.Unlock()

	if err := d.projection.Rebuild(ctx); err != nil {
		d.log.Warn("Failed to rebuild fetch history summaries", logfields.Error(err))
	}
	if d.pruner != nil {
		d.pruner.start()
	}
	for _, name := range d.order {
		d.resources[name].start(ctx)
	}
	d.log.Info("Dashboard started", slog.Int("resources", len(d.order)))
	return nil
}

// Close stops every container and releases owned collaborators.
func (d *Dashboard) Close() error {
	var err error
	d.closeOnce.Do(func() {
		for _, fn := range d.unsub {
			fn()
		}
		for _, name := range d.order {
			d.resources[name].close()
		}
		err = d.closeCollaborators()
	})
	return err
}

func (d *Dashboard) closeCollaborators() error {
	if d.pruner != nil {
		if err := d.pruner.stop(); err != nil {
			d.log.Warn("Failed to stop pruning scheduler", logfields.Error(err))
		}
	}
	if d.nats != nil {
		d.nats.Close()
	}
	if d.ownsStore && d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Names returns the resource names in registration order.
func (d *Dashboard) Names() []string {
	return append([]string(nil), d.order...)
}

// Resource returns the current view of name.
func (d *Dashboard) Resource(name string) (View, error) {
	r, err := d.lookup(name)
	if err != nil {
		return View{}, err
	}
	v := r.view()
	if s, ok := d.projection.Summary(name); ok {
		v.History = &s
	}
	return v, nil
}

// Resources returns the view of every resource.
func (d *Dashboard) Resources() []View {
	views := make([]View, 0, len(d.order))
	for _, name := range d.order {
		v, _ := d.Resource(name)
		views = append(views, v)
	}
	return views
}

// Refresh starts a new run of name. The ticket's Done closes when the run
// settles or is superseded.
func (d *Dashboard) Refresh(name string) (fetchstate.Ticket, error) {
	r, err := d.lookup(name)
	if err != nil {
		return fetchstate.Ticket{}, err
	}
	return r.refresh(), nil
}

// Fetch starts name if needed and returns its view once no run is in flight.
func (d *Dashboard) Fetch(ctx context.Context, name string) (View, error) {
	r, err := d.lookup(name)
	if err != nil {
		return View{}, err
	}
	r.start(ctx)
	if err := r.wait(ctx); err != nil {
		return View{}, errors.WrapError(err, errors.CategoryRuntime, "interrupted while waiting for resource").
			WithContext("resource", name).
			Build()
	}
	return d.Resource(name)
}

// Events queries the history directly, bypassing the events resource.
func (d *Dashboard) Events(ctx context.Context, resource string, limit int) ([]eventstore.Event, error) {
	return d.store.Recent(ctx, resource, limit)
}

// Summaries returns the history summary of every resource that has settled.
func (d *Dashboard) Summaries() []eventstore.ResourceSummary {
	return d.projection.Summaries()
}

// Config returns the configuration currently applied.
func (d *Dashboard) Config() *config.Config {
	return d.config()
}

func (d *Dashboard) lookup(name string) (resource, error) {
	r, ok := d.resources[name]
	if !ok {
		return nil, errors.NotFoundError("unknown resource").WithContext("resource", name).Build()
	}
	return r, nil
}

func (d *Dashboard) config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *Dashboard) runContext() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runCtx
}

func (d *Dashboard) refreshIfStarted(rs ...resource) {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		return
	}
	for _, r := range rs {
		r.refresh()
	}
}
