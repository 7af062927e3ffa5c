// Package k8sapi reads and manages ModelRegistry custom resources through the
// Kubernetes dynamic client.
package k8sapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"git.home.luguber.info/inful/registrydash/internal/fetchstate"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/logfields"
)

// ModelRegistryGVR identifies the ModelRegistry custom resource.
var ModelRegistryGVR = schema.GroupVersionResource{
	Group:    "modelregistry.opendatahub.io",
	Version:  "v1alpha1",
	Resource: "modelregistries",
}

const modelRegistryKind = "ModelRegistry"

// ModelRegistry is the dashboard view of a ModelRegistry resource.
type ModelRegistry struct {
	Name       string            `json:"name"`
	Namespace  string            `json:"namespace"`
	UID        string            `json:"uid"`
	Created    time.Time         `json:"created"`
	Labels     map[string]string `json:"labels,omitempty"`
	Available  bool              `json:"available"`
	Conditions []Condition       `json:"conditions,omitempty"`
}

type Condition struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Connect builds a dynamic client from kubeconfig, or from the in-cluster
// service account when kubeconfig is empty.
func Connect(kubeconfig string) (dynamic.Interface, error) {
	var cfg *rest.Config
	var err error
	if kubeconfig == "" {
		cfg, err = rest.InClusterConfig()
	} else {
		cfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
			&clientcmd.ConfigOverrides{},
		).ClientConfig()
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to load kubernetes configuration").
			WithContext("kubeconfig", kubeconfig).
			Build()
	}
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to create kubernetes client").Build()
	}
	return dyn, nil
}

// Client is scoped to one namespace. A nil dynamic client or an empty
// namespace makes every call fail with a not-ready error.
type Client struct {
	dyn       dynamic.Interface
	namespace string
	log       *slog.Logger
}

// New returns a Client. It never fails so it can serve as a gate constructor.
func New(dyn dynamic.Interface, namespace string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{dyn: dyn, namespace: namespace, log: log}
}

func (c *Client) Namespace() string {
	return c.namespace
}

func (c *Client) resource() (dynamic.ResourceInterface, error) {
	if c.dyn == nil {
		return nil, errors.NotReady("kubernetes client")
	}
	if c.namespace == "" {
		return nil, errors.NotReady("namespace")
	}
	return c.dyn.Resource(ModelRegistryGVR).Namespace(c.namespace), nil
}

// List returns every ModelRegistry in the namespace.
func (c *Client) List(ctx context.Context, _ fetchstate.APIOptions) ([]ModelRegistry, error) {
	res, err := c.resource()
	if err != nil {
		return nil, err
	}
	list, err := res.List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify(err, "list")
	}
	out := make([]ModelRegistry, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, fromUnstructured(&list.Items[i]))
	}
	return out, nil
}

// Get returns the ModelRegistry called name.
func (c *Client) Get(ctx context.Context, name string, _ fetchstate.APIOptions) (ModelRegistry, error) {
	res, err := c.resource()
	if err != nil {
		return ModelRegistry{}, err
	}
	if name == "" {
		return ModelRegistry{}, errors.NotReady("registry name")
	}
	obj, err := res.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return ModelRegistry{}, classify(err, "get")
	}
	return fromUnstructured(obj), nil
}

// Create submits a ModelRegistry with spec. With opts.DryRun the API server
// validates without persisting.
func (c *Client) Create(ctx context.Context, name string, labels map[string]string, spec map[string]any, opts fetchstate.APIOptions) (ModelRegistry, error) {
	res, err := c.resource()
	if err != nil {
		return ModelRegistry{}, err
	}
	obj, err := newObject(name, c.namespace, labels, spec)
	if err != nil {
		return ModelRegistry{}, err
	}

	created, err := res.Create(ctx, obj, metav1.CreateOptions{DryRun: dryRun(opts)})
	if err != nil {
		return ModelRegistry{}, classify(err, "create")
	}
	c.log.Info("Model registry created", logfields.Namespace(c.namespace), slog.String("name", name), slog.Bool("dry_run", opts.DryRun))
	return fromUnstructured(created), nil
}

// Delete removes the ModelRegistry called name.
func (c *Client) Delete(ctx context.Context, name string, opts fetchstate.APIOptions) error {
	res, err := c.resource()
	if err != nil {
		return err
	}
	if err := res.Delete(ctx, name, metav1.DeleteOptions{DryRun: dryRun(opts)}); err != nil {
		return classify(err, "delete")
	}
	c.log.Info("Model registry deleted", logfields.Namespace(c.namespace), slog.String("name", name), slog.Bool("dry_run", opts.DryRun))
	return nil
}

// newObject builds the resource through its JSON form so spec values decoded
// from YAML or JSON end up with the types unstructured objects expect.
func newObject(name, namespace string, labels map[string]string, spec map[string]any) (*unstructured.Unstructured, error) {
	metadata := map[string]any{"name": name, "namespace": namespace}
	if len(labels) > 0 {
		metadata["labels"] = labels
	}
	obj := &unstructured.Unstructured{}
	raw, err := json.Marshal(map[string]any{
		"apiVersion": ModelRegistryGVR.GroupVersion().String(),
		"kind":       modelRegistryKind,
		"metadata":   metadata,
		"spec":       spec,
	})
	if err == nil {
		err = obj.UnmarshalJSON(raw)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "model registry spec is invalid").
			WithContext("name", name).
			Build()
	}
	return obj, nil
}

func dryRun(opts fetchstate.APIOptions) []string {
	if opts.DryRun {
		return []string{metav1.DryRunAll}
	}
	return nil
}

func classify(err error, verb string) error {
	var b *errors.ErrorBuilder
	switch {
	case kubeerr.IsUnauthorized(err), kubeerr.IsForbidden(err):
		b = errors.WrapError(err, errors.CategoryAuth, "not authorized to access model registries").
			WithRetry(errors.RetryUserAction)
	case kubeerr.IsNotFound(err):
		b = errors.WrapError(err, errors.CategoryNotFound, "model registry not found")
	case kubeerr.IsAlreadyExists(err):
		b = errors.WrapError(err, errors.CategoryAlreadyExists, "model registry already exists")
	case kubeerr.IsInvalid(err):
		b = errors.WrapError(err, errors.CategoryValidation, "model registry is invalid")
	default:
		b = errors.WrapError(err, errors.CategoryKubernetes, "kubernetes request failed").Retryable()
	}
	return b.WithContext("verb", verb).Build()
}

func fromUnstructured(obj *unstructured.Unstructured) ModelRegistry {
	mr := ModelRegistry{
		Name:      obj.GetName(),
		Namespace: obj.GetNamespace(),
		UID:       string(obj.GetUID()),
		Created:   obj.GetCreationTimestamp().Time,
		Labels:    obj.GetLabels(),
	}
	conditions, _, _ := unstructured.NestedSlice(obj.Object, "status", "conditions")
	for _, raw := range conditions {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		cond := Condition{
			Type:    stringField(m, "type"),
			Status:  stringField(m, "status"),
			Reason:  stringField(m, "reason"),
			Message: stringField(m, "message"),
		}
		if cond.Type == "Available" && cond.Status == string(metav1.ConditionTrue) {
			mr.Available = true
		}
		mr.Conditions = append(mr.Conditions, cond)
	}
	return mr
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
