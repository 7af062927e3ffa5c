package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/registrydash/internal/fetchstate"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/k8sapi"
)

// K8sCmd groups the ModelRegistry commands.
type K8sCmd struct {
	Get    K8sGetCmd    `cmd:"" help:"Show one ModelRegistry as JSON"`
	Create K8sCreateCmd `cmd:"" help:"Create a ModelRegistry"`
	Delete K8sDeleteCmd `cmd:"" help:"Delete a ModelRegistry"`
}

// k8sTarget selects the namespace and bounds the request.
type k8sTarget struct {
	Namespace string        `short:"n" help:"Namespace (overrides kubernetes.namespace)"`
	Timeout   time.Duration `help:"Give up after this long" default:"30s"`
}

type K8sGetCmd struct {
	Target k8sTarget `embed:""`
	Name   string    `arg:"" help:"ModelRegistry name"`
}

func (k *K8sGetCmd) Run(g *Global, root *CLI) error {
	s, err := k.Target.open(g, root)
	if err != nil {
		return err
	}
	defer s.cancel()

	mr, err := s.client.Get(s.ctx, k.Name, fetchstate.APIOptions{})
	if err != nil {
		return explainNotReady(err)
	}
	return printJSON(g, mr)
}

type K8sCreateCmd struct {
	Target   k8sTarget         `embed:""`
	Name     string            `arg:"" help:"ModelRegistry name"`
	SpecFile string            `name:"spec-file" help:"YAML file holding the resource spec" type:"existingfile"`
	Label    map[string]string `help:"Label to set (key=value), repeatable"`
	DryRun   bool              `help:"Validate on the API server without persisting"`
}

func (k *K8sCreateCmd) Run(g *Global, root *CLI) error {
	spec := map[string]any{}
	if k.SpecFile != "" {
		data, err := os.ReadFile(k.SpecFile)
		if err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "failed to read spec file").
				WithContext("path", k.SpecFile).
				Build()
		}
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return errors.WrapError(err, errors.CategoryValidation, "spec file is not valid YAML").
				WithContext("path", k.SpecFile).
				Build()
		}
	}

	s, err := k.Target.open(g, root)
	if err != nil {
		return err
	}
	defer s.cancel()

	mr, err := s.client.Create(s.ctx, k.Name, k.Label, spec, fetchstate.APIOptions{DryRun: k.DryRun || s.dryRun})
	if err != nil {
		return explainNotReady(err)
	}
	return printJSON(g, mr)
}

type K8sDeleteCmd struct {
	Target k8sTarget `embed:""`
	Name   string    `arg:"" help:"ModelRegistry name"`
	DryRun bool      `help:"Validate on the API server without deleting"`
}

func (k *K8sDeleteCmd) Run(g *Global, root *CLI) error {
	s, err := k.Target.open(g, root)
	if err != nil {
		return err
	}
	defer s.cancel()

	dryRun := k.DryRun || s.dryRun
	if err := s.client.Delete(s.ctx, k.Name, fetchstate.APIOptions{DryRun: dryRun}); err != nil {
		return explainNotReady(err)
	}
	suffix := ""
	if dryRun {
		suffix = " (dry run)"
	}
	_, err = fmt.Fprintf(output(g), "Deleted model registry %s/%s%s\n", s.client.Namespace(), k.Name, suffix)
	return err
}

type k8sSession struct {
	client *k8sapi.Client
	ctx    context.Context
	cancel context.CancelFunc
	dryRun bool // fetch.dry_run from the configuration
}

// open loads the configuration and connects to the cluster. The namespace
// falls back to kubernetes.namespace.
func (t k8sTarget) open(g *Global, root *CLI) (*k8sSession, error) {
	cfg, logger, err := loadConfig(g, root)
	if err != nil {
		return nil, err
	}
	namespace := t.Namespace
	if namespace == "" {
		namespace = cfg.Kubernetes.Namespace
	}

	dyn := g.Kube
	if dyn == nil {
		if dyn, err = k8sapi.Connect(cfg.Kubernetes.Kubeconfig); err != nil {
			return nil, err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.Timeout)
	return &k8sSession{
		client: k8sapi.New(dyn, namespace, logger),
		ctx:    ctx,
		cancel: cancel,
		dryRun: cfg.Fetch.DryRun,
	}, nil
}

// explainNotReady points at the setting a not-ready error is waiting for.
func explainNotReady(err error) error {
	if !errors.IsNotReady(err) {
		return err
	}
	return errors.WrapError(err, errors.CategoryNotReady, "set kubernetes.namespace or pass --namespace").Build()
}

func printJSON(g *Global, v any) error {
	enc := json.NewEncoder(output(g))
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to encode output").Build()
	}
	return nil
}
