package commands

import (
	"fmt"

	"git.home.luguber.info/inful/registrydash/internal/dashboard"
)

// ResourcesCmd implements the 'resources' command.
type ResourcesCmd struct{}

func (ResourcesCmd) Run(g *Global) error {
	for _, name := range []string{
		dashboard.ResourceRegistries,
		dashboard.ResourceModels,
		dashboard.ResourceModel,
		dashboard.ResourceModelVersions,
		dashboard.ResourceCatalogSources,
		dashboard.ResourceK8sRegistries,
		dashboard.ResourceEvents,
	} {
		if _, err := fmt.Fprintln(output(g), name); err != nil {
			return err
		}
	}
	return nil
}
