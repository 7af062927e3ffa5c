package commands

import (
	"encoding/json"
	"fmt"

	"git.home.luguber.info/inful/registrydash/internal/version"
)

// VersionCmd implements the 'version' command.
type VersionCmd struct {
	JSON bool `help:"Print as JSON"`
}

func (v *VersionCmd) Run(g *Global) error {
	info := version.Get()
	if v.JSON {
		return json.NewEncoder(output(g)).Encode(info)
	}
	_, err := fmt.Fprintln(output(g), info.String())
	return err
}
