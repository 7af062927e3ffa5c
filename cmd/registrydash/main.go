package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/registrydash/cmd/registrydash/commands"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("registrydash"),
		kong.Description("Serve and inspect model registry resources."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Get().String()},
	)

	global := &commands.Global{Out: os.Stdout}
	err := parser.Run(global, cli)
	if err == nil {
		return
	}

	adapter := errors.NewCLIErrorAdapter(cli.Verbose, slog.Default())
	adapter.Log(context.Background(), err)
	fmt.Fprintln(os.Stderr, adapter.FormatError(err))
	os.Exit(adapter.ExitCodeFor(err))
}
