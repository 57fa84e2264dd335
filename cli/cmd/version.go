package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/brainlink/cli/render"
	"github.com/pithecene-io/brainlink/patch"
	"github.com/pithecene-io/brainlink/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version  string `json:"version"`
	Commit   string `json:"commit"`
	Protocol string `json:"protocol"`
	Patch    int    `json:"patch_format"`
}

// VersionCommand returns the version command.
// It must not contact the brain.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  OutputFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return cli.Exit(err.Error(), ExitUsage)
		}
		return r.Render(VersionResponse{
			Version:  types.Version,
			Commit:   commit,
			Protocol: types.ProtocolRevision,
			Patch:    patch.Version,
		})
	}
}
