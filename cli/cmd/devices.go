package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/brainlink/cli/render"
	"github.com/pithecene-io/brainlink/transport"
)

// DevicesCommand returns the devices command.
// It lists serial ports without opening any of them.
func DevicesCommand() *cli.Command {
	return &cli.Command{
		Name:   "devices",
		Usage:  "List attached brains and controllers",
		Flags:  OutputFlags(),
		Action: devicesAction,
	}
}

func devicesAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsage)
	}
	devices, err := transport.FindDevices()
	if err != nil {
		return exitError(err)
	}
	if devices == nil {
		devices = []transport.Device{}
	}
	return r.Render(devices)
}
