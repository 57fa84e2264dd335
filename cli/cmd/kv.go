package cmd

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/brainlink/cli/render"
	"github.com/pithecene-io/brainlink/device"
)

// KVResponse is rendered by kv get and kv set.
type KVResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// KVCommand returns the kv command with get and set subcommands.
func KVCommand() *cli.Command {
	return &cli.Command{
		Name:  "kv",
		Usage: "Read or write on-device configuration values",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Read a value",
				ArgsUsage: "KEY",
				Flags:     DeviceOutputFlags(),
				Action:    kvGetAction,
			},
			{
				Name:      "set",
				Usage:     "Write a value",
				ArgsUsage: "KEY VALUE",
				Flags:     DeviceOutputFlags(),
				Action:    kvSetAction,
			},
		},
	}
}

func kvGetAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: brainlink kv get KEY", ExitUsage)
	}
	key := c.Args().First()
	return withClient(c, func(ctx context.Context, r *render.Renderer, client *device.Client) error {
		value, err := client.KVGet(ctx, key)
		if err != nil {
			return err
		}
		return r.Render(KVResponse{Key: key, Value: value})
	})
}

func kvSetAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: brainlink kv set KEY VALUE", ExitUsage)
	}
	key, value := c.Args().Get(0), c.Args().Get(1)
	return withClient(c, func(ctx context.Context, r *render.Renderer, client *device.Client) error {
		if err := client.KVSet(ctx, key, value); err != nil {
			return err
		}
		return r.Render(KVResponse{Key: key, Value: value})
	})
}

// withClient opens the brain, runs fn under a signal-aware context and maps
// its error to an exit code.
func withClient(c *cli.Context, fn func(context.Context, *render.Renderer, *device.Client) error) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsage)
	}
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	ctx, stop := signalContext(c.Context)
	defer stop()

	sess, _, err := e.open(c, nil)
	if err != nil {
		return exitError(err)
	}
	defer func() { _ = sess.Close() }()

	return exitError(fn(ctx, r, device.NewClient(sess)))
}
