package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/brainlink/iox"
	"github.com/pithecene-io/brainlink/ipc"
	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/wire"
)

// TerminalCommand returns the terminal command.
// It streams the running program's output until interrupted or the
// brain disconnects.
func TerminalCommand() *cli.Command {
	return &cli.Command{
		Name:  "terminal",
		Usage: "Print output from the running program",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:  "ipc",
				Usage: "Write output as length-prefixed msgpack frames for an external viewer",
			},
		}, DeviceFlags()...),
		Action: terminalAction,
	}
}

func terminalAction(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	ctx, stop := signalContext(c.Context)
	defer stop()

	sess, port, err := e.open(c, nil)
	if err != nil {
		return exitError(err)
	}
	defer func() { _ = sess.Close() }()
	// Closing the session closes its stream, which ends the copy loop.
	iox.CloseOnDone(ctx, sess)

	sink := rawSink(os.Stdout)
	if c.Bool("ipc") {
		sink = ipc.NewEmitter(os.Stdout, port).Output
	}
	if err := copyStream(sess.Stream(), sink); err != nil {
		return exitError(err)
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := sess.Err(); err != nil {
		return exitError(fmt.Errorf("%w: brain disconnected: %w", types.ErrLink, err))
	}
	return nil
}

func rawSink(w io.Writer) func([]byte) error {
	return func(data []byte) error {
		_, err := w.Write(data)
		return err
	}
}

// copyStream forwards user output frames to sink until the stream closes.
func copyStream(stream <-chan wire.Frame, sink func([]byte) error) error {
	for f := range stream {
		if f.Opcode != wire.OpUserOutput || len(f.Payload) == 0 {
			continue
		}
		if err := sink(f.Payload); err != nil {
			return err
		}
	}
	return nil
}
