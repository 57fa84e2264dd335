// Package main provides the brainlink CLI entrypoint.
//
// Usage:
//
//	brainlink <command> [subcommand] [options]
//
// Exit codes:
//   - 0: done
//   - 1: usage or unexpected error
//   - 2: connection error (no port, port busy, no brain found)
//   - 3: link error (timeouts, retries exhausted)
//   - 4: malformed image
//   - 5: corrupt patch
//   - 6: protocol error (the brain rejected a command)
//   - 7: verification error
//   - 8: canceled
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/brainlink/cli/cmd"
	"github.com/pithecene-io/brainlink/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

var (
	osExit           = os.Exit
	stderr io.Writer = os.Stderr
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already exited for errors returned by actions.
		// This branch handles errors raised before an action ran.
		fmt.Fprintf(stderr, "Error: %v\n", err)
		osExit(cmd.ExitUsage)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "brainlink",
		Usage:                "Upload programs to a V5 brain over USB serial",
		Version:              fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		EnableBashCompletion: true,
		ExitErrHandler:       exitErrHandler,
		Commands: []*cli.Command{
			cmd.UploadCommand(),
			cmd.SlotsCommand(),
			cmd.RemoveCommand(),
			cmd.KVCommand(),
			cmd.TerminalCommand(),
			cmd.DevicesCommand(),
			cmd.HistoryCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitStatus returns the exit code for err and the message to print, if
// any. cli.Exit("", N) carries no message.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return cmd.ExitCode(err), "Error: " + err.Error()
}

// exitErrHandler prints the error and exits with its code.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(stderr, msg)
	}
	osExit(code)
}
