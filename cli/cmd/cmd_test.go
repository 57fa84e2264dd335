package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/brainlink/device"
	"github.com/pithecene-io/brainlink/types"
)

// newTestApp creates a cli.App with the given commands and ExitErrHandler
// suppressed so errors are returned instead of calling os.Exit.
func newTestApp(cmds ...*cli.Command) *cli.App {
	app := cli.NewApp()
	app.Commands = cmds
	app.ExitErrHandler = func(*cli.Context, error) {} // suppress os.Exit
	return app
}

// exitCodeOf returns the exit code carried by err, or -1 if it has none.
func exitCodeOf(err error) int {
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}

func hasFlag(flags []cli.Flag, name string) bool {
	for _, f := range flags {
		if f.Names()[0] == name {
			return true
		}
	}
	return false
}

func TestDeviceOutputFlags(t *testing.T) {
	flags := DeviceOutputFlags()
	for _, name := range []string{"port", "config", "verbose", "format", "no-color"} {
		if !hasFlag(flags, name) {
			t.Errorf("DeviceOutputFlags missing --%s", name)
		}
	}
}

func TestCommandsHaveNoDuplicateFlags(t *testing.T) {
	cmds := []*cli.Command{
		UploadCommand(), SlotsCommand(), RemoveCommand(), TerminalCommand(),
		DevicesCommand(), HistoryCommand(), VersionCommand("test"),
	}
	cmds = append(cmds, KVCommand().Subcommands...)
	for _, cmd := range cmds {
		seen := make(map[string]bool)
		for _, f := range cmd.Flags {
			for _, name := range f.Names() {
				if seen[name] {
					t.Errorf("%s: flag name %q defined twice", cmd.Name, name)
				}
				seen[name] = true
			}
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitDone},
		{"connection", fmt.Errorf("%w: open /dev/ttyACM0", types.ErrConnection), ExitConnection},
		{"radio stuck", device.ErrRadioStuck, ExitConnection},
		{"radio reconnect", device.ErrRadioReconnectTimeout, ExitConnection},
		{"link", fmt.Errorf("%w: timeout", types.ErrLink), ExitLink},
		{"malformed", fmt.Errorf("%w: not an ELF", types.ErrMalformedImage), ExitMalformed},
		{"corrupt patch", fmt.Errorf("%w: bad trailer", types.ErrCorruptPatch), ExitCorruptPatch},
		{"protocol", fmt.Errorf("%w: nack", types.ErrProtocol), ExitProtocol},
		{"verification", fmt.Errorf("%w: mismatch", types.ErrVerification), ExitVerification},
		{"canceled", fmt.Errorf("upload: %w", context.Canceled), ExitCanceled},
		{"deadline", context.DeadlineExceeded, ExitCanceled},
		{"unexpected", errors.New("boom"), ExitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitCode_CancelWinsOverKind(t *testing.T) {
	err := fmt.Errorf("%w: %w", types.ErrLink, context.Canceled)
	if got := ExitCode(err); got != ExitCanceled {
		t.Errorf("ExitCode = %d, want %d", got, ExitCanceled)
	}
}

func TestExitError(t *testing.T) {
	if exitError(nil) != nil {
		t.Error("exitError(nil) should be nil")
	}

	err := exitError(fmt.Errorf("%w: no V5 device found", types.ErrConnection))
	if code := exitCodeOf(err); code != ExitConnection {
		t.Errorf("exit code = %d, want %d", code, ExitConnection)
	}
	if !strings.Contains(err.Error(), "no V5 device found") {
		t.Errorf("message lost: %v", err)
	}

	// An existing ExitCoder keeps its code.
	orig := cli.Exit("bad flag", ExitUsage)
	if got := exitError(orig); got != orig {
		t.Errorf("exitError rewrapped an ExitCoder: %v", got)
	}
}

func TestVersionCommand(t *testing.T) {
	app := newTestApp(VersionCommand("abc123"))
	if err := app.Run([]string{"brainlink", "version", "--format", "json"}); err != nil {
		t.Fatalf("version failed: %v", err)
	}
}

func TestVersionCommand_InvalidFormat(t *testing.T) {
	app := newTestApp(VersionCommand("abc123"))
	err := app.Run([]string{"brainlink", "version", "--format", "xml"})
	if code := exitCodeOf(err); code != ExitUsage {
		t.Fatalf("exit code = %d, want %d (err %v)", code, ExitUsage, err)
	}
}
