package cmd

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/brainlink/types"
)

// Exit codes. Each failure kind has its own code so scripts can tell a
// missing device from a bad image without parsing stderr.
const (
	ExitDone         = 0
	ExitUsage        = 1
	ExitConnection   = 2
	ExitLink         = 3
	ExitMalformed    = 4
	ExitCorruptPatch = 5
	ExitProtocol     = 6
	ExitVerification = 7
	ExitCanceled     = 8
)

// ExitCode maps an error to its process exit code. Unclassified errors
// exit with ExitUsage.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitDone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ExitCanceled
	case errors.Is(err, types.ErrConnection):
		return ExitConnection
	case errors.Is(err, types.ErrLink):
		return ExitLink
	case errors.Is(err, types.ErrMalformedImage):
		return ExitMalformed
	case errors.Is(err, types.ErrCorruptPatch):
		return ExitCorruptPatch
	case errors.Is(err, types.ErrProtocol):
		return ExitProtocol
	case errors.Is(err, types.ErrVerification):
		return ExitVerification
	default:
		return ExitUsage
	}
}

// exitError converts err into a cli.ExitCoder carrying its exit code.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return err
	}
	return cli.Exit(err.Error(), ExitCode(err))
}
