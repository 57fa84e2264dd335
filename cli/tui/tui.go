package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/upload"
)

// UploadFunc runs an upload, reporting progress through report.
type UploadFunc func(ctx context.Context, report func(upload.Progress)) (*upload.Result, error)

// RunUpload shows the progress view while run executes. Quitting the view
// cancels run's context; the view stays up until run returns.
func RunUpload(ctx context.Context, slot types.SlotDescriptor, out io.Writer, run UploadFunc) (*upload.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(NewUploadModel(slot, cancel), tea.WithOutput(out), tea.WithoutSignalHandler())

	type outcome struct {
		res *upload.Result
		err error
	}
	finished := make(chan outcome, 1)
	go func() {
		res, err := run(ctx, func(p upload.Progress) { prog.Send(ProgressMsg(p)) })
		finished <- outcome{res, err}
		prog.Send(DoneMsg{Result: res, Err: err})
	}()

	if _, err := prog.Run(); err != nil {
		cancel()
		o := <-finished
		if o.err != nil {
			return o.res, o.err
		}
		return o.res, err
	}
	o := <-finished
	return o.res, o.err
}
