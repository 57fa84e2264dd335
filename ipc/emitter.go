package ipc

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/upload"
)

// Emitter turns brainlink events into frames on one stream.
type Emitter struct {
	enc  *FrameEncoder
	port string
	seq  atomic.Int64
	now  func() time.Time
}

// NewEmitter creates an emitter writing frames to w.
func NewEmitter(w io.Writer, port string) *Emitter {
	return &Emitter{enc: NewFrameEncoder(w), port: port, now: time.Now}
}

// Output writes one output frame. Sequence numbers start at 1.
func (e *Emitter) Output(data []byte) error {
	return e.enc.WriteFrame(&OutputFrame{
		Type: OutputType,
		Seq:  e.seq.Add(1),
		Ts:   e.now().UTC().Format(time.RFC3339Nano),
		Port: e.port,
		Data: data,
	})
}

// Progress writes one progress frame for an upload to slot.
func (e *Emitter) Progress(slot int, p upload.Progress) error {
	return e.enc.WriteFrame(&ProgressFrame{
		Type:       ProgressType,
		UploadID:   p.UploadID,
		Slot:       slot,
		State:      string(p.State),
		Mode:       string(p.Mode),
		BytesSent:  int64(p.BytesSent),
		TotalBytes: int64(p.TotalBytes),
	})
}

// Result writes the final frame of an upload stream.
func (e *Emitter) Result(slot int, res *upload.Result, err error, exitCode int) error {
	frame := &ResultFrame{
		Type:     ResultType,
		Slot:     slot,
		Outcome:  "done",
		ExitCode: exitCode,
	}
	if res != nil {
		frame.UploadID = res.UploadID
		frame.Fingerprint = res.Fingerprint.String()
	}
	if err != nil {
		frame.Outcome = types.KindName(err)
		frame.Message = err.Error()
	}
	return e.enc.WriteFrame(frame)
}
