// Package upload drives a program image onto a brain slot.
//
// The Orchestrator runs one upload as a state machine:
//
//	idle → querying → planning → transferring → verifying → finalizing → done
//
// with failed reachable from every non-terminal state. Device state is
// queried fresh at the start of every upload and never cached.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/pithecene-io/brainlink/device"
	"github.com/pithecene-io/brainlink/log"
	"github.com/pithecene-io/brainlink/metrics"
	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/wire"
)

// DefaultChunkSize is used when the configured chunk size is zero.
const DefaultChunkSize = 4096

// maxChunkData is the most data a WriteChunk frame can carry.
const maxChunkData = wire.MaxLength - 4

// Link is the transport an upload runs over.
// *transport.Session satisfies it.
type Link interface {
	device.Requester
	Reserve() (release func(), err error)
}

// Request describes one upload.
type Request struct {
	Image  *types.ProgramImage
	Slot   types.SlotDescriptor
	After  types.AfterAction
	Policy Policy
}

// Result summarises a completed upload.
type Result struct {
	UploadID     string             `json:"upload_id"`
	Slot         int                `json:"slot"`
	Mode         types.TransferMode `json:"mode"`
	Replanned    bool               `json:"replanned"`
	Compressed   bool               `json:"compressed"`
	ImageBytes   int                `json:"image_bytes"`
	PayloadBytes int                `json:"payload_bytes"`
	Chunks       int                `json:"chunks"`
	Retries      int                `json:"retries"`
	Fingerprint  types.Fingerprint  `json:"fingerprint"`
	Reference    types.Fingerprint  `json:"reference,omitzero"`
	Duration     time.Duration      `json:"duration"`
}

// Progress is reported on every state change and acknowledged chunk.
type Progress struct {
	UploadID   string
	State      State
	Mode       types.TransferMode
	BytesSent  int
	TotalBytes int
}

// Orchestrator runs uploads over a Link.
type Orchestrator struct {
	link      Link
	client    *device.Client
	refs      References
	logger    *log.Logger
	metrics   *metrics.Collector
	progress  func(Progress)
	chunkSize int
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReferences sets the reference image store.
func WithReferences(r References) Option {
	return func(o *Orchestrator) { o.refs = r }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithProgress sets the progress callback. It is called synchronously from
// the uploading goroutine.
func WithProgress(fn func(Progress)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithChunkSize caps the chunk size below the device-advertised maximum.
func WithChunkSize(n int) Option {
	return func(o *Orchestrator) { o.chunkSize = n }
}

// New creates an Orchestrator.
func New(link Link, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		link:      link,
		client:    device.NewClient(link),
		refs:      noReferences{},
		logger:    log.Nop(),
		progress:  func(Progress) {},
		chunkSize: DefaultChunkSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.chunkSize <= 0 {
		o.chunkSize = DefaultChunkSize
	}
	return o
}

// run is the state of one Upload call.
type run struct {
	*Orchestrator
	parent  context.Context
	req     Request
	sess    *TransferSession
	logger  *log.Logger
	plan    types.PatchPlan
	replan  bool
	payload []byte
	chunk   int
}

// Upload transfers req.Image to req.Slot. It holds the link exclusively
// for the duration of the call.
//
// Cancellation is observed between steps and between chunks; a request
// already on the wire always completes first. All failures are *Error.
func (o *Orchestrator) Upload(ctx context.Context, req Request) (*Result, error) {
	r := &run{
		Orchestrator: o,
		parent:       ctx,
		req:          req,
		sess:         newTransferSession(req.Slot.Index, o.now),
	}
	r.logger = o.logger.WithUpload(r.sess.ID, req.Slot.Index)
	o.metrics.IncUploadStarted()

	if err := req.Slot.Validate(); err != nil {
		return nil, r.fail(types.ErrProtocol, err)
	}
	if req.Image == nil || req.Image.Size() == 0 {
		return nil, r.fail(types.ErrMalformedImage, errors.New("empty program image"))
	}

	release, err := o.link.Reserve()
	if err != nil {
		return nil, r.fail(types.ErrConnection, err)
	}
	defer release()

	r.logger.Info("upload started", map[string]any{
		"image_bytes": req.Image.Size(),
		"fingerprint": req.Image.Fingerprint().String(),
		"kind":        string(req.Image.Kind()),
		"strategy":    string(req.Policy.Strategy),
	})

	steps := []func(context.Context) error{
		r.query,
		r.transfer,
		r.verify,
		r.finalize,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, r.fail(err, err)
		}
		if err := step(context.WithoutCancel(ctx)); err != nil {
			return nil, r.failWith(err)
		}
	}

	r.enter(StateDone)
	o.metrics.IncUploadCompleted()
	if err := o.refs.Record(ctx, req.Slot.Index, req.Image); err != nil {
		r.logger.Warn("failed to record reference image", map[string]any{"error": err.Error()})
	}

	res := &Result{
		UploadID:     r.sess.ID,
		Slot:         req.Slot.Index,
		Mode:         r.plan.Mode,
		Replanned:    r.replan,
		Compressed:   req.Slot.Compress,
		ImageBytes:   req.Image.Size(),
		PayloadBytes: len(r.payload),
		Chunks:       r.sess.Chunks,
		Retries:      r.sess.Retries,
		Fingerprint:  req.Image.Fingerprint(),
		Reference:    r.plan.Reference,
		Duration:     o.now().Sub(r.sess.StartedAt),
	}
	r.logger.Info("upload complete", map[string]any{
		"mode":          string(res.Mode),
		"payload_bytes": res.PayloadBytes,
		"chunks":        res.Chunks,
		"retries":       res.Retries,
		"duration_ms":   res.Duration.Milliseconds(),
	})
	return res, nil
}

func (r *run) enter(state State) {
	r.sess.enter(state)
	r.report()
}

func (r *run) report() {
	r.progress(Progress{
		UploadID:   r.sess.ID,
		State:      r.sess.State,
		Mode:       r.plan.Mode,
		BytesSent:  r.sess.BytesSent,
		TotalBytes: r.sess.TotalBytes,
	})
}

// query fetches the resident image and chooses the plan. A differential
// plan is confirmed by a second query immediately before it is committed.
func (r *run) query(ctx context.Context) error {
	r.enter(StateQuerying)
	info, err := r.client.QuerySlot(ctx, r.req.Slot.Index)
	if err != nil {
		return err
	}
	resident := residentOf(info)

	r.enter(StatePlanning)
	reference := r.lookup(ctx, resident)
	r.plan, err = r.req.Policy.Plan(r.req.Image, resident, reference)
	if err != nil {
		return err
	}

	if r.plan.IsDifferential() {
		again, err := r.client.QuerySlot(ctx, r.req.Slot.Index)
		if err != nil {
			return err
		}
		info = again
		if now := residentOf(again); now != r.plan.Reference {
			r.logger.Warn("resident image changed during planning, sending full image", map[string]any{
				"planned_reference": r.plan.Reference.Short(),
				"resident":          now.String(),
			})
			r.metrics.IncReplan()
			r.plan = types.FullTransfer(r.req.Image)
			r.replan = true
		}
	}

	r.payload = r.plan.Payload()
	if r.req.Slot.Compress {
		if r.payload, err = compress(r.payload); err != nil {
			return err
		}
	}
	r.metrics.RecordPlan(string(r.plan.Mode), r.req.Image.Size(), len(r.payload))
	r.logger.Info("transfer planned", map[string]any{
		"mode":          string(r.plan.Mode),
		"payload_bytes": len(r.payload),
		"compressed":    r.req.Slot.Compress,
		"replanned":     r.replan,
	})

	r.chunk = chunkSizeFor(r.chunkSize, info.MaxChunk)
	return nil
}

// lookup resolves the resident fingerprint to reference bytes. Store
// failures degrade to "no reference".
func (r *run) lookup(ctx context.Context, resident types.Fingerprint) []byte {
	if resident.IsZero() || r.req.Policy.Strategy == types.StrategyMonolith {
		return nil
	}
	ref, err := r.refs.Lookup(ctx, resident)
	if err != nil {
		r.logger.Warn("reference lookup failed", map[string]any{
			"fingerprint": resident.Short(),
			"error":       err.Error(),
		})
		return nil
	}
	return ref
}

func residentOf(info wire.SlotInfo) types.Fingerprint {
	if !info.Occupied {
		return types.Fingerprint{}
	}
	return info.Fingerprint
}

func chunkSizeFor(configured int, advertised uint16) int {
	n := configured
	if advertised > 0 {
		n = min(n, int(advertised))
	}
	return min(n, maxChunkData)
}

// transfer opens the write and streams the payload in strictly sequential
// chunks. ctx never cancels; the caller's context is checked between chunks
// so an in-flight chunk always completes.
func (r *run) transfer(ctx context.Context) error {
	r.sess.begin(len(r.payload))
	r.enter(StateTransferring)

	begin := wire.BeginTransfer{
		Slot:        uint8(r.req.Slot.Index),
		Mode:        r.plan.Mode,
		Kind:        r.req.Image.Kind(),
		Compressed:  r.req.Slot.Compress,
		PayloadSize: uint32(len(r.payload)),
		ImageSize:   uint32(r.req.Image.Size()),
		LoadAddress: r.req.Image.LoadAddress(),
		Reference:   r.plan.Reference,
		Target:      r.req.Image.Fingerprint(),
	}
	if _, err := r.link.Request(ctx, wire.OpBeginTransfer, begin.Encode()); err != nil {
		return err
	}

	for off := 0; off < len(r.payload); off += r.chunk {
		if err := r.parent.Err(); err != nil {
			return err
		}
		end := min(off+r.chunk, len(r.payload))
		reply, err := r.link.Request(ctx, wire.OpWriteChunk, wire.Chunk(uint32(off), r.payload[off:end]))
		if err != nil {
			return fmt.Errorf("chunk at offset %d: %w", off, err)
		}
		echoed, err := wire.DecodeChunkAck(reply.Frame.Payload)
		if err != nil {
			return err
		}
		if int(echoed) != off {
			return fmt.Errorf("%w: chunk at offset %d acknowledged as %d", types.ErrLink, off, echoed)
		}
		r.sess.advance(end-off, reply.Attempts)
		r.metrics.AddChunk(end - off)
		r.report()
	}

	_, err := r.link.Request(ctx, wire.OpEndTransfer, wire.SlotCommand(uint8(r.req.Slot.Index)))
	return err
}

// verify compares what the device holds with the image. A mismatch erases
// the slot so the bad image can never be run.
func (r *run) verify(ctx context.Context) error {
	r.enter(StateVerifying)
	got, err := r.client.Verify(ctx, r.req.Slot.Index)
	if err != nil {
		return err
	}
	want := r.req.Image.Fingerprint()
	if got.Fingerprint == want {
		return nil
	}

	if eraseErr := r.client.Erase(ctx, r.req.Slot.Index); eraseErr != nil {
		r.logger.Error("failed to erase slot after verification failure", map[string]any{"error": eraseErr.Error()})
	}
	return fmt.Errorf("%w: device holds %s, expected %s", types.ErrVerification, got.Fingerprint.Short(), want.Short())
}

func (r *run) finalize(ctx context.Context) error {
	r.enter(StateFinalizing)
	meta := wire.Metadata{
		Slot:        uint8(r.req.Slot.Index),
		Icon:        r.req.Slot.Icon.Code(),
		Name:        r.req.Slot.Name,
		Description: r.req.Slot.Description,
	}
	if _, err := r.link.Request(ctx, wire.OpSetMetadata, meta.Encode()); err != nil {
		return err
	}
	if r.req.After == types.AfterRun || r.req.After == types.AfterScreen {
		return r.client.Run(ctx, r.req.Slot.Index, r.req.After)
	}
	return nil
}

// failWith classifies err and fails the run.
func (r *run) failWith(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return r.fail(context.Canceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return r.fail(context.DeadlineExceeded, err)
	}
	return r.fail(classify(err), err)
}

func (r *run) fail(kind, err error) error {
	stage := r.sess.State
	e := &Error{
		Kind:  kind,
		Stage: stage,
		Slot:  r.req.Slot.Index,
		Err:   err,
	}
	canceled := kind == context.Canceled || kind == context.DeadlineExceeded
	if !canceled && (r.plan.IsDifferential() || errors.Is(err, types.ErrCorruptPatch)) {
		e.RetryFull = true
	}

	r.sess.enter(StateFailed)
	r.report()
	r.metrics.IncUploadFailed(types.KindName(e))
	r.logger.Error("upload failed", map[string]any{
		"stage":      string(stage),
		"kind":       types.KindName(e),
		"retry_full": e.RetryFull,
		"error":      err.Error(),
	})
	return e
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
