// Package transporttest provides a simulated brain for tests.
//
// A Brain speaks the device side of the wire protocol over an in-memory
// pipe: it stores slot images, applies differential patches, echoes chunk
// offsets and computes verify fingerprints. It can also pose as a wireless
// controller whose radio drops off the link while it changes channel.
// Tests inject faults through Intercept and observe traffic through
// Requests.
package transporttest

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/pithecene-io/brainlink/patch"
	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/wire"
)

// DefaultMaxChunk is the chunk size the simulated brain advertises.
const DefaultMaxChunk = 4096

// Action tells the brain how to treat one request.
type Action struct {
	// Drop suppresses the reply entirely.
	Drop bool
	// Corrupt sends the reply with a broken CRC.
	Corrupt bool
	// Ack overrides the reply status when non-zero.
	Ack wire.Ack
	// Delay holds the reply back. The brain reads nothing meanwhile, like a
	// device busy writing flash.
	Delay time.Duration
	// Noise sends a user output frame with a broken CRC ahead of the reply.
	Noise bool
}

// Slot is the stored state of one program slot.
type Slot struct {
	Image       []byte
	Kind        types.ImageKind
	Name        string
	Description string
	Icon        uint16
	Ran         types.AfterAction
}

type transfer struct {
	begin wire.BeginTransfer
	buf   []byte
}

// Brain is a simulated device.
type Brain struct {
	// MaxChunk is advertised in slot info replies.
	MaxChunk uint16

	// Intercept, when set, is consulted for every request before it is
	// handled. n counts requests with the same opcode, starting at 1.
	Intercept func(req wire.Frame, n int) Action

	// AfterQuery, when set, runs after every QuerySlot reply is written.
	AfterQuery func(slot uint8, n int)

	// CorruptFlash flips a byte of every image stored by EndTransfer.
	CorruptFlash bool

	// RadioOutage is how many requests go unanswered after a radio channel
	// switch, while the controller reconnects.
	RadioOutage int

	// IgnoreRadioSwitch acknowledges channel switches without changing
	// channel.
	IgnoreRadioSwitch bool

	mu       sync.Mutex
	product  wire.Product
	flags    uint32
	channel  wire.RadioChannel
	outage   int
	slots    map[uint8]*Slot
	kv       map[string]string
	active   *transfer
	requests []wire.Frame
	counts   map[wire.Opcode]int

	wmu  sync.Mutex
	conn io.ReadWriter
}

// NewBrain creates an empty brain.
func NewBrain() *Brain {
	return &Brain{
		MaxChunk: DefaultMaxChunk,
		product:  wire.ProductBrain,
		channel:  wire.ChannelDownload,
		slots:    make(map[uint8]*Slot),
		kv:       make(map[string]string),
		counts:   make(map[wire.Opcode]int),
	}
}

// Connect starts serving on one end of an in-memory pipe and returns the
// host end. Closing the host end stops the brain.
func (b *Brain) Connect() io.ReadWriteCloser {
	host, device := net.Pipe()
	go func() {
		_ = b.Serve(device)
		_ = device.Close()
	}()
	return host
}

// Serve handles requests from conn until it fails.
func (b *Brain) Serve(conn io.ReadWriter) error {
	b.wmu.Lock()
	b.conn = conn
	b.wmu.Unlock()

	dec := wire.NewDecoder(conn)
	for {
		req, err := dec.ReadRequest()
		if err != nil {
			if wire.IsChecksumError(err) {
				// The opcode is unknown; stay silent and let the host time out.
				continue
			}
			return err
		}
		if err := b.handle(req); err != nil {
			return err
		}
	}
}

func (b *Brain) handle(req wire.Frame) error {
	b.mu.Lock()
	b.requests = append(b.requests, wire.Frame{Opcode: req.Opcode, Payload: bytes.Clone(req.Payload)})
	b.counts[req.Opcode]++
	n := b.counts[req.Opcode]
	intercept := b.Intercept
	offline := b.outage > 0
	if offline {
		b.outage--
	}
	b.mu.Unlock()

	if offline {
		return nil
	}

	var act Action
	if intercept != nil {
		act = intercept(req, n)
	}
	if act.Drop {
		return nil
	}
	if act.Delay > 0 {
		time.Sleep(act.Delay)
	}
	if act.Noise {
		if err := b.reply(wire.OpUserOutput, wire.AckOK, []byte("noise"), true); err != nil {
			return err
		}
	}

	var (
		ack     wire.Ack
		payload []byte
	)
	if act.Ack != 0 {
		ack = act.Ack
	} else {
		ack, payload = b.execute(req)
	}
	if err := b.reply(req.Opcode, ack, payload, act.Corrupt); err != nil {
		return err
	}

	if req.Opcode == wire.OpQuerySlot && b.AfterQuery != nil && len(req.Payload) > 0 {
		b.AfterQuery(req.Payload[0], n)
	}
	return nil
}

func (b *Brain) reply(op wire.Opcode, ack wire.Ack, payload []byte, corrupt bool) error {
	raw, err := wire.EncodeReply(op, ack, payload)
	if err != nil {
		return err
	}
	if corrupt {
		raw[len(raw)-1] ^= 0xFF
	}
	b.wmu.Lock()
	defer b.wmu.Unlock()
	_, err = b.conn.Write(raw)
	return err
}

// Emit sends an unsolicited user output frame.
func (b *Brain) Emit(text string) error {
	return b.reply(wire.OpUserOutput, wire.AckOK, []byte(text), false)
}

func validSlot(s uint8) bool {
	return s >= types.MinSlot && s <= types.MaxSlot
}

func (b *Brain) execute(req wire.Frame) (wire.Ack, []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := req.Payload
	switch req.Opcode {
	case wire.OpQuerySlot:
		if len(p) < 1 {
			return wire.AckPayloadTooShort, nil
		}
		if !validSlot(p[0]) {
			return wire.AckSlotOutOfRange, nil
		}
		info := wire.SlotInfo{Slot: p[0], Kind: types.ImageKindMonolithic, MaxChunk: b.MaxChunk}
		if s, ok := b.slots[p[0]]; ok && len(s.Image) > 0 {
			info.Occupied = true
			info.Kind = s.Kind
			info.Size = uint32(len(s.Image))
			info.Fingerprint = types.FingerprintOf(s.Image)
		}
		return wire.AckOK, wire.EncodeSlotInfo(info)

	case wire.OpBeginTransfer:
		begin, err := wire.DecodeBeginTransfer(p)
		if err != nil {
			return wire.AckPayloadTooShort, nil
		}
		if !validSlot(begin.Slot) {
			return wire.AckSlotOutOfRange, nil
		}
		if begin.PayloadSize > types.MaxImageSize {
			return wire.AckTransferTooLarge, nil
		}
		if begin.Mode == types.TransferDifferential {
			s, ok := b.slots[begin.Slot]
			if !ok || types.FingerprintOf(s.Image) != begin.Reference {
				return wire.AckReferenceMismatch, nil
			}
		}
		b.active = &transfer{begin: begin}
		return wire.AckOK, nil

	case wire.OpWriteChunk:
		off, data, err := wire.DecodeChunk(p)
		if err != nil {
			return wire.AckPayloadTooShort, nil
		}
		if b.active == nil {
			return wire.AckNotInitialized, nil
		}
		// A resent chunk that was already written is acknowledged again.
		if int(off)+len(data) == len(b.active.buf) && bytes.Equal(b.active.buf[off:], data) {
			return wire.AckOK, wire.ChunkAck(off)
		}
		if int(off) != len(b.active.buf) {
			return wire.AckOffsetMismatch, nil
		}
		b.active.buf = append(b.active.buf, data...)
		return wire.AckOK, wire.ChunkAck(off)

	case wire.OpEndTransfer:
		if b.active == nil {
			return wire.AckNotInitialized, nil
		}
		t := b.active
		b.active = nil
		img, ack := b.materialize(t)
		if ack != wire.AckOK {
			return ack, nil
		}
		if b.CorruptFlash && len(img) > 0 {
			img[len(img)/2] ^= 0xFF
		}
		b.slots[t.begin.Slot] = &Slot{Image: img, Kind: t.begin.Kind}
		return wire.AckOK, nil

	case wire.OpVerify:
		if len(p) < 1 || !validSlot(p[0]) {
			return wire.AckSlotOutOfRange, nil
		}
		var v wire.VerifyResult
		if s, ok := b.slots[p[0]]; ok {
			v = wire.VerifyResult{Fingerprint: types.FingerprintOf(s.Image), Size: uint32(len(s.Image))}
		}
		return wire.AckOK, v.Encode()

	case wire.OpSetMetadata:
		m, err := wire.DecodeMetadata(p)
		if err != nil {
			return wire.AckPayloadTooShort, nil
		}
		s, ok := b.slots[m.Slot]
		if !ok {
			return wire.AckSlotOutOfRange, nil
		}
		s.Name, s.Description, s.Icon = m.Name, m.Description, m.Icon
		return wire.AckOK, nil

	case wire.OpRunProgram:
		if len(p) < 2 {
			return wire.AckPayloadTooShort, nil
		}
		s, ok := b.slots[p[0]]
		if !ok {
			return wire.AckSlotOutOfRange, nil
		}
		switch p[1] {
		case types.AfterRun.Code():
			s.Ran = types.AfterRun
		case types.AfterScreen.Code():
			s.Ran = types.AfterScreen
		}
		return wire.AckOK, nil

	case wire.OpEraseSlot:
		if len(p) < 1 || !validSlot(p[0]) {
			return wire.AckSlotOutOfRange, nil
		}
		delete(b.slots, p[0])
		return wire.AckOK, nil

	case wire.OpSystemStatus:
		return wire.AckOK, wire.SystemStatus{Product: b.product, Flags: b.flags}.Encode()

	case wire.OpRadioStatus:
		return wire.AckOK, wire.RadioStatus{Device: 8, Quality: 100, Strength: -45, Channel: b.channel, Timeslot: 1}.Encode()

	case wire.OpFileControl:
		target, radio, err := wire.DecodeRadioSwitch(p)
		if err != nil {
			return wire.AckPayloadTooShort, nil
		}
		if !radio {
			return wire.AckUnsupported, nil
		}
		if b.channel == wire.ChannelRepairing {
			return wire.AckNack, nil
		}
		if b.IgnoreRadioSwitch {
			return wire.AckOK, nil
		}
		b.channel = pitChannel
		if target == wire.RadioDownload {
			b.channel = wire.ChannelDownload
		}
		b.outage = b.RadioOutage
		return wire.AckOK, nil

	case wire.OpKVLoad:
		key := wire.KVValue(p)
		return wire.AckOK, append([]byte(b.kv[key]), 0)

	case wire.OpKVSave:
		key, value, err := wire.DecodeKVPair(p)
		if err != nil {
			return wire.AckPayloadTooShort, nil
		}
		b.kv[key] = value
		return wire.AckOK, nil

	default:
		return wire.AckUnsupported, nil
	}
}

// materialize turns a finished transfer into the image to store. A
// differential transfer whose reference slot was erased meanwhile fails
// with AckReferenceMismatch.
func (b *Brain) materialize(t *transfer) ([]byte, wire.Ack) {
	payload := t.buf
	if uint32(len(payload)) != t.begin.PayloadSize {
		return nil, wire.AckNack
	}
	if t.begin.Compressed {
		zr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, wire.AckNack
		}
		payload, err = io.ReadAll(zr)
		if err != nil {
			return nil, wire.AckNack
		}
	}
	if t.begin.Mode != types.TransferDifferential {
		return payload, wire.AckOK
	}
	ref, ok := b.slots[t.begin.Slot]
	if !ok {
		return nil, wire.AckReferenceMismatch
	}
	img, err := patch.Apply(ref.Image, payload)
	if err != nil {
		return nil, wire.AckNack
	}
	return img, wire.AckOK
}

// pitChannel is the channel a simulated controller drives on.
const pitChannel wire.RadioChannel = 1

// SetController makes the brain answer as a controller whose radio is on
// channel. A tethered controller is wired to its brain.
func (b *Brain) SetController(channel wire.RadioChannel, tethered bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.product = wire.ProductController
	b.channel = channel
	b.flags = 0
	if tethered {
		b.flags = wire.FlagTethered
	}
}

// RadioChannel returns the current radio channel.
func (b *Brain) RadioChannel() wire.RadioChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel
}

// SetSlot stores an image directly, as if uploaded by another tool.
func (b *Brain) SetSlot(slot uint8, image []byte, kind types.ImageKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[slot] = &Slot{Image: bytes.Clone(image), Kind: kind}
}

// Slot returns a copy of a slot's state.
func (b *Brain) Slot(slot uint8) (Slot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.slots[slot]
	if !ok {
		return Slot{}, false
	}
	c := *s
	c.Image = bytes.Clone(s.Image)
	return c, true
}

// KV returns an on-device key/value entry.
func (b *Brain) KV(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.kv[key]
}

// Requests returns every request received, in order, including resends.
func (b *Brain) Requests() []wire.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]wire.Frame(nil), b.requests...)
}

// Opcodes returns the opcode of every request received, in order.
func (b *Brain) Opcodes() []wire.Opcode {
	reqs := b.Requests()
	ops := make([]wire.Opcode, len(reqs))
	for i, r := range reqs {
		ops[i] = r.Opcode
	}
	return ops
}

// Count returns how many requests with op were received.
func (b *Brain) Count(op wire.Opcode) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[op]
}
