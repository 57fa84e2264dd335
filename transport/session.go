// Package transport owns the serial link to the brain.
//
// A Session multiplexes one port between blocking request/response
// exchanges and a long-lived stream of unsolicited output frames. A single
// reader goroutine decodes every incoming frame and routes it either to the
// request it answers or to the stream. Replies that answer nothing waiting,
// such as the second reply to a resent request, are discarded.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/brainlink/log"
	"github.com/pithecene-io/brainlink/metrics"
	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/wire"
)

var (
	// ErrBusy is returned by Reserve when the session is already reserved.
	ErrBusy = errors.New("transport session is busy")

	// ErrClosed is returned for requests on a closed session.
	ErrClosed = errors.New("transport session closed")

	errTimeout = errors.New("timed out waiting for reply")
)

// Reply is a successful exchange.
type Reply struct {
	Frame wire.Frame
	// Attempts is how many times the request was sent.
	Attempts int
}

type result struct {
	frame wire.Frame
	err   error
}

type waiter struct {
	op      wire.Opcode
	payload []byte
	ch      chan result
}

// Session is an open link to one brain.
type Session struct {
	port    io.ReadWriteCloser
	cfg     Config
	logger  *log.Logger
	metrics *metrics.Collector

	// reqMu serializes exchanges: the device answers one command at a time.
	reqMu sync.Mutex

	mu      sync.Mutex
	waiting *waiter

	stream   chan wire.Frame
	reserved atomic.Bool

	closeOnce  sync.Once
	signalOnce sync.Once
	closed     chan struct{}
	done       chan struct{}
	readErr    error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Session) { s.metrics = c }
}

// NewSession starts a session over an already-open port.
// The session owns port and closes it on Close.
func NewSession(port io.ReadWriteCloser, cfg Config, opts ...Option) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		port:   port,
		cfg:    cfg,
		logger: log.Nop(),
		stream: make(chan wire.Frame, cfg.StreamBuffer),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.readLoop()
	return s
}

// Config returns the effective configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Request sends a command and waits for the reply that answers it (see
// wire.Answers).
//
// Each attempt is bounded by Config.RequestTimeout. A timeout, a reply that
// fails its CRC, or a NACK_CRC status resends the same bytes, up to
// Config.Attempts in total; exhaustion returns an error matching
// types.ErrLink. Any other non-ACK status is returned as *wire.NackError
// without retrying.
//
// Cancelling ctx abandons the wait; callers that must not leave an exchange
// half-finished should pass a context without cancellation.
func (s *Session) Request(ctx context.Context, op wire.Opcode, payload []byte) (*Reply, error) {
	raw, err := wire.EncodeRequest(op, payload)
	if err != nil {
		return nil, err
	}

	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		if attempt > 1 {
			s.metrics.IncRequestRetry()
			s.logger.Debug("retrying request", map[string]any{
				"opcode":  op.String(),
				"attempt": attempt,
				"reason":  lastErr.Error(),
			})
			if err := s.pause(ctx); err != nil {
				return nil, err
			}
		}

		frame, err := s.exchange(ctx, op, payload, raw)
		switch {
		case err == nil:
		case errors.Is(err, errTimeout):
			s.metrics.IncRequestTimeout()
			lastErr = err
			continue
		case wire.IsChecksumError(err):
			s.metrics.IncChecksumError()
			lastErr = err
			continue
		default:
			return nil, err
		}

		if err := wire.CheckAck(frame); err != nil {
			var nack *wire.NackError
			if errors.As(err, &nack) && nack.Retryable() {
				lastErr = err
				continue
			}
			return &Reply{Frame: frame, Attempts: attempt}, err
		}
		return &Reply{Frame: frame, Attempts: attempt}, nil
	}

	return nil, fmt.Errorf("%w: %s failed after %d attempts: %w", types.ErrLink, op, s.cfg.Attempts, lastErr)
}

// exchange performs one attempt.
func (s *Session) exchange(ctx context.Context, op wire.Opcode, payload, raw []byte) (wire.Frame, error) {
	w := &waiter{op: op, payload: payload, ch: make(chan result, 1)}

	s.mu.Lock()
	if s.isClosed() {
		s.mu.Unlock()
		return wire.Frame{}, s.closedErr()
	}
	s.waiting = w
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.waiting == w {
			s.waiting = nil
		}
		s.mu.Unlock()
	}()

	if _, err := s.port.Write(raw); err != nil {
		return wire.Frame{}, fmt.Errorf("%w: write %s: %w", types.ErrLink, op, err)
	}

	timer := time.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case r := <-w.ch:
		return r.frame, r.err
	case <-timer.C:
		return wire.Frame{}, errTimeout
	case <-ctx.Done():
		return wire.Frame{}, ctx.Err()
	case <-s.closed:
		return wire.Frame{}, s.closedErr()
	}
}

func (s *Session) pause(ctx context.Context) error {
	if s.cfg.RetryDelay <= 0 {
		return nil
	}
	t := time.NewTimer(s.cfg.RetryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return s.closedErr()
	}
}

// Stream returns the channel of unsolicited output frames. It is closed
// when the session closes. Frames arriving while the session is reserved,
// or while the channel is full, are dropped.
func (s *Session) Stream() <-chan wire.Frame {
	return s.stream
}

// Reserve grants exclusive use of the session for an upload. Unsolicited
// output is dropped until release is called. A second reservation fails
// with ErrBusy.
func (s *Session) Reserve() (release func(), err error) {
	if !s.reserved.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	var once sync.Once
	return func() {
		once.Do(func() { s.reserved.Store(false) })
	}, nil
}

// Reserved reports whether an upload currently holds the session.
func (s *Session) Reserved() bool {
	return s.reserved.Load()
}

// Close closes the port and waits for the reader to exit.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.signalClosed()
		err = s.port.Close()
		<-s.done
	})
	return err
}

func (s *Session) signalClosed() {
	s.signalOnce.Do(func() {
		s.mu.Lock()
		close(s.closed)
		s.mu.Unlock()
	})
}

// Done is closed once the reader has stopped, either after Close or
// because the port failed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that stopped the reader, or nil while it is running
// or after a clean Close.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.readErr
	default:
		return nil
	}
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) closedErr() error {
	return fmt.Errorf("%w: %w", types.ErrLink, ErrClosed)
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.stream)

	dec := wire.NewDecoder(s.port)
	for {
		f, err := dec.ReadReply()
		if err != nil {
			var frameErr *wire.FrameError
			switch {
			case errors.As(err, &frameErr) && !frameErr.IsFatal():
				s.logger.Debug("discarding bad frame", map[string]any{"error": err.Error()})
				if frameErr.Kind == wire.FrameErrorChecksum {
					s.deliver(nil, err)
				}
				continue
			case s.isClosed():
				return
			default:
				s.readErr = err
				s.logger.Warn("serial reader stopped", map[string]any{"error": err.Error()})
				s.signalClosed()
				return
			}
		}

		if f.Opcode == wire.OpUserOutput {
			s.publish(f)
			continue
		}
		if !s.deliver(&f, nil) {
			s.metrics.IncStaleReply()
			s.logger.Debug("discarding stale reply", map[string]any{
				"opcode": f.Opcode.String(),
				"ack":    f.Ack.String(),
			})
		}
	}
}

// deliver hands a reply (or a checksum failure) to the waiting request.
// A failed CRC cannot be matched and goes to whoever is waiting; the
// resulting resend is safe because its duplicate reply will not match.
func (s *Session) deliver(f *wire.Frame, err error) bool {
	s.mu.Lock()
	w := s.waiting
	if w == nil || (f != nil && !wire.Answers(w.op, w.payload, *f)) {
		s.mu.Unlock()
		return false
	}
	s.waiting = nil
	s.mu.Unlock()

	r := result{err: err}
	if f != nil {
		r.frame = *f
	}
	w.ch <- r
	return true
}

func (s *Session) publish(f wire.Frame) {
	if s.reserved.Load() {
		s.metrics.IncStreamDropped()
		return
	}
	select {
	case s.stream <- f:
		s.metrics.IncStreamFrame()
	default:
		s.metrics.IncStreamDropped()
	}
}
