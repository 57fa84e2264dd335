// Package metrics provides per-invocation upload metrics collection.
//
// The Collector accumulates counters during a single CLI invocation. It is a
// leaf package with no internal dependencies; error kinds and transfer modes
// are recorded as plain strings.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Upload lifecycle
	UploadsStarted   int64
	UploadsCompleted int64
	UploadsFailed    int64
	FailuresByKind   map[string]int64

	// Planning
	FullTransfers         int64
	DifferentialTransfers int64
	Replans               int64

	// Transfer
	ChunksSent   int64
	BytesSent    int64
	ImageBytes   int64
	PayloadBytes int64

	// Transport
	RequestRetries       int64
	RequestTimeouts      int64
	ChecksumErrors       int64
	StaleReplies         int64
	StreamFramesDropped  int64
	StreamFramesReceived int64

	// Reference store
	LodeWriteSuccess int64
	LodeWriteFailure int64

	// Dimensions (informational, set at construction)
	Strategy       string
	StorageBackend string
	Port           string
}

// Collector accumulates metrics during a single invocation.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	uploadsStarted   int64
	uploadsCompleted int64
	uploadsFailed    int64
	failuresByKind   map[string]int64

	fullTransfers         int64
	differentialTransfers int64
	replans               int64

	chunksSent   int64
	bytesSent    int64
	imageBytes   int64
	payloadBytes int64

	requestRetries       int64
	requestTimeouts      int64
	checksumErrors       int64
	staleReplies         int64
	streamFramesDropped  int64
	streamFramesReceived int64

	lodeWriteSuccess int64
	lodeWriteFailure int64

	strategy       string
	storageBackend string
	port           string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(strategy, storageBackend, port string) *Collector {
	return &Collector{
		failuresByKind: make(map[string]int64),
		strategy:       strategy,
		storageBackend: storageBackend,
		port:           port,
	}
}

// --- Upload lifecycle ---

// IncUploadStarted records an upload start.
func (c *Collector) IncUploadStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.uploadsStarted++
	c.mu.Unlock()
}

// IncUploadCompleted records an upload reaching Done.
func (c *Collector) IncUploadCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.uploadsCompleted++
	c.mu.Unlock()
}

// IncUploadFailed records an upload failure classified by kind
// (e.g. "link_error", "verification_error").
func (c *Collector) IncUploadFailed(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.uploadsFailed++
	c.failuresByKind[kind]++
	c.mu.Unlock()
}

// --- Planning ---

// RecordPlan records the chosen transfer mode and the sizes involved.
// mode is "full" or "differential".
func (c *Collector) RecordPlan(mode string, imageBytes, payloadBytes int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if mode == "differential" {
		c.differentialTransfers++
	} else {
		c.fullTransfers++
	}
	c.imageBytes = int64(imageBytes)
	c.payloadBytes = int64(payloadBytes)
	c.mu.Unlock()
}

// IncReplan records a differential plan discarded because the resident
// image changed before the transfer began.
func (c *Collector) IncReplan() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.replans++
	c.mu.Unlock()
}

// --- Transfer ---

// AddChunk records one acknowledged chunk of n bytes.
func (c *Collector) AddChunk(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksSent++
	c.bytesSent += int64(n)
	c.mu.Unlock()
}

// --- Transport ---

// IncRequestRetry records a request attempt beyond the first.
func (c *Collector) IncRequestRetry() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestRetries++
	c.mu.Unlock()
}

// IncRequestTimeout records an attempt that got no reply in time.
func (c *Collector) IncRequestTimeout() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestTimeouts++
	c.mu.Unlock()
}

// IncChecksumError records a reply discarded for a CRC mismatch.
func (c *Collector) IncChecksumError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.checksumErrors++
	c.mu.Unlock()
}

// IncStaleReply records a reply discarded because it answered an earlier
// attempt or request.
func (c *Collector) IncStaleReply() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.staleReplies++
	c.mu.Unlock()
}

// IncStreamFrame records an unsolicited frame delivered to the stream.
func (c *Collector) IncStreamFrame() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamFramesReceived++
	c.mu.Unlock()
}

// IncStreamDropped records an unsolicited frame dropped while the link was
// reserved or the consumer was not keeping up.
func (c *Collector) IncStreamDropped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamFramesDropped++
	c.mu.Unlock()
}

// --- Lode / Storage ---

// IncLodeWriteSuccess records a successful reference store write.
func (c *Collector) IncLodeWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lodeWriteSuccess++
	c.mu.Unlock()
}

// IncLodeWriteFailure records a failed reference store write.
func (c *Collector) IncLodeWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lodeWriteFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	failures := make(map[string]int64, len(c.failuresByKind))
	for k, v := range c.failuresByKind {
		failures[k] = v
	}

	return Snapshot{
		UploadsStarted:   c.uploadsStarted,
		UploadsCompleted: c.uploadsCompleted,
		UploadsFailed:    c.uploadsFailed,
		FailuresByKind:   failures,

		FullTransfers:         c.fullTransfers,
		DifferentialTransfers: c.differentialTransfers,
		Replans:               c.replans,

		ChunksSent:   c.chunksSent,
		BytesSent:    c.bytesSent,
		ImageBytes:   c.imageBytes,
		PayloadBytes: c.payloadBytes,

		RequestRetries:       c.requestRetries,
		RequestTimeouts:      c.requestTimeouts,
		ChecksumErrors:       c.checksumErrors,
		StaleReplies:         c.staleReplies,
		StreamFramesDropped:  c.streamFramesDropped,
		StreamFramesReceived: c.streamFramesReceived,

		LodeWriteSuccess: c.lodeWriteSuccess,
		LodeWriteFailure: c.lodeWriteFailure,

		Strategy:       c.strategy,
		StorageBackend: c.storageBackend,
		Port:           c.port,
	}
}
