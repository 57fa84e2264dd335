// Package adapter defines the notification boundary for finished uploads.
//
// Adapters publish one UploadCompletedEvent per upload to a downstream
// system. The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/upload"
)

// EventTypeUploadCompleted is the only event type adapters publish.
const EventTypeUploadCompleted = "upload_completed"

// OutcomeDone is the outcome of an upload that reached Done. Failed uploads
// carry their error kind (see types.KindName) instead.
const OutcomeDone = "done"

// UploadCompletedEvent is the payload published when an upload finishes,
// successfully or not.
type UploadCompletedEvent struct {
	EventType    string `json:"event_type"` // always "upload_completed"
	UploadID     string `json:"upload_id,omitempty"`
	Slot         int    `json:"slot"`
	Name         string `json:"name"`
	Port         string `json:"port,omitempty"`
	Outcome      string `json:"outcome"` // done, link_error, etc.
	Error        string `json:"error,omitempty"`
	Mode         string `json:"mode,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	Reference    string `json:"reference,omitempty"`
	ImageBytes   int    `json:"image_bytes"`
	PayloadBytes int    `json:"payload_bytes"`
	Chunks       int    `json:"chunks"`
	Retries      int    `json:"retries"`
	RetryFull    bool   `json:"retry_full,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	Timestamp    string `json:"timestamp"` // RFC 3339
}

// NewUploadCompletedEvent builds the event for an upload of slot that
// returned res and err. res may be nil when err is non-nil.
func NewUploadCompletedEvent(slot types.SlotDescriptor, port string, res *upload.Result, err error, at time.Time) *UploadCompletedEvent {
	event := &UploadCompletedEvent{
		EventType: EventTypeUploadCompleted,
		Slot:      slot.Index,
		Name:      slot.Name,
		Port:      port,
		Outcome:   OutcomeDone,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
	if res != nil {
		event.UploadID = res.UploadID
		event.Mode = string(res.Mode)
		event.Fingerprint = res.Fingerprint.String()
		if !res.Reference.IsZero() {
			event.Reference = res.Reference.String()
		}
		event.ImageBytes = res.ImageBytes
		event.PayloadBytes = res.PayloadBytes
		event.Chunks = res.Chunks
		event.Retries = res.Retries
		event.DurationMs = res.Duration.Milliseconds()
	}
	if err != nil {
		event.Outcome = types.KindName(err)
		event.Error = err.Error()
		var uerr *upload.Error
		if errors.As(err, &uerr) {
			event.RetryFull = uerr.RetryFull
		}
	}
	return event
}

// Adapter publishes upload completion events to a downstream system.
type Adapter interface {
	// Publish sends an upload completion event.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *UploadCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Backoff returns the delay before retry attempt i (i >= 1):
// 500ms, 1s, 2s, ...
func Backoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
}

// Retry runs op up to 1+retries times with Backoff between attempts.
// It stops early when op succeeds, when ctx is done, or when permanent
// reports the error cannot succeed on retry. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, permanent func(error) bool, op func(context.Context) error) error {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
