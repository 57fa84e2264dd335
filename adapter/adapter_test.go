package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/upload"
)

func TestNewUploadCompletedEvent_Done(t *testing.T) {
	ref := types.FingerprintOf([]byte("old"))
	res := &upload.Result{
		UploadID:     "u-1",
		Slot:         3,
		Mode:         types.TransferDifferential,
		ImageBytes:   4096,
		PayloadBytes: 120,
		Chunks:       1,
		Fingerprint:  types.FingerprintOf([]byte("new")),
		Reference:    ref,
		Duration:     2 * time.Second,
	}
	slot := types.SlotDescriptor{Index: 3, Name: "lift"}
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	ev := NewUploadCompletedEvent(slot, "/dev/ttyACM1", res, nil, at)

	if ev.EventType != EventTypeUploadCompleted || ev.Outcome != OutcomeDone {
		t.Errorf("type/outcome = %s/%s", ev.EventType, ev.Outcome)
	}
	if ev.Reference != ref.String() {
		t.Errorf("reference = %s, want %s", ev.Reference, ref)
	}
	if ev.DurationMs != 2000 {
		t.Errorf("duration_ms = %d, want 2000", ev.DurationMs)
	}
	if ev.Timestamp != "2026-10-19T06:00:00Z" {
		t.Errorf("timestamp = %s, want UTC", ev.Timestamp)
	}
	if ev.Error != "" {
		t.Errorf("unexpected error field %q", ev.Error)
	}
}

func TestNewUploadCompletedEvent_Failed(t *testing.T) {
	err := &upload.Error{
		Kind:      types.ErrCorruptPatch,
		Stage:     upload.StateTransferring,
		Slot:      1,
		Err:       fmt.Errorf("device rejected patch: %w", types.ErrCorruptPatch),
		RetryFull: true,
	}
	ev := NewUploadCompletedEvent(types.SlotDescriptor{Index: 1}, "", nil, err, time.Unix(0, 0))

	if ev.Outcome != "corrupt_patch" {
		t.Errorf("outcome = %s, want corrupt_patch", ev.Outcome)
	}
	if !ev.RetryFull {
		t.Error("RetryFull not carried over")
	}
	if ev.Error == "" || ev.Fingerprint != "" {
		t.Errorf("error/fingerprint = %q/%q", ev.Error, ev.Fingerprint)
	}
}

func TestRetry(t *testing.T) {
	errTransient := errors.New("transient")
	errFatal := errors.New("fatal")
	permanent := func(err error) bool { return errors.Is(err, errFatal) }

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := Retry(t.Context(), "test", 3, permanent, func(context.Context) error {
			calls++
			return nil
		})
		if err != nil || calls != 1 {
			t.Errorf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("retries then succeeds", func(t *testing.T) {
		calls := 0
		err := Retry(t.Context(), "test", 1, permanent, func(context.Context) error {
			calls++
			if calls == 1 {
				return errTransient
			}
			return nil
		})
		if err != nil || calls != 2 {
			t.Errorf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("permanent stops", func(t *testing.T) {
		calls := 0
		err := Retry(t.Context(), "test", 3, permanent, func(context.Context) error {
			calls++
			return errFatal
		})
		if !errors.Is(err, errFatal) || calls != 1 {
			t.Errorf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("no retries exhausts", func(t *testing.T) {
		calls := 0
		err := Retry(t.Context(), "test", 0, nil, func(context.Context) error {
			calls++
			return errTransient
		})
		if !errors.Is(err, errTransient) || calls != 1 {
			t.Errorf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		err := Retry(ctx, "test", 3, nil, func(context.Context) error {
			t.Error("op called with canceled context")
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestBackoff(t *testing.T) {
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	for i, w := range want {
		if got := Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}
