package device

import (
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/brainlink/transport"
	"github.com/pithecene-io/brainlink/transport/transporttest"
	"github.com/pithecene-io/brainlink/types"
)

func newClient(t *testing.T, brain *transporttest.Brain) *Client {
	t.Helper()
	s := transport.NewSession(brain.Connect(), transport.Config{RequestTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = s.Close() })
	return NewClient(s)
}

func TestClient_Slots(t *testing.T) {
	brain := transporttest.NewBrain()
	brain.SetSlot(3, []byte("three"), types.ImageKindHotPatch)
	c := newClient(t, brain)

	infos, err := c.Slots(t.Context())
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if len(infos) != types.MaxSlot {
		t.Fatalf("got %d slots, want %d", len(infos), types.MaxSlot)
	}
	for _, info := range infos {
		occupied := info.Slot == 3
		if info.Occupied != occupied {
			t.Errorf("slot %d occupied = %v, want %v", info.Slot, info.Occupied, occupied)
		}
	}
	if infos[2].Kind != types.ImageKindHotPatch || infos[2].Size != 5 {
		t.Errorf("slot 3 info = %+v", infos[2])
	}
}

func TestClient_Erase(t *testing.T) {
	brain := transporttest.NewBrain()
	brain.SetSlot(1, []byte("prog"), types.ImageKindMonolithic)
	c := newClient(t, brain)

	if err := c.Erase(t.Context(), 1); err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	if _, ok := brain.Slot(1); ok {
		t.Error("slot 1 still occupied")
	}
	if err := c.Erase(t.Context(), 12); !errors.Is(err, types.ErrProtocol) {
		t.Errorf("expected ErrProtocol for slot 12, got %v", err)
	}
}

func TestClient_KV(t *testing.T) {
	brain := transporttest.NewBrain()
	c := newClient(t, brain)

	if err := c.KVSet(t.Context(), "teamnumber", "9999Z"); err != nil {
		t.Fatalf("KVSet failed: %v", err)
	}
	if brain.KV("teamnumber") != "9999Z" {
		t.Errorf("device value = %q", brain.KV("teamnumber"))
	}
	got, err := c.KVGet(t.Context(), "teamnumber")
	if err != nil || got != "9999Z" {
		t.Errorf("KVGet = %q, %v", got, err)
	}
	if _, err := c.KVGet(t.Context(), ""); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestClient_RunAndVerify(t *testing.T) {
	brain := transporttest.NewBrain()
	brain.SetSlot(2, []byte("prog"), types.ImageKindMonolithic)
	c := newClient(t, brain)

	v, err := c.Verify(t.Context(), 2)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if v.Fingerprint != types.FingerprintOf([]byte("prog")) || v.Size != 4 {
		t.Errorf("Verify = %+v", v)
	}

	if err := c.Run(t.Context(), 2, types.AfterRun); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if s, _ := brain.Slot(2); s.Ran != types.AfterRun {
		t.Errorf("Ran = %q, want run", s.Ran)
	}
}
