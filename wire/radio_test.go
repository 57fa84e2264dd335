package wire

import (
	"errors"
	"testing"
)

func TestRadioStatus_Decode(t *testing.T) {
	want := RadioStatus{Device: 8, Quality: 97, Strength: -61, Channel: ChannelDownload, Timeslot: 2}
	got, err := DecodeRadioStatus(want.Encode())
	if err != nil {
		t.Fatalf("DecodeRadioStatus failed: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if _, err := DecodeRadioStatus([]byte{8, 0, 0}); !errors.Is(err, ErrShortPayload) {
		t.Errorf("expected ErrShortPayload, got %v", err)
	}
}

func TestSystemStatus_Wireless(t *testing.T) {
	tests := []struct {
		name   string
		status SystemStatus
		want   bool
	}{
		{"brain", SystemStatus{Product: ProductBrain}, false},
		{"wireless controller", SystemStatus{Product: ProductController}, true},
		{"tethered controller", SystemStatus{Product: ProductController, Flags: FlagTethered}, false},
		{"other flags", SystemStatus{Product: ProductController, Flags: 1 << 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSystemStatus(tt.status.Encode())
			if err != nil {
				t.Fatalf("DecodeSystemStatus failed: %v", err)
			}
			if got.Wireless() != tt.want {
				t.Errorf("Wireless() = %v, want %v", got.Wireless(), tt.want)
			}
		})
	}
}

func TestDecodeRadioSwitch(t *testing.T) {
	target, radio, err := DecodeRadioSwitch(RadioSwitch(RadioDownload))
	if err != nil || !radio || target != RadioDownload {
		t.Errorf("DecodeRadioSwitch = %v %v %v", target, radio, err)
	}
	if _, radio, err := DecodeRadioSwitch([]byte{0x02, 0x00}); err != nil || radio {
		t.Errorf("non-radio group: radio = %v, err = %v", radio, err)
	}
	if _, _, err := DecodeRadioSwitch([]byte{0x01}); !errors.Is(err, ErrShortPayload) {
		t.Errorf("expected ErrShortPayload, got %v", err)
	}
	if got := OpRadioStatus.String(); got != "radio_status" {
		t.Errorf("OpRadioStatus = %q", got)
	}
}
