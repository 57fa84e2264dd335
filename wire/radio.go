package wire

import "fmt"

// RadioChannel is the channel a V5 radio reports in RadioStatus.
type RadioChannel uint8

// Channels with special meaning. Competition and pit channels use the rest
// of the range.
const (
	ChannelDownload RadioChannel = 5
	// ChannelRepairing means the controller is stuck re-pairing and ignores
	// file control commands until power cycled.
	ChannelRepairing RadioChannel = 9
	// ChannelBluetooth has no separate download channel.
	ChannelBluetooth RadioChannel = 245
)

// RadioStatus is the RadioStatus reply.
type RadioStatus struct {
	Device   uint8
	Quality  uint16
	Strength int16
	Channel  RadioChannel
	Timeslot uint8
}

const radioStatusSize = 1 + 2 + 2 + 1 + 1

// Encode encodes a RadioStatus reply payload.
func (r RadioStatus) Encode() []byte {
	buf := make([]byte, 0, radioStatusSize)
	buf = append(buf, r.Device)
	buf = le.AppendUint16(buf, r.Quality)
	buf = le.AppendUint16(buf, uint16(r.Strength))
	return append(buf, uint8(r.Channel), r.Timeslot)
}

// DecodeRadioStatus decodes a RadioStatus reply payload.
func DecodeRadioStatus(p []byte) (RadioStatus, error) {
	if len(p) < radioStatusSize {
		return RadioStatus{}, short("radio status", len(p), radioStatusSize)
	}
	return RadioStatus{
		Device:   p[0],
		Quality:  le.Uint16(p[1:3]),
		Strength: int16(le.Uint16(p[3:5])),
		Channel:  RadioChannel(p[5]),
		Timeslot: p[6],
	}, nil
}

// Product is the device type reported in SystemStatus.
type Product uint8

const (
	ProductBrain      Product = 0x10
	ProductController Product = 0x11
)

func (p Product) String() string {
	switch p {
	case ProductBrain:
		return "brain"
	case ProductController:
		return "controller"
	default:
		return fmt.Sprintf("product(0x%02x)", uint8(p))
	}
}

// FlagTethered is set in SystemStatus.Flags when a controller is wired to
// the brain.
const FlagTethered uint32 = 1 << 8

// SystemStatus is the SystemStatus reply.
type SystemStatus struct {
	Product Product
	Flags   uint32
}

const systemStatusSize = 1 + 4

// Wireless reports whether the link reaches the brain over a controller's
// radio.
func (s SystemStatus) Wireless() bool {
	return s.Product == ProductController && s.Flags&FlagTethered == 0
}

// Encode encodes a SystemStatus reply payload.
func (s SystemStatus) Encode() []byte {
	buf := make([]byte, 0, systemStatusSize)
	buf = append(buf, uint8(s.Product))
	return le.AppendUint32(buf, s.Flags)
}

// DecodeSystemStatus decodes a SystemStatus reply payload.
func DecodeSystemStatus(p []byte) (SystemStatus, error) {
	if len(p) < systemStatusSize {
		return SystemStatus{}, short("system status", len(p), systemStatusSize)
	}
	return SystemStatus{Product: Product(p[0]), Flags: le.Uint32(p[1:5])}, nil
}

// RadioTarget selects the channel a FileControl radio command moves to.
type RadioTarget uint8

const (
	RadioPit      RadioTarget = 0x00
	RadioDownload RadioTarget = 0x01
)

// fileControlRadio is the FileControl group for radio commands.
const fileControlRadio = 0x01

// RadioSwitch encodes a FileControl request that moves the radio.
func RadioSwitch(target RadioTarget) []byte {
	return []byte{fileControlRadio, uint8(target)}
}

// DecodeRadioSwitch decodes a FileControl radio request. ok is false for
// other FileControl groups.
func DecodeRadioSwitch(p []byte) (target RadioTarget, ok bool, err error) {
	if len(p) < 2 {
		return 0, false, short("file control", len(p), 2)
	}
	if p[0] != fileControlRadio {
		return 0, false, nil
	}
	return RadioTarget(p[1]), true, nil
}
