package transport

import (
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/pithecene-io/brainlink/types"
)

// VendorID is the USB vendor ID of VEX Robotics devices.
const VendorID = "2888"

// USB product IDs.
const (
	productBrain      = "0501"
	productController = "0503"
)

// DeviceKind classifies a detected serial port.
type DeviceKind string

const (
	DeviceBrain      DeviceKind = "brain"
	DeviceController DeviceKind = "controller"
	DeviceUnknown    DeviceKind = "unknown"
)

// Device is a detected serial port belonging to a brain or controller.
type Device struct {
	Port         string     `json:"port" yaml:"port"`
	Kind         DeviceKind `json:"kind" yaml:"kind"`
	Product      string     `json:"product,omitempty" yaml:"product,omitempty"`
	SerialNumber string     `json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
}

// Open claims portName exclusively and starts a session on it.
// Failure to claim the port returns an error matching types.ErrConnection.
func Open(portName string, cfg Config, opts ...Option) (*Session, error) {
	cfg = cfg.withDefaults()
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", types.ErrConnection, portName, err)
	}
	return NewSession(port, cfg, opts...), nil
}

// FindDevices lists USB serial ports with the VEX vendor ID, sorted by port.
func FindDevices() ([]Device, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate serial ports: %w", types.ErrConnection, err)
	}
	return filterDevices(ports), nil
}

func filterDevices(ports []*enumerator.PortDetails) []Device {
	var devices []Device
	for _, p := range ports {
		if p == nil || !p.IsUSB || !strings.EqualFold(p.VID, VendorID) {
			continue
		}
		kind := DeviceUnknown
		switch strings.ToLower(p.PID) {
		case productBrain:
			kind = DeviceBrain
		case productController:
			kind = DeviceController
		}
		devices = append(devices, Device{
			Port:         p.Name,
			Kind:         kind,
			Product:      p.Product,
			SerialNumber: p.SerialNumber,
		})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Port < devices[j].Port })
	return devices
}

// FindBrainPort returns the single brain port, preferring brains over
// controllers. It fails with types.ErrConnection when none or several are
// attached.
func FindBrainPort() (string, error) {
	devices, err := FindDevices()
	if err != nil {
		return "", err
	}
	return pickPort(devices)
}

func pickPort(devices []Device) (string, error) {
	var brains, others []Device
	for _, d := range devices {
		if d.Kind == DeviceBrain {
			brains = append(brains, d)
		} else {
			others = append(others, d)
		}
	}
	candidates := brains
	if len(candidates) == 0 {
		candidates = others
	}
	if sameDevice(candidates) {
		// A brain enumerates a system and a user port; the system port sorts first.
		candidates = candidates[:1]
	}
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: no V5 device found", types.ErrConnection)
	case 1:
		return candidates[0].Port, nil
	default:
		names := make([]string, len(candidates))
		for i, d := range candidates {
			names[i] = d.Port
		}
		return "", fmt.Errorf("%w: multiple devices found (%s), pass --port", types.ErrConnection, strings.Join(names, ", "))
	}
}

func sameDevice(devices []Device) bool {
	if len(devices) < 2 || devices[0].SerialNumber == "" {
		return false
	}
	for _, d := range devices[1:] {
		if d.SerialNumber != devices[0].SerialNumber {
			return false
		}
	}
	return true
}
