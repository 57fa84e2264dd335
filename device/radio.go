package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/wire"
)

// Radio polling defaults for SwitchToDownloadChannel.
const (
	DefaultRadioPoll    = 250 * time.Millisecond
	DefaultRadioTimeout = 8 * time.Second
)

// Channel switch failures. All match types.ErrConnection.
var (
	ErrRadioStuck = fmt.Errorf("%w: controller radio is stuck re-pairing on channel %d; power cycle the controller",
		types.ErrConnection, wire.ChannelRepairing)
	ErrRadioSwitchTimeout = fmt.Errorf("%w: controller never switched radio channels; try again, then power cycle the controller and brain",
		types.ErrConnection)
	ErrRadioReconnectTimeout = fmt.Errorf("%w: controller never reconnected after switching radio channels; try again, then power cycle the controller and brain",
		types.ErrConnection)
)

// RadioStatus reads the radio channel and signal of the link.
func (c *Client) RadioStatus(ctx context.Context) (wire.RadioStatus, error) {
	reply, err := c.link.Request(ctx, wire.OpRadioStatus, nil)
	if err != nil {
		return wire.RadioStatus{}, err
	}
	return wire.DecodeRadioStatus(reply.Frame.Payload)
}

// SystemStatus reads what kind of device answers on the port.
func (c *Client) SystemStatus(ctx context.Context) (wire.SystemStatus, error) {
	reply, err := c.link.Request(ctx, wire.OpSystemStatus, nil)
	if err != nil {
		return wire.SystemStatus{}, err
	}
	return wire.DecodeSystemStatus(reply.Frame.Payload)
}

// SwitchToDownloadChannel moves a wireless controller's radio to the
// download channel and waits until it is back on the link. Brains,
// tethered controllers and radios already on the download or Bluetooth
// channel are left alone. Devices without a radio status command are
// treated as brains.
func (c *Client) SwitchToDownloadChannel(ctx context.Context) error {
	radio, err := c.RadioStatus(ctx)
	if err != nil {
		var nack *wire.NackError
		if errors.As(err, &nack) && nack.Ack == wire.AckUnsupported {
			return nil
		}
		return err
	}
	c.logger.Debug("radio status", map[string]any{"channel": int(radio.Channel)})

	switch radio.Channel {
	case wire.ChannelRepairing:
		return ErrRadioStuck
	case wire.ChannelDownload, wire.ChannelBluetooth:
		return nil
	}

	sys, err := c.SystemStatus(ctx)
	if err != nil {
		return err
	}
	if !sys.Wireless() {
		return nil
	}

	c.logger.Info("switching radio to download channel", map[string]any{"from": int(radio.Channel)})
	if _, err := c.link.Request(ctx, wire.OpFileControl, wire.RadioSwitch(wire.RadioDownload)); err != nil {
		return fmt.Errorf("switch radio channel: %w", err)
	}

	// The radio leaves the link once it starts changing channel.
	err = c.awaitRadio(ctx, ErrRadioSwitchTimeout, func(_ wire.RadioStatus, err error) (bool, error) {
		return err != nil, nil
	})
	if err != nil {
		return err
	}
	return c.awaitRadio(ctx, ErrRadioReconnectTimeout, func(s wire.RadioStatus, err error) (bool, error) {
		var nack *wire.NackError
		if errors.As(err, &nack) {
			return false, err
		}
		return err == nil && s.Channel == wire.ChannelDownload, nil
	})
}

// awaitRadio polls the radio status until done reports true. It gives up
// with timeout once c.radioTimeout has passed.
func (c *Client) awaitRadio(ctx context.Context, timeout error, done func(wire.RadioStatus, error) (bool, error)) error {
	deadline := time.NewTimer(c.radioTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.radioPoll)
	defer tick.Stop()

	for {
		pctx, cancel := context.WithTimeout(ctx, c.radioPoll)
		status, err := c.RadioStatus(pctx)
		cancel()
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		ok, ferr := done(status, err)
		if ferr != nil {
			return ferr
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return timeout
		case <-tick.C:
		}
	}
}
