// Package device wraps single brain commands in typed calls.
package device

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/brainlink/log"
	"github.com/pithecene-io/brainlink/transport"
	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/wire"
)

// Requester performs one request/response exchange.
// *transport.Session satisfies it.
type Requester interface {
	Request(ctx context.Context, op wire.Opcode, payload []byte) (*transport.Reply, error)
}

// Client issues typed commands over a Requester.
type Client struct {
	link   Requester
	logger *log.Logger

	radioPoll    time.Duration
	radioTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRadioPolling sets how often the radio is polled during a channel
// switch and how long each phase of the switch may take.
func WithRadioPolling(interval, timeout time.Duration) Option {
	return func(c *Client) {
		c.radioPoll = interval
		c.radioTimeout = timeout
	}
}

// NewClient creates a client.
func NewClient(link Requester, opts ...Option) *Client {
	c := &Client{
		link:         link,
		logger:       log.Nop(),
		radioPoll:    DefaultRadioPoll,
		radioTimeout: DefaultRadioTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QuerySlot returns the occupancy and resident fingerprint of one slot.
func (c *Client) QuerySlot(ctx context.Context, slot int) (wire.SlotInfo, error) {
	reply, err := c.link.Request(ctx, wire.OpQuerySlot, wire.SlotQuery(uint8(slot)))
	if err != nil {
		return wire.SlotInfo{}, err
	}
	return wire.DecodeSlotInfo(reply.Frame.Payload)
}

// Slots queries every slot in order.
func (c *Client) Slots(ctx context.Context) ([]wire.SlotInfo, error) {
	infos := make([]wire.SlotInfo, 0, types.MaxSlot)
	for slot := types.MinSlot; slot <= types.MaxSlot; slot++ {
		info, err := c.QuerySlot(ctx, slot)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", slot, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Erase removes the program in slot.
func (c *Client) Erase(ctx context.Context, slot int) error {
	_, err := c.link.Request(ctx, wire.OpEraseSlot, wire.SlotCommand(uint8(slot)))
	return err
}

// Verify asks the device to fingerprint what slot now holds.
func (c *Client) Verify(ctx context.Context, slot int) (wire.VerifyResult, error) {
	reply, err := c.link.Request(ctx, wire.OpVerify, wire.SlotCommand(uint8(slot)))
	if err != nil {
		return wire.VerifyResult{}, err
	}
	return wire.DecodeVerifyResult(reply.Frame.Payload)
}

// Run starts or shows the program in slot.
func (c *Client) Run(ctx context.Context, slot int, action types.AfterAction) error {
	_, err := c.link.Request(ctx, wire.OpRunProgram, wire.RunCommand(uint8(slot), action))
	return err
}

// KVGet reads an on-device configuration value.
func (c *Client) KVGet(ctx context.Context, key string) (string, error) {
	payload, err := wire.KVKey(key)
	if err != nil {
		return "", err
	}
	reply, err := c.link.Request(ctx, wire.OpKVLoad, payload)
	if err != nil {
		return "", err
	}
	return wire.KVValue(reply.Frame.Payload), nil
}

// KVSet writes an on-device configuration value.
func (c *Client) KVSet(ctx context.Context, key, value string) error {
	payload, err := wire.KVPair(key, value)
	if err != nil {
		return err
	}
	_, err = c.link.Request(ctx, wire.OpKVSave, payload)
	return err
}
