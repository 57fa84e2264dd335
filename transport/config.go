package transport

import "time"

// Defaults for Config.
const (
	DefaultBaudRate       = 115200
	DefaultRequestTimeout = 2 * time.Second
	DefaultAttempts       = 3
	DefaultStreamBuffer   = 256
)

// Config bounds request/response exchanges on a session.
type Config struct {
	// BaudRate of the serial port.
	BaudRate int
	// RequestTimeout bounds a single attempt.
	RequestTimeout time.Duration
	// Attempts is the total number of tries per request, including the first.
	Attempts int
	// RetryDelay is a fixed pause between attempts. Zero retries immediately.
	RetryDelay time.Duration
	// StreamBuffer is the capacity of the unsolicited frame channel.
	StreamBuffer int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		BaudRate:       DefaultBaudRate,
		RequestTimeout: DefaultRequestTimeout,
		Attempts:       DefaultAttempts,
		StreamBuffer:   DefaultStreamBuffer,
	}
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaudRate <= 0 {
		c.BaudRate = d.BaudRate
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.Attempts <= 0 {
		c.Attempts = d.Attempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = d.StreamBuffer
	}
	return c
}
