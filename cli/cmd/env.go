package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/brainlink/cli/config"
	"github.com/pithecene-io/brainlink/lode"
	"github.com/pithecene-io/brainlink/log"
	"github.com/pithecene-io/brainlink/metrics"
	"github.com/pithecene-io/brainlink/transport"
)

// env is the per-invocation state shared by device commands.
type env struct {
	cfg    *config.Config
	logger *log.Logger
}

// loadEnv reads --config (or ./brainlink.yaml) and builds the logger.
// Config errors are usage errors.
func loadEnv(c *cli.Context) (*env, error) {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitUsage)
	}
	return &env{
		cfg:    cfg,
		logger: log.NewLogger(c.Bool("verbose")),
	}, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("cannot determine working directory: %w", err)
	}
	return config.LoadDefault(wd)
}

// transportConfig overlays the config file's transport section on the
// defaults.
func (e *env) transportConfig() transport.Config {
	return e.cfg.Transport.Apply(transport.DefaultConfig())
}

// userCacheDir is swapped in tests.
var userCacheDir = os.UserCacheDir

// defaultStoragePath is the fs store used when nothing else is configured.
func defaultStoragePath() (string, error) {
	dir, err := userCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "brainlink"), nil
}

// storageConfig overlays --storage-backend and --storage-path on the
// config file's storage section. An unset backend is fs, and fs without a
// path lives in the user cache directory, so references survive between
// uploads out of the box. "none" turns the store off.
func (e *env) storageConfig(c *cli.Context) config.StorageConfig {
	storage := e.cfg.Storage
	if b := c.String("storage-backend"); b != "" {
		storage.Backend = b
	}
	if p := c.String("storage-path"); p != "" {
		storage.Path = p
	}
	if storage.Backend == lode.BackendNone {
		storage.Backend = lode.BackendFS
	}
	if storage.Backend == lode.BackendFS && storage.Path == "" {
		dir, err := defaultStoragePath()
		if err != nil {
			e.logger.Warn("no user cache directory, uploading without references", map[string]any{
				"error": err.Error(),
			})
			storage.Backend = lode.BackendOff
			return storage
		}
		storage.Path = dir
	}
	return storage
}

// resolvePort returns --port, then the config file's port, then the single
// detected brain.
func (e *env) resolvePort(c *cli.Context) (string, error) {
	if p := c.String("port"); p != "" {
		return p, nil
	}
	if e.cfg.Port != "" {
		return e.cfg.Port, nil
	}
	return transport.FindBrainPort()
}

// dial claims port and starts a session on it. The caller closes the
// session.
func (e *env) dial(port string, m *metrics.Collector) (*transport.Session, error) {
	logger := e.logger.WithPort(port)
	cfg := e.transportConfig()
	sess, err := transport.Open(port, cfg,
		transport.WithLogger(logger),
		transport.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	logger.Sugar().Debugf("opened %s at %d baud", port, cfg.BaudRate)
	return sess, nil
}

// open resolves the port and dials it.
func (e *env) open(c *cli.Context, m *metrics.Collector) (*transport.Session, string, error) {
	port, err := e.resolvePort(c)
	if err != nil {
		return nil, "", err
	}
	sess, err := e.dial(port, m)
	return sess, port, err
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
