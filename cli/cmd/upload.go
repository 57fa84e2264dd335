package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/brainlink/adapter"
	"github.com/pithecene-io/brainlink/adapter/redis"
	"github.com/pithecene-io/brainlink/adapter/webhook"
	"github.com/pithecene-io/brainlink/cli/config"
	"github.com/pithecene-io/brainlink/cli/project"
	"github.com/pithecene-io/brainlink/cli/render"
	"github.com/pithecene-io/brainlink/cli/tui"
	"github.com/pithecene-io/brainlink/device"
	"github.com/pithecene-io/brainlink/inspect"
	"github.com/pithecene-io/brainlink/iox"
	"github.com/pithecene-io/brainlink/ipc"
	"github.com/pithecene-io/brainlink/lode"
	"github.com/pithecene-io/brainlink/log"
	"github.com/pithecene-io/brainlink/metrics"
	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/upload"
)

// DefaultDescription is shown on the brain when no description is given.
const DefaultDescription = "Uploaded with brainlink"

// UploadCommand returns the upload command.
// This is the only command that writes a program to the brain.
func UploadCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "slot",
			Aliases: []string{"s"},
			Usage:   fmt.Sprintf("Program slot (%d-%d)", types.MinSlot, types.MaxSlot),
		},
		&cli.StringFlag{
			Name:  "file",
			Usage: "Executable to upload (ELF or raw binary; default: the project's build artifact)",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "Program name shown on the brain",
		},
		&cli.StringFlag{
			Name:  "description",
			Usage: "Program description shown on the brain",
		},
		&cli.StringFlag{
			Name:  "icon",
			Usage: "Program icon: " + strings.Join(types.IconNames(), ", "),
		},
		&cli.BoolFlag{
			Name:  "compress",
			Usage: "Gzip the transfer payload (default)",
		},
		&cli.BoolFlag{
			Name:  "no-compress",
			Usage: "Send the transfer payload uncompressed",
		},
		&cli.StringFlag{
			Name:  "after",
			Usage: "Action after upload: none, run, screen",
		},
		&cli.BoolFlag{
			Name:  "run",
			Usage: "Run the program after upload (same as --after run)",
		},
		&cli.BoolFlag{
			Name:  "no-run",
			Usage: "Do not run the program after upload (same as --after none)",
		},
		&cli.StringFlag{
			Name:  "strategy",
			Usage: "Upload strategy: auto, monolith, differential",
		},
		&cli.IntFlag{
			Name:  "max-patch-size",
			Usage: "Largest patch sent as a differential transfer, in bytes",
		},
		&cli.BoolFlag{
			Name:  "tui",
			Usage: "Show an interactive progress view",
		},
		&cli.BoolFlag{
			Name:  "ipc",
			Usage: "Write progress and result as length-prefixed msgpack frames on stdout",
		},
	}
	return &cli.Command{
		Name:   "upload",
		Usage:  "Upload a program to a brain slot",
		Flags:  append(append(flags, StorageFlags()...), DeviceOutputFlags()...),
		Action: uploadAction,
	}
}

// uploadFlags holds the upload flags that were explicitly set. Zero
// values mean "not given on the command line".
type uploadFlags struct {
	Slot         int
	File         string
	Name         string
	Description  string
	Icon         string
	Compress     *bool
	After        string
	Strategy     string
	MaxPatchSize int
}

func uploadFlagsFrom(c *cli.Context) (uploadFlags, error) {
	f := uploadFlags{
		Slot:         c.Int("slot"),
		File:         c.String("file"),
		Name:         c.String("name"),
		Description:  c.String("description"),
		Icon:         c.String("icon"),
		After:        c.String("after"),
		Strategy:     c.String("strategy"),
		MaxPatchSize: c.Int("max-patch-size"),
	}

	if c.Bool("compress") && c.Bool("no-compress") {
		return f, errors.New("--compress and --no-compress are mutually exclusive")
	}
	if c.IsSet("compress") || c.IsSet("no-compress") {
		compress := !c.Bool("no-compress")
		if c.IsSet("compress") {
			compress = c.Bool("compress")
		}
		f.Compress = &compress
	}

	run, noRun := c.Bool("run"), c.Bool("no-run")
	switch {
	case run && noRun:
		return f, errors.New("--run and --no-run are mutually exclusive")
	case run:
		if f.After != "" && f.After != string(types.AfterRun) {
			return f, fmt.Errorf("--run conflicts with --after %s", f.After)
		}
		f.After = string(types.AfterRun)
	case noRun:
		if f.After != "" && f.After != string(types.AfterNone) {
			return f, fmt.Errorf("--no-run conflicts with --after %s", f.After)
		}
		f.After = string(types.AfterNone)
	}
	if f.MaxPatchSize < 0 {
		return f, fmt.Errorf("--max-patch-size must be >= 0, got %d", f.MaxPatchSize)
	}
	return f, nil
}

// uploadJob is an upload with every setting resolved.
type uploadJob struct {
	File   string
	Slot   types.SlotDescriptor
	After  types.AfterAction
	Policy upload.Policy
}

// resolveUpload merges flags, the config file and the project manifest,
// in that order of precedence, over built-in defaults. m may be nil.
func resolveUpload(f uploadFlags, cfg *config.Config, m *project.Manifest) (uploadJob, error) {
	if m == nil {
		m = &project.Manifest{}
	}
	var job uploadJob

	job.File = f.File
	if job.File == "" {
		if m.Path == "" {
			return job, errors.New("no --file given and no " + project.ManifestName + " found")
		}
		artifact, err := m.DefaultArtifact()
		if err != nil {
			return job, err
		}
		job.File = artifact
	}

	switch {
	case f.Slot != 0:
		job.Slot.Index = f.Slot
	case cfg.Slot != 0:
		job.Slot.Index = cfg.Slot
	case m.Slot != nil:
		job.Slot.Index = *m.Slot
	default:
		return job, errors.New("no slot given; pass --slot or set one in the config or project metadata")
	}

	job.Slot.Name = firstNonEmpty(f.Name, cfg.Name, m.Name, programName(job.File))
	job.Slot.Description = firstNonEmpty(f.Description, cfg.Description, m.Description, DefaultDescription)

	job.Slot.Icon = types.DefaultIcon
	if name := firstNonEmpty(f.Icon, cfg.Icon); name != "" {
		icon, err := types.ParseIcon(name)
		if err != nil {
			return job, err
		}
		job.Slot.Icon = icon
	} else if m.Icon != nil {
		job.Slot.Icon = *m.Icon
	}

	job.Slot.Compress = true
	switch {
	case f.Compress != nil:
		job.Slot.Compress = *f.Compress
	case cfg.Compress != nil:
		job.Slot.Compress = *cfg.Compress
	case m.Compress != nil:
		job.Slot.Compress = *m.Compress
	}

	after, err := types.ParseAfterAction(firstNonEmpty(f.After, cfg.After))
	if err != nil {
		return job, err
	}
	job.After = after

	job.Policy = upload.DefaultPolicy()
	if name := firstNonEmpty(f.Strategy, cfg.Strategy); name != "" {
		strategy, err := types.ParseStrategy(name)
		if err != nil {
			return job, err
		}
		job.Policy.Strategy = strategy
	} else if m.Strategy != nil {
		job.Policy.Strategy = *m.Strategy
	}
	switch {
	case f.MaxPatchSize > 0:
		job.Policy.MaxPatchSize = f.MaxPatchSize
	case cfg.MaxPatchSize > 0:
		job.Policy.MaxPatchSize = cfg.MaxPatchSize
	}

	if err := job.Slot.Validate(); err != nil {
		return job, err
	}
	return job, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// programName derives a program name from the artifact path, truncated to
// the width the brain displays.
func programName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return types.Truncate(name, types.MaxNameLen)
}

// UploadResponse is rendered after a successful upload.
type UploadResponse struct {
	File string `json:"file"`
	Name string `json:"name"`
	Port string `json:"port"`
	upload.Result
}

func uploadAction(c *cli.Context) error {
	if c.Bool("tui") && c.Bool("ipc") {
		return cli.Exit("--tui and --ipc are mutually exclusive", ExitUsage)
	}

	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer iox.DiscardErr(e.logger.Sync)

	flags, err := uploadFlagsFrom(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsage)
	}
	wd, err := os.Getwd()
	if err != nil {
		return cli.Exit(err.Error(), ExitUsage)
	}
	manifest, err := project.LoadNearest(wd)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsage)
	}
	job, err := resolveUpload(flags, e.cfg, manifest)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsage)
	}

	var r *render.Renderer
	if !c.Bool("ipc") {
		if r, err = render.NewRenderer(c); err != nil {
			return cli.Exit(err.Error(), ExitUsage)
		}
	}

	pub, err := buildAdapter(e.cfg.Adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), ExitUsage)
	}
	if pub != nil {
		defer func() { _ = pub.Close() }()
	}

	img, layout, err := inspect.LoadImage(job.File)
	if err != nil {
		return exitError(err)
	}
	fields := map[string]any{
		"file":         job.File,
		"kind":         string(img.Kind()),
		"load_address": fmt.Sprintf("0x%08x", img.LoadAddress()),
		"size":         img.Size(),
	}
	if layout != nil {
		fields["segments"] = len(layout.Payload)
		fields["base_segments"] = len(layout.Base)
	}
	e.logger.Debug("image inspected", fields)

	ctx, stop := signalContext(c.Context)
	defer stop()

	port, err := e.resolvePort(c)
	if err != nil {
		return exitError(err)
	}
	logger := e.logger.WithPort(port)
	storage := e.storageConfig(c)
	m := metrics.NewCollector(string(job.Policy.Strategy), storage.Backend, port)

	store := openStore(ctx, storage, logger, m)

	sess, err := e.dial(port, m)
	if err != nil {
		return exitError(err)
	}
	defer func() { _ = sess.Close() }()

	// A controller relays the upload over its radio, which must sit on the
	// download channel before the slot is queried.
	if err := device.NewClient(sess, device.WithLogger(logger)).SwitchToDownloadChannel(ctx); err != nil {
		return exitError(err)
	}

	opts := []upload.Option{
		upload.WithLogger(logger),
		upload.WithMetrics(m),
		upload.WithChunkSize(e.cfg.Transport.ChunkSize),
	}
	if store != nil {
		opts = append(opts, upload.WithReferences(store))
	}
	req := upload.Request{
		Image:  img,
		Slot:   job.Slot,
		After:  job.After,
		Policy: job.Policy,
	}
	run := func(ctx context.Context, report func(upload.Progress)) (*upload.Result, error) {
		return upload.New(sess, append(opts, upload.WithProgress(report))...).Upload(ctx, req)
	}

	var (
		res     *upload.Result
		emitter *ipc.Emitter
	)
	switch {
	case c.Bool("tui"):
		res, err = tui.RunUpload(ctx, job.Slot, os.Stderr, run)
	case c.Bool("ipc"):
		emitter = ipc.NewEmitter(os.Stdout, port)
		res, err = run(ctx, func(p upload.Progress) {
			if werr := emitter.Progress(job.Slot.Index, p); werr != nil {
				logger.Warn("ipc progress write failed", map[string]any{"error": werr.Error()})
			}
		})
	default:
		res, err = run(ctx, progressPrinter(os.Stderr, job.Slot))
	}

	// Bookkeeping must not be cut short by the interrupt that ended the upload.
	bg := context.WithoutCancel(ctx)
	if err == nil && store != nil {
		if lerr := store.RecordUpload(bg, res); lerr != nil {
			logger.Warn("upload ledger write failed", map[string]any{"error": lerr.Error()})
		}
	}
	if pub != nil {
		event := adapter.NewUploadCompletedEvent(job.Slot, port, res, err, time.Now())
		if perr := pub.Publish(bg, event); perr != nil {
			logger.Warn("upload event publish failed", map[string]any{"error": perr.Error()})
		}
	}
	logger.Debug("upload finished", map[string]any{"metrics": m.Snapshot()})

	if emitter != nil {
		code := ExitCode(err)
		if werr := emitter.Result(job.Slot.Index, res, err, code); werr != nil {
			logger.Warn("ipc result write failed", map[string]any{"error": werr.Error()})
		}
		if err != nil {
			return cli.Exit("", code)
		}
		return nil
	}
	if err != nil {
		return exitError(err)
	}
	return r.Render(UploadResponse{
		File:   job.File,
		Name:   job.Slot.Name,
		Port:   port,
		Result: *res,
	})
}

// progressPrinter writes one line per state change.
func progressPrinter(w io.Writer, slot types.SlotDescriptor) func(upload.Progress) {
	var last upload.State
	return func(p upload.Progress) {
		if p.State == last {
			return
		}
		last = p.State
		switch p.State {
		case upload.StateTransferring:
			fmt.Fprintf(w, "%s: sending %d bytes (%s)\n", p.State, p.TotalBytes, p.Mode)
		case upload.StateDone:
			fmt.Fprintf(w, "%s: slot %d %q\n", p.State, slot.Index, slot.Name)
		default:
			fmt.Fprintf(w, "%s\n", p.State)
		}
	}
}

// openStore opens the configured reference store. A store that cannot be
// opened is reported and the upload proceeds without references.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *log.Logger, m *metrics.Collector) *lode.Store {
	store, err := lode.Open(ctx, lode.Config{Dataset: cfg.Dataset}, storageBackend(cfg),
		lode.WithLogger(logger),
		lode.WithMetrics(m),
	)
	if err != nil {
		logger.Warn("reference store unavailable, uploading without references", map[string]any{
			"backend": cfg.Backend,
			"error":   err.Error(),
		})
		return nil
	}
	return store
}

func storageBackend(cfg config.StorageConfig) lode.Backend {
	return lode.Backend{
		Kind:         cfg.Backend,
		Path:         cfg.Path,
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		UsePathStyle: cfg.S3PathStyle,
	}
}

// buildAdapter creates the configured event adapter, or nil when none is
// configured.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "redis":
		retries := redis.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return redis.New(redis.Config{
			URL:      cfg.URL,
			Channel:  cfg.Channel,
			BoardKey: cfg.BoardKey,
			Timeout:  cfg.Timeout.Duration,
			Retries:  retries,
		})
	case "webhook":
		retries := webhook.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Secret:  cfg.Secret,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q (want redis or webhook)", cfg.Type)
	}
}
