package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/brainlink/cli/render"
	"github.com/pithecene-io/brainlink/lode"
	"github.com/pithecene-io/brainlink/metrics"
	"github.com/pithecene-io/brainlink/types"
)

// historyWarningThreshold is the number of rows above which we suggest --limit.
const historyWarningThreshold = 100

// HistoryCommand returns the history command.
// It reads the upload ledger and never contacts the brain.
func HistoryCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "slot",
			Aliases: []string{"s"},
			Usage:   "Only show uploads to this slot (0 = all)",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of uploads to return (0 = no limit)",
			Value: 20,
		},
		ConfigFlag,
		VerboseFlag,
	}
	flags = append(flags, StorageFlags()...)
	return &cli.Command{
		Name:   "history",
		Usage:  "List completed uploads from the ledger",
		Flags:  append(flags, OutputFlags()...),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	slot, limit := c.Int("slot"), c.Int("limit")
	if slot != 0 && (slot < types.MinSlot || slot > types.MaxSlot) {
		return cli.Exit(fmt.Sprintf("slot %d out of range %d..%d", slot, types.MinSlot, types.MaxSlot), ExitUsage)
	}
	if limit < 0 {
		return cli.Exit("--limit must be >= 0", ExitUsage)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsage)
	}
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	storage := e.storageConfig(c)
	if storage.Backend == lode.BackendOff {
		return cli.Exit("storage is disabled; set storage.backend in the config or pass --storage-backend", ExitUsage)
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	m := metrics.NewCollector("", storage.Backend, "")
	store, err := lode.Open(ctx, lode.Config{Dataset: storage.Dataset}, storageBackend(storage),
		lode.WithLogger(e.logger),
		lode.WithMetrics(m),
	)
	if err != nil {
		return exitError(err)
	}

	records, err := store.Uploads(ctx, slot, limit)
	if err != nil {
		return exitError(err)
	}
	if records == nil {
		records = []lode.UploadRecord{}
	}
	if len(records) > historyWarningThreshold && limit == 0 && render.IsTerminal(os.Stderr) {
		fmt.Fprintf(os.Stderr, "Warning: returning %d uploads. Consider using --limit to reduce output.\n\n", len(records))
	}
	return r.Render(records)
}
