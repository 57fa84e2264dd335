package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/brainlink/cli/render"
	"github.com/pithecene-io/brainlink/device"
	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/wire"
)

// SlotRow is one line of the slots listing.
type SlotRow struct {
	Slot        int             `json:"slot"`
	Occupied    bool            `json:"occupied"`
	Kind        types.ImageKind `json:"kind,omitempty"`
	Size        uint32          `json:"size"`
	Fingerprint string          `json:"fingerprint,omitempty"`
}

func slotRows(infos []wire.SlotInfo) []SlotRow {
	rows := make([]SlotRow, 0, len(infos))
	for _, info := range infos {
		row := SlotRow{Slot: int(info.Slot), Occupied: info.Occupied}
		if info.Occupied {
			row.Kind = info.Kind
			row.Size = info.Size
			row.Fingerprint = info.Fingerprint.String()
		}
		rows = append(rows, row)
	}
	return rows
}

// SlotsCommand returns the slots command.
// Slots queries the brain fresh on every call; nothing is cached.
func SlotsCommand() *cli.Command {
	return &cli.Command{
		Name:   "slots",
		Usage:  "List program slots on the brain",
		Flags:  DeviceOutputFlags(),
		Action: slotsAction,
	}
}

func slotsAction(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, r *render.Renderer, client *device.Client) error {
		infos, err := client.Slots(ctx)
		if err != nil {
			return err
		}
		return r.Render(slotRows(infos))
	})
}

// EraseResponse is rendered after rm.
type EraseResponse struct {
	Slot   int  `json:"slot"`
	Erased bool `json:"erased"`
}

// RemoveCommand returns the rm command.
func RemoveCommand() *cli.Command {
	return &cli.Command{
		Name:  "rm",
		Usage: "Erase the program in a slot",
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:     "slot",
				Aliases:  []string{"s"},
				Usage:    fmt.Sprintf("Program slot (%d-%d)", types.MinSlot, types.MaxSlot),
				Required: true,
			},
		}, DeviceOutputFlags()...),
		Action: removeAction,
	}
}

func removeAction(c *cli.Context) error {
	slot := c.Int("slot")
	if slot < types.MinSlot || slot > types.MaxSlot {
		return cli.Exit(fmt.Sprintf("slot %d out of range %d..%d", slot, types.MinSlot, types.MaxSlot), ExitUsage)
	}
	return withClient(c, func(ctx context.Context, r *render.Renderer, client *device.Client) error {
		if err := client.Erase(ctx, slot); err != nil {
			return err
		}
		return r.Render(EraseResponse{Slot: slot, Erased: true})
	})
}
