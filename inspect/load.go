package inspect

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/brainlink/types"
)

// LoadImage reads an executable from disk and produces the program image to
// upload. Files with a .bin extension are already flat and are uploaded
// unchanged as a monolithic image at the user region.
func LoadImage(path string) (*types.ProgramImage, *Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read program: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".bin") {
		return FromBinary(data)
	}
	return FromELF(data)
}

// FromELF inspects and flattens an ELF executable.
func FromELF(data []byte) (*types.ProgramImage, *Layout, error) {
	layout, err := Inspect(data)
	if err != nil {
		return nil, nil, err
	}
	flat, err := Flatten(layout.Payload)
	if err != nil {
		return nil, nil, err
	}
	img := types.NewProgramImage(flat, layout.Kind, layout.LoadAddress(), layout.EntryPoint)
	return img, layout, nil
}

// FromBinary wraps a flat binary as a monolithic image.
func FromBinary(data []byte) (*types.ProgramImage, *Layout, error) {
	if len(data) == 0 {
		return nil, nil, malformed("empty binary")
	}
	if len(data) > types.MaxImageSize {
		return nil, nil, malformed("binary is %d bytes", len(data))
	}
	layout := &Layout{
		EntryPoint: UserRegion,
		Kind:       types.ImageKindMonolithic,
		Payload:    []Segment{{Address: UserRegion, MemSize: uint32(len(data)), Data: data}},
	}
	img := types.NewProgramImage(data, layout.Kind, UserRegion, UserRegion)
	return img, layout, nil
}
