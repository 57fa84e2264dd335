// Package project reads upload defaults from the Cargo.toml of the program
// being uploaded.
//
// Recognised keys:
//
//	[package]
//	name = "drive-base"
//	description = "tank drive"
//
//	[package.metadata.v5]
//	slot = 3
//	icon = "cool-x"
//	compress = true
//	upload-strategy = "differential"
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/pithecene-io/brainlink/types"
)

// ManifestName is the file searched for by Find.
const ManifestName = "Cargo.toml"

// TargetTriple is the build target whose artifacts DefaultArtifact looks for.
const TargetTriple = "armv7a-vex-v5"

// ErrNoManifest is returned by Find when no Cargo.toml exists in the
// directory or any parent.
var ErrNoManifest = errors.New("no " + ManifestName + " found")

// Manifest is the subset of Cargo.toml brainlink uses. Optional settings
// are nil when absent.
type Manifest struct {
	// Path is the manifest file the values came from.
	Path        string
	Name        string
	Description string
	Version     string

	Slot     *int
	Icon     *types.Icon
	Compress *bool
	Strategy *types.Strategy
}

type cargoFile struct {
	Package struct {
		Name        string `toml:"name"`
		Description string `toml:"description"`
		Version     string `toml:"version"`
		Metadata    struct {
			V5 v5Metadata `toml:"v5"`
		} `toml:"metadata"`
	} `toml:"package"`
}

type v5Metadata struct {
	Slot           int    `toml:"slot"`
	Icon           string `toml:"icon"`
	Compress       bool   `toml:"compress"`
	UploadStrategy string `toml:"upload-strategy"`
}

// Find returns the path of the nearest Cargo.toml at or above dir.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(abs, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("%w in %s or any parent directory", ErrNoManifest, dir)
		}
		abs = parent
	}
}

// Load parses the manifest at path. Range checks on slot happen later,
// when the slot descriptor is validated.
func Load(path string) (*Manifest, error) {
	var raw cargoFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	m := &Manifest{
		Path:        path,
		Name:        raw.Package.Name,
		Description: raw.Package.Description,
		Version:     raw.Package.Version,
	}

	v5 := raw.Package.Metadata.V5
	key := func(name string) bool {
		return meta.IsDefined("package", "metadata", "v5", name)
	}

	if key("slot") {
		slot := v5.Slot
		m.Slot = &slot
	}
	if key("icon") {
		icon, err := types.ParseIcon(v5.Icon)
		if err != nil {
			return nil, fmt.Errorf("%s: package.metadata.v5.icon: %w", path, err)
		}
		m.Icon = &icon
	}
	if key("compress") {
		compress := v5.Compress
		m.Compress = &compress
	}
	if key("upload-strategy") {
		strategy, err := types.ParseStrategy(v5.UploadStrategy)
		if err != nil {
			return nil, fmt.Errorf("%s: package.metadata.v5.upload-strategy: %w", path, err)
		}
		m.Strategy = &strategy
	}
	return m, nil
}

// LoadNearest finds and loads the nearest manifest. A missing manifest is
// not an error: it yields nil.
func LoadNearest(dir string) (*Manifest, error) {
	path, err := Find(dir)
	if errors.Is(err, ErrNoManifest) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// DefaultArtifact returns the first existing build artifact for the
// package, preferring release over debug and .bin over ELF. It never
// builds anything.
func (m *Manifest) DefaultArtifact() (string, error) {
	if m.Name == "" {
		return "", fmt.Errorf("%s has no package name", m.Path)
	}
	root := filepath.Dir(m.Path)
	var candidates []string
	for _, profile := range []string{"release", "debug"} {
		dir := filepath.Join(root, "target", TargetTriple, profile)
		candidates = append(candidates,
			filepath.Join(dir, m.Name+".bin"),
			filepath.Join(dir, m.Name),
		)
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", fmt.Errorf("no build artifact for %q under %s; pass --file", m.Name, filepath.Join(root, "target", TargetTriple))
}
