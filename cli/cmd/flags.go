// Package cmd provides CLI commands for the brainlink binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// PortFlag names the serial port. Without it the single attached
	// brain is detected.
	PortFlag = &cli.StringFlag{
		Name:    "port",
		Aliases: []string{"p"},
		Usage:   "Serial port of the brain (default: auto-detect)",
		EnvVars: []string{"BRAINLINK_PORT"},
	}

	// ConfigFlag points at a brainlink.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: ./brainlink.yaml if present)",
		EnvVars: []string{"BRAINLINK_CONFIG"},
	}

	// StorageBackendFlag overrides storage.backend from the config file.
	StorageBackendFlag = &cli.StringFlag{
		Name:  "storage-backend",
		Usage: "Reference store backend: fs, s3, memory or none (default: from config, else fs in the user cache directory)",
	}

	// StoragePathFlag overrides storage.path from the config file.
	StoragePathFlag = &cli.StringFlag{
		Name:  "storage-path",
		Usage: "Reference store location (fs: directory, s3: bucket/prefix)",
	}

	// VerboseFlag enables debug logging on stderr.
	VerboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable debug logging",
	}
)

// OutputFlags returns the flags for commands that render results.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// DeviceFlags returns the flags for commands that talk to a brain.
func DeviceFlags() []cli.Flag {
	return []cli.Flag{
		PortFlag,
		ConfigFlag,
		VerboseFlag,
	}
}

// StorageFlags returns the flags that override the storage config.
func StorageFlags() []cli.Flag {
	return []cli.Flag{
		StorageBackendFlag,
		StoragePathFlag,
	}
}

// DeviceOutputFlags returns DeviceFlags followed by OutputFlags.
func DeviceOutputFlags() []cli.Flag {
	return append(DeviceFlags(), OutputFlags()...)
}
