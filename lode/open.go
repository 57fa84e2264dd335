package lode

import (
	"context"
	"fmt"

	"github.com/justapithecus/lode/lode"
)

// Storage backends accepted by Open.
const (
	BackendNone = ""
	// BackendOff disables the store explicitly, overriding the fs default
	// the CLI applies to an unset backend.
	BackendOff    = "none"
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Backend selects and locates a storage backend.
type Backend struct {
	// Kind is one of the Backend* constants.
	Kind string
	// Path is the root directory for fs, or "bucket/prefix" for s3.
	Path string
	// Region, Endpoint and UsePathStyle apply to s3 only.
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// Open creates a store for the given backend. BackendNone and BackendOff
// return a nil store and no error: uploads then run without references.
func Open(ctx context.Context, cfg Config, b Backend, opts ...Option) (*Store, error) {
	switch b.Kind {
	case BackendNone, BackendOff:
		return nil, nil
	case BackendMemory:
		return NewStore(cfg, lode.NewMemoryFactory(), opts...)
	case BackendFS:
		if b.Path == "" {
			return nil, fmt.Errorf("storage backend %q requires a path", b.Kind)
		}
		return NewFSStore(cfg, b.Path, opts...)
	case BackendS3:
		bucket, prefix := ParseS3Path(b.Path)
		return NewS3Store(ctx, cfg, S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       b.Region,
			Endpoint:     b.Endpoint,
			UsePathStyle: b.UsePathStyle,
		}, opts...)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want fs, s3 or memory)", b.Kind)
	}
}
