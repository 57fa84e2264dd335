// Package lode persists reference images and the upload ledger in a Lode
// dataset.
//
// Records are JSONL, Hive-partitioned by record_kind/slot/day. A reference
// record holds the exact bytes last uploaded to a slot so a later upload can
// be sent as a patch against them. An upload record is written for every
// upload that reaches Done.
//
// Storage failures are wrapped in *StorageError; see errors.go.
package lode

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/brainlink/log"
	"github.com/pithecene-io/brainlink/metrics"
	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/upload"
)

// DefaultDataset is the dataset ID used when Config.Dataset is empty.
const DefaultDataset = "brainlink"

// Config configures a Store.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
}

// Store is a Lode-backed reference image store and upload ledger.
// It satisfies upload.References.
type Store struct {
	dataset lode.Dataset
	name    string
	logger  *log.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

var _ upload.References = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics records write outcomes in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Store) { s.metrics = c }
}

// WithClock overrides the time source used for timestamps and the day
// partition.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewDataset creates a Lode dataset with the store's layout and codec.
// The write and read paths must agree on both.
func NewDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// NewStore creates a store over a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewStore(cfg Config, factory lode.StoreFactory, opts ...Option) (*Store, error) {
	ds, err := NewDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	s := &Store{
		dataset: ds,
		name:    cfg.Dataset,
		logger:  log.Nop(),
		now:     time.Now,
	}
	if s.name == "" {
		s.name = DefaultDataset
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFSStore creates a store rooted at a local directory, creating the
// directory if needed.
func NewFSStore(cfg Config, root string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, WrapInitError(err, root)
	}
	return NewStore(cfg, lode.NewFSFactory(root), opts...)
}

// Record stores img as the reference for slot. An image whose fingerprint
// is already stored is not written again.
func (s *Store) Record(ctx context.Context, slot int, img *types.ProgramImage) error {
	existing, err := s.Lookup(ctx, img.Fingerprint())
	if err == nil && existing != nil {
		s.logger.Debug("reference already stored", map[string]any{
			"slot":        slot,
			"fingerprint": img.Fingerprint().Short(),
		})
		return nil
	}

	record := toReferenceRecordMap(slot, img, s.now())
	if err := s.write(ctx, RecordKindReference, record); err != nil {
		return err
	}
	s.logger.Info("reference recorded", map[string]any{
		"slot":        slot,
		"fingerprint": img.Fingerprint().Short(),
		"size":        img.Size(),
	})
	return nil
}

// Lookup returns the bytes of the reference image with fingerprint f, or
// nil if none is stored. Newer snapshots are searched first.
func (s *Store) Lookup(ctx context.Context, f types.Fingerprint) ([]byte, error) {
	rec, err := s.Reference(ctx, f)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Data, nil
}

// Reference returns the full reference record for f, or nil if none is
// stored. Records that fail their fingerprint check are skipped.
func (s *Store) Reference(ctx context.Context, f types.Fingerprint) (*ReferenceRecord, error) {
	want := f.String()
	var found *ReferenceRecord
	err := s.scan(ctx, RecordKindReference, 0, func(m map[string]any) bool {
		if toString(m["fingerprint"]) != want {
			return true
		}
		rec, perr := parseReferenceRecord(m)
		if perr != nil {
			s.logger.Warn("skipping unreadable reference", map[string]any{"error": perr.Error()})
			return true
		}
		found = rec
		return false
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// RecordUpload appends a completed upload to the ledger.
func (s *Store) RecordUpload(ctx context.Context, res *upload.Result) error {
	return s.write(ctx, RecordKindUpload, toUploadRecordMap(res, s.now()))
}

// Uploads returns ledger entries newest first. slot 0 means every slot;
// limit 0 means no limit.
func (s *Store) Uploads(ctx context.Context, slot, limit int) ([]UploadRecord, error) {
	var out []UploadRecord
	err := s.scan(ctx, RecordKindUpload, slot, func(m map[string]any) bool {
		out = append(out, parseUploadRecord(m))
		return limit == 0 || len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	return out, nil
}

func (s *Store) write(ctx context.Context, kind string, record map[string]any) error {
	path := s.name + "/" + kind
	if _, err := s.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		s.metrics.IncLodeWriteFailure()
		werr := WrapWriteError(err, path)
		s.logger.Error("storage write failed", map[string]any{
			"record_kind": kind,
			"error":       werr.Error(),
		})
		return werr
	}
	s.metrics.IncLodeWriteSuccess()
	return nil
}

// scan visits records of kind newest snapshot first until visit returns
// false. slot 0 matches every slot.
func (s *Store) scan(ctx context.Context, kind string, slot int, visit func(map[string]any) bool) error {
	snapshots, err := s.dataset.Snapshots(ctx)
	if err != nil {
		return WrapReadError(err, s.name+"/snapshots")
	}

	slotValue := ""
	if slot != 0 {
		slotValue = fmt.Sprint(slot)
	}

	filter := partitionFilter{"record_kind": kind, "slot": slotValue}
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !filter.matches(snap) {
			continue
		}

		data, err := s.dataset.Read(ctx, snap.ID)
		if err != nil {
			return WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", s.name, snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields decide.
		for j := len(data) - 1; j >= 0; j-- {
			record, ok := data[j].(map[string]any)
			if !ok || record["record_kind"] != kind {
				continue
			}
			if slotValue != "" && toString(record["slot"]) != slotValue {
				continue
			}
			if !visit(record) {
				return nil
			}
		}
	}
	return nil
}
