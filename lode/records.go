package lode

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/upload"
)

// RecordKind discriminator values. Every record carries one in
// record_kind, which is also the first partition key.
const (
	RecordKindReference = "reference"
	RecordKindUpload    = "upload"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"record_kind", "slot", "day"}

// dayFormat is the layout of the day partition key.
const dayFormat = "2006-01-02"

// ReferenceRecord is the storage format for a reference image: the exact
// bytes last uploaded to a slot, keyed by fingerprint.
type ReferenceRecord struct {
	Fingerprint types.Fingerprint
	Slot        int
	Kind        types.ImageKind
	LoadAddress uint32
	Data        []byte
	RecordedAt  time.Time
}

// UploadRecord is the ledger entry written for every completed upload.
type UploadRecord struct {
	UploadID     string             `json:"upload_id"`
	Slot         int                `json:"slot"`
	Mode         types.TransferMode `json:"mode"`
	Replanned    bool               `json:"replanned"`
	Compressed   bool               `json:"compressed"`
	ImageBytes   int64              `json:"image_bytes"`
	PayloadBytes int64              `json:"payload_bytes"`
	Chunks       int64              `json:"chunks"`
	Retries      int64              `json:"retries"`
	Fingerprint  types.Fingerprint  `json:"fingerprint"`
	Reference    types.Fingerprint  `json:"reference,omitzero"`
	Duration     time.Duration      `json:"duration"`
	CompletedAt  time.Time          `json:"completed_at"`
}

func toReferenceRecordMap(slot int, img *types.ProgramImage, at time.Time) map[string]any {
	return map[string]any{
		"record_kind":  RecordKindReference,
		"slot":         strconv.Itoa(slot),
		"day":          at.UTC().Format(dayFormat),
		"fingerprint":  img.Fingerprint().String(),
		"image_kind":   string(img.Kind()),
		"load_address": int64(img.LoadAddress()),
		"size_bytes":   int64(img.Size()),
		"data":         base64.StdEncoding.EncodeToString(img.Bytes()),
		"recorded_at":  at.UTC().Format(time.RFC3339Nano),
	}
}

func toUploadRecordMap(res *upload.Result, at time.Time) map[string]any {
	record := map[string]any{
		"record_kind":   RecordKindUpload,
		"slot":          strconv.Itoa(res.Slot),
		"day":           at.UTC().Format(dayFormat),
		"upload_id":     res.UploadID,
		"mode":          string(res.Mode),
		"replanned":     res.Replanned,
		"compressed":    res.Compressed,
		"image_bytes":   int64(res.ImageBytes),
		"payload_bytes": int64(res.PayloadBytes),
		"chunks":        int64(res.Chunks),
		"retries":       int64(res.Retries),
		"fingerprint":   res.Fingerprint.String(),
		"duration_ms":   res.Duration.Milliseconds(),
		"completed_at":  at.UTC().Format(time.RFC3339Nano),
	}
	if !res.Reference.IsZero() {
		record["reference"] = res.Reference.String()
	}
	return record
}

// parseReferenceRecord decodes a stored reference map. Records whose bytes
// do not hash to their recorded fingerprint are rejected.
func parseReferenceRecord(m map[string]any) (*ReferenceRecord, error) {
	fp, err := types.ParseFingerprint(toString(m["fingerprint"]))
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(toString(m["data"]))
	if err != nil {
		return nil, fmt.Errorf("reference %s: %w", fp.Short(), err)
	}
	if types.FingerprintOf(data) != fp {
		return nil, fmt.Errorf("reference %s: stored bytes do not match fingerprint", fp.Short())
	}
	slot, _ := strconv.Atoi(toString(m["slot"]))
	recordedAt, _ := time.Parse(time.RFC3339Nano, toString(m["recorded_at"]))
	return &ReferenceRecord{
		Fingerprint: fp,
		Slot:        slot,
		Kind:        types.ImageKind(toString(m["image_kind"])),
		LoadAddress: uint32(toInt64(m["load_address"])),
		Data:        data,
		RecordedAt:  recordedAt,
	}, nil
}

func parseUploadRecord(m map[string]any) UploadRecord {
	slot, _ := strconv.Atoi(toString(m["slot"]))
	completedAt, _ := time.Parse(time.RFC3339Nano, toString(m["completed_at"]))
	rec := UploadRecord{
		UploadID:     toString(m["upload_id"]),
		Slot:         slot,
		Mode:         types.TransferMode(toString(m["mode"])),
		Replanned:    toBool(m["replanned"]),
		Compressed:   toBool(m["compressed"]),
		ImageBytes:   toInt64(m["image_bytes"]),
		PayloadBytes: toInt64(m["payload_bytes"]),
		Chunks:       toInt64(m["chunks"]),
		Retries:      toInt64(m["retries"]),
		Duration:     time.Duration(toInt64(m["duration_ms"])) * time.Millisecond,
		CompletedAt:  completedAt,
	}
	rec.Fingerprint, _ = types.ParseFingerprint(toString(m["fingerprint"]))
	if ref := toString(m["reference"]); ref != "" {
		rec.Reference, _ = types.ParseFingerprint(ref)
	}
	return rec
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 accepts the numeric types a JSON round trip can produce.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}
