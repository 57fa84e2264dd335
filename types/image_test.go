package types //nolint:revive // types is a valid package name

import (
	"testing"
)

func TestFingerprint_PureFunctionOfBytes(t *testing.T) {
	a := FingerprintOf([]byte("program"))
	b := FingerprintOf([]byte("program"))
	c := FingerprintOf([]byte("program2"))

	if a != b {
		t.Error("same bytes produced different fingerprints")
	}
	if a == c {
		t.Error("different bytes produced the same fingerprint")
	}
}

func TestFingerprint_TextRoundTrip(t *testing.T) {
	f := FingerprintOf([]byte{1, 2, 3})
	text, err := f.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var parsed Fingerprint
	if err := parsed.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if parsed != f {
		t.Errorf("parsed = %s, want %s", parsed, f)
	}
	if len(f.Short()) != 12 {
		t.Errorf("Short() length = %d, want 12", len(f.Short()))
	}
}

func TestParseFingerprint_Invalid(t *testing.T) {
	for _, in := range []string{"zz", "abcd", ""} {
		if _, err := ParseFingerprint(in); err == nil {
			t.Errorf("ParseFingerprint(%q): expected error", in)
		}
	}
}

func TestNewProgramImage_CopiesInput(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	img := NewProgramImage(data, ImageKindMonolithic, 0x03800000, 0x03800000)
	data[0] = 9

	if img.Bytes()[0] != 1 {
		t.Error("image shares the caller's buffer")
	}
	if img.Fingerprint() != FingerprintOf([]byte{1, 2, 3, 4}) {
		t.Error("fingerprint does not match original bytes")
	}
	if img.Size() != 4 {
		t.Errorf("Size() = %d, want 4", img.Size())
	}
}

func TestImageKind_CodeRoundTrip(t *testing.T) {
	for _, k := range []ImageKind{ImageKindMonolithic, ImageKindHotPatch} {
		if got := ImageKindFromCode(k.Code()); got != k {
			t.Errorf("ImageKindFromCode(%d) = %q, want %q", k.Code(), got, k)
		}
	}
}
