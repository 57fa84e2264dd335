package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/brainlink/adapter/redis"
	"github.com/pithecene-io/brainlink/adapter/webhook"
	"github.com/pithecene-io/brainlink/cli/config"
	"github.com/pithecene-io/brainlink/cli/project"
	"github.com/pithecene-io/brainlink/lode"
	"github.com/pithecene-io/brainlink/log"
	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/upload"
)

func ptr[T any](v T) *T { return &v }

// parseUploadFlags runs the upload flag set over args and returns what
// uploadFlagsFrom extracted.
func parseUploadFlags(t *testing.T, args ...string) (uploadFlags, error) {
	t.Helper()
	var (
		got    uploadFlags
		gotErr error
	)
	cmd := &cli.Command{
		Name:  "upload",
		Flags: UploadCommand().Flags,
		Action: func(c *cli.Context) error {
			got, gotErr = uploadFlagsFrom(c)
			return nil
		},
	}
	if err := newTestApp(cmd).Run(append([]string{"brainlink", "upload"}, args...)); err != nil {
		t.Fatalf("app.Run: %v", err)
	}
	return got, gotErr
}

func TestUploadFlagsFrom(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		wantCompress *bool
		wantAfter    string
		wantErr      string
	}{
		{name: "nothing set", args: nil},
		{name: "compress", args: []string{"--compress"}, wantCompress: ptr(true)},
		{name: "no-compress", args: []string{"--no-compress"}, wantCompress: ptr(false)},
		{name: "compress false", args: []string{"--compress=false"}, wantCompress: ptr(false)},
		{name: "no-compress false", args: []string{"--no-compress=false"}, wantCompress: ptr(true)},
		{name: "both compress flags", args: []string{"--compress", "--no-compress"}, wantErr: "mutually exclusive"},
		{name: "run", args: []string{"--run"}, wantAfter: "run"},
		{name: "no-run", args: []string{"--no-run"}, wantAfter: "none"},
		{name: "after screen", args: []string{"--after", "screen"}, wantAfter: "screen"},
		{name: "run agrees with after", args: []string{"--run", "--after", "run"}, wantAfter: "run"},
		{name: "run conflicts with after", args: []string{"--run", "--after", "screen"}, wantErr: "conflicts"},
		{name: "no-run conflicts with after", args: []string{"--no-run", "--after", "run"}, wantErr: "conflicts"},
		{name: "both run flags", args: []string{"--run", "--no-run"}, wantErr: "mutually exclusive"},
		{name: "negative patch size", args: []string{"--max-patch-size", "-1"}, wantErr: "max-patch-size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseUploadFlags(t, tt.args...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch {
			case tt.wantCompress == nil && got.Compress != nil:
				t.Errorf("Compress = %v, want unset", *got.Compress)
			case tt.wantCompress != nil && (got.Compress == nil || *got.Compress != *tt.wantCompress):
				t.Errorf("Compress = %v, want %v", got.Compress, *tt.wantCompress)
			}
			if got.After != tt.wantAfter {
				t.Errorf("After = %q, want %q", got.After, tt.wantAfter)
			}
		})
	}
}

func TestResolveUpload_Defaults(t *testing.T) {
	job, err := resolveUpload(uploadFlags{File: "build/robot-code.bin", Slot: 3}, &config.Config{}, nil)
	if err != nil {
		t.Fatalf("resolveUpload: %v", err)
	}
	want := types.SlotDescriptor{
		Index:       3,
		Name:        "robot-code",
		Description: DefaultDescription,
		Icon:        types.DefaultIcon,
		Compress:    true,
	}
	if job.Slot != want {
		t.Errorf("Slot = %+v, want %+v", job.Slot, want)
	}
	if job.After != types.AfterNone {
		t.Errorf("After = %q, want none", job.After)
	}
	if job.Policy != upload.DefaultPolicy() {
		t.Errorf("Policy = %+v, want default", job.Policy)
	}
	if job.File != "build/robot-code.bin" {
		t.Errorf("File = %q", job.File)
	}
}

func TestResolveUpload_Precedence(t *testing.T) {
	manifest := &project.Manifest{
		Name:        "from-manifest",
		Description: "manifest description",
		Slot:        ptr(1),
		Icon:        ptr(types.Icon("pizza")),
		Compress:    ptr(false),
		Strategy:    ptr(types.StrategyMonolith),
	}
	cfg := &config.Config{
		Slot:         2,
		Name:         "from-config",
		Icon:         "alien",
		After:        "screen",
		Strategy:     "differential",
		MaxPatchSize: 4096,
	}
	flags := uploadFlags{File: "a.bin", Slot: 5, Name: "from-flag", Compress: ptr(true), MaxPatchSize: 1024}

	tests := []struct {
		name  string
		flags uploadFlags
		cfg   *config.Config
		check func(t *testing.T, s uploadJob)
	}{
		{
			name: "flags win", flags: flags, cfg: cfg,
			check: func(t *testing.T, s uploadJob) {
				if s.Slot.Index != 5 || s.Slot.Name != "from-flag" || !s.Slot.Compress || s.Policy.MaxPatchSize != 1024 {
					t.Errorf("flags did not win: %+v %+v", s.Slot, s.Policy)
				}
				if s.Slot.Icon != "alien" || s.After != types.AfterScreen {
					t.Errorf("unset flags should fall back to config: icon=%s after=%s", s.Slot.Icon, s.After)
				}
			},
		},
		{
			name: "config over manifest", flags: uploadFlags{File: "a.bin"}, cfg: cfg,
			check: func(t *testing.T, s uploadJob) {
				if s.Slot.Index != 2 || s.Slot.Name != "from-config" || s.Slot.Icon != "alien" {
					t.Errorf("config did not win: %+v", s.Slot)
				}
				if s.Policy.Strategy != types.StrategyDifferential || s.Policy.MaxPatchSize != 4096 {
					t.Errorf("policy = %+v", s.Policy)
				}
				if s.Slot.Description != "manifest description" || s.Slot.Compress {
					t.Errorf("unset config keys should fall back to manifest: %+v", s.Slot)
				}
			},
		},
		{
			name: "manifest only", flags: uploadFlags{File: "a.bin"}, cfg: &config.Config{},
			check: func(t *testing.T, s uploadJob) {
				if s.Slot.Index != 1 || s.Slot.Name != "from-manifest" || s.Slot.Icon != "pizza" || s.Slot.Compress {
					t.Errorf("manifest not applied: %+v", s.Slot)
				}
				if s.Policy.Strategy != types.StrategyMonolith {
					t.Errorf("Strategy = %s, want monolith", s.Policy.Strategy)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := resolveUpload(tt.flags, tt.cfg, manifest)
			if err != nil {
				t.Fatalf("resolveUpload: %v", err)
			}
			tt.check(t, job)
		})
	}
}

func TestResolveUpload_ManifestArtifact(t *testing.T) {
	dir := t.TempDir()
	artifactDir := filepath.Join(dir, "target", project.TargetTriple, "release")
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		t.Fatal(err)
	}
	artifact := filepath.Join(artifactDir, "robot.bin")
	if err := os.WriteFile(artifact, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	m := &project.Manifest{Path: filepath.Join(dir, project.ManifestName), Name: "robot", Slot: ptr(4)}

	job, err := resolveUpload(uploadFlags{}, &config.Config{}, m)
	if err != nil {
		t.Fatalf("resolveUpload: %v", err)
	}
	if job.File != artifact {
		t.Errorf("File = %q, want %q", job.File, artifact)
	}
}

func TestResolveUpload_Errors(t *testing.T) {
	tests := []struct {
		name    string
		flags   uploadFlags
		cfg     *config.Config
		wantErr string
	}{
		{"no file no manifest", uploadFlags{Slot: 1}, &config.Config{}, "no --file"},
		{"no slot", uploadFlags{File: "a.bin"}, &config.Config{}, "no slot"},
		{"slot out of range", uploadFlags{File: "a.bin", Slot: 9}, &config.Config{}, "slot out of range"},
		{"bad icon", uploadFlags{File: "a.bin", Slot: 1, Icon: "dragon"}, &config.Config{}, "not a valid icon"},
		{"bad after", uploadFlags{File: "a.bin", Slot: 1, After: "reboot"}, &config.Config{}, "reboot"},
		{"bad strategy", uploadFlags{File: "a.bin", Slot: 1}, &config.Config{Strategy: "fast"}, "not a valid upload strategy"},
		{"name too long", uploadFlags{File: "a.bin", Slot: 1, Name: strings.Repeat("x", types.MaxNameLen+1)}, &config.Config{}, "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveUpload(tt.flags, tt.cfg, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestProgramName_Truncates(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"short", "/tmp/auton.elf", "auton"},
		{"ascii", "/tmp/" + strings.Repeat("a", 40) + ".elf", strings.Repeat("a", types.MaxNameLen)},
		// 11 two-byte runes fill 22 bytes; the 12th would straddle the limit.
		{"multibyte", "/tmp/" + strings.Repeat("é", 12) + ".elf", strings.Repeat("é", 11)},
		{"cjk", "/tmp/" + strings.Repeat("機", 9) + ".bin", strings.Repeat("機", 7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := programName(tt.path)
			if got != tt.want {
				t.Errorf("programName = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("programName %q is not valid UTF-8", got)
			}
			slot := types.SlotDescriptor{Index: 1, Name: got}
			if err := slot.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	report := progressPrinter(&buf, types.SlotDescriptor{Index: 2, Name: "auton"})

	report(upload.Progress{State: upload.StateQuerying})
	report(upload.Progress{State: upload.StateTransferring, Mode: types.TransferFull, TotalBytes: 100})
	report(upload.Progress{State: upload.StateTransferring, BytesSent: 50, TotalBytes: 100})
	report(upload.Progress{State: upload.StateDone})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"querying",
		"transferring: sending 100 bytes (full)",
		`done: slot 2 "auton"`,
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestBuildAdapter(t *testing.T) {
	if a, err := buildAdapter(config.AdapterConfig{}); a != nil || err != nil {
		t.Errorf("empty config = (%v, %v), want (nil, nil)", a, err)
	}

	a, err := buildAdapter(config.AdapterConfig{Type: "redis", URL: "redis://localhost:6379"})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	if _, ok := a.(*redis.Adapter); !ok {
		t.Errorf("redis adapter type = %T", a)
	}
	_ = a.Close()

	a, err = buildAdapter(config.AdapterConfig{Type: "webhook", URL: "http://localhost/hook", Retries: ptr(0)})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if _, ok := a.(*webhook.Adapter); !ok {
		t.Errorf("webhook adapter type = %T", a)
	}

	if _, err := buildAdapter(config.AdapterConfig{Type: "kafka", URL: "x"}); err == nil {
		t.Error("unknown adapter type should fail")
	}
	if _, err := buildAdapter(config.AdapterConfig{Type: "webhook"}); err == nil {
		t.Error("webhook without URL should fail")
	}
}

func TestOpenStore_Unavailable(t *testing.T) {
	logger := log.Nop()
	store := openStore(t.Context(), config.StorageConfig{Backend: "fs"}, logger, nil)
	if store != nil {
		t.Error("fs backend without a path should yield no store")
	}
	store = openStore(t.Context(), config.StorageConfig{Backend: lode.BackendMemory}, logger, nil)
	if store == nil {
		t.Error("memory backend should open")
	}
}

func TestUploadAction_UsageErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"tui and ipc", []string{"--tui", "--ipc", "--file", "a.bin", "--slot", "1"}, "mutually exclusive"},
		{"missing config", []string{"--config", "/nonexistent/brainlink.yaml", "--file", "a.bin", "--slot", "1"}, "config file not found"},
		{"bad slot", []string{"--file", "a.bin", "--slot", "12"}, "slot out of range"},
		{"bad format", []string{"--file", "a.bin", "--slot", "1", "--format", "xml"}, "invalid format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestApp(UploadCommand()).Run(append([]string{"brainlink", "upload"}, tt.args...))
			if code := exitCodeOf(err); code != ExitUsage {
				t.Fatalf("exit code = %d, want %d (err %v)", code, ExitUsage, err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestUploadAction_MalformedImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.elf")
	if err := os.WriteFile(path, []byte("definitely not an ELF"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := newTestApp(UploadCommand()).Run([]string{"brainlink", "upload",
		"--file", path, "--slot", "1", "--format", "json",
	})
	if code := exitCodeOf(err); code != ExitMalformed {
		t.Fatalf("exit code = %d, want %d (err %v)", code, ExitMalformed, err)
	}
}
