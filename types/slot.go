package types

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Slot range supported by the brain.
const (
	MinSlot = 1
	MaxSlot = 8
)

// Fixed widths of the metadata strings on the wire (including the NUL terminator).
const (
	MaxNameLen        = 23
	MaxDescriptionLen = 63
)

// SlotDescriptor identifies the program slot an upload targets and the
// metadata shown for it on the brain. It lives for a single upload.
type SlotDescriptor struct {
	Index       int    `json:"slot" yaml:"slot"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Icon        Icon   `json:"icon" yaml:"icon"`
	Compress    bool   `json:"compress" yaml:"compress"`
}

// Validate checks the slot range and the string widths.
func (s *SlotDescriptor) Validate() error {
	if s.Index < MinSlot || s.Index > MaxSlot {
		return fmt.Errorf("%w: slot %d (must be %d-%d)", ErrSlotOutOfRange, s.Index, MinSlot, MaxSlot)
	}
	if s.Name == "" {
		return fmt.Errorf("program name is required")
	}
	if len(s.Name) > MaxNameLen {
		return fmt.Errorf("program name %q exceeds %d bytes", s.Name, MaxNameLen)
	}
	if len(s.Description) > MaxDescriptionLen {
		return fmt.Errorf("program description exceeds %d bytes", MaxDescriptionLen)
	}
	return nil
}

// Truncate shortens s to at most n bytes without splitting a UTF-8
// sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Icon is a named program icon shown on the brain's program list.
type Icon string

// DefaultIcon is used when neither the CLI nor the project names an icon.
const DefaultIcon Icon = "question-mark"

var iconCodes = map[Icon]uint16{
	"vex-coding-studio":  0,
	"cool-x":             1,
	"question-mark":      2,
	"pizza":              3,
	"clawbot":            10,
	"robot":              11,
	"power-button":       12,
	"planets":            13,
	"alien":              27,
	"alien-in-ufo":       29,
	"cup-in-field":       50,
	"cup-and-ball":       51,
	"matlab":             901,
	"pros":               902,
	"robot-mesh":         903,
	"robot-mesh-cpp":     911,
	"robot-mesh-blockly": 912,
	"robot-mesh-flowol":  913,
	"robot-mesh-js":      914,
	"robot-mesh-py":      915,
	"code-file":          920,
	"vexcode-brackets":   921,
	"vexcode-blocks":     922,
	"vexcode-python":     925,
	"vexcode-cpp":        926,
}

// ParseIcon validates an icon name. Names are case-insensitive and accept
// underscores in place of dashes.
func ParseIcon(s string) (Icon, error) {
	name := Icon(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if _, ok := iconCodes[name]; !ok {
		return "", fmt.Errorf("%q is not a valid icon (valid: %s)", s, strings.Join(IconNames(), ", "))
	}
	return name, nil
}

// Code returns the device icon number. Unknown icons map to the default.
func (i Icon) Code() uint16 {
	if code, ok := iconCodes[i]; ok {
		return code
	}
	return iconCodes[DefaultIcon]
}

// IconNames returns the sorted list of valid icon names.
func IconNames() []string {
	names := make([]string, 0, len(iconCodes))
	for name := range iconCodes {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// AfterAction is what the brain does once an upload is finalized.
type AfterAction string

const (
	// AfterNone leaves the brain idle.
	AfterNone AfterAction = "none"
	// AfterRun starts the program immediately.
	AfterRun AfterAction = "run"
	// AfterScreen shows the program's screen without running it.
	AfterScreen AfterAction = "screen"
)

// ParseAfterAction parses none, run, or screen.
func ParseAfterAction(s string) (AfterAction, error) {
	switch AfterAction(strings.ToLower(s)) {
	case AfterNone, "":
		return AfterNone, nil
	case AfterRun:
		return AfterRun, nil
	case AfterScreen:
		return AfterScreen, nil
	default:
		return "", fmt.Errorf("invalid after-upload action %q (must be none, run, or screen)", s)
	}
}

// Code returns the wire code for the action.
func (a AfterAction) Code() uint8 {
	switch a {
	case AfterRun:
		return 1
	case AfterScreen:
		return 2
	default:
		return 0
	}
}
