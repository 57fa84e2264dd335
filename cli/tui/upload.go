package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/upload"
)

// ProgressMsg carries one orchestrator progress event.
type ProgressMsg upload.Progress

// DoneMsg ends the view with the upload outcome.
type DoneMsg struct {
	Result *upload.Result
	Err    error
}

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "cancel"),
	),
}

// UploadModel is a Bubble Tea model for one upload.
type UploadModel struct {
	slot   types.SlotDescriptor
	bar    progress.Model
	cancel func()

	last      upload.Progress
	result    *upload.Result
	err       error
	canceling bool
	done      bool
}

// NewUploadModel creates a model for an upload of slot. cancel is called
// when the user quits before the upload finishes.
func NewUploadModel(slot types.SlotDescriptor, cancel func()) UploadModel {
	return UploadModel{
		slot:   slot,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		cancel: cancel,
		last:   upload.Progress{State: upload.StateIdle},
	}
}

// Init implements tea.Model.
func (m UploadModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m UploadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		width := msg.Width - 4
		if width > 60 {
			width = 60
		}
		if width > 10 {
			m.bar.Width = width
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) && !m.done && !m.canceling {
			m.canceling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case ProgressMsg:
		m.last = upload.Progress(msg)
		return m, nil

	case DoneMsg:
		m.result = msg.Result
		m.err = msg.Err
		m.done = true
		if msg.Err == nil {
			m.last.State = upload.StateDone
			m.last.BytesSent = m.last.TotalBytes
		} else {
			m.last.State = upload.StateFailed
		}
		return m, tea.Quit
	}

	return m, nil
}

// Percent is the acknowledged fraction of the payload.
func (m UploadModel) Percent() float64 {
	if m.last.TotalBytes <= 0 {
		return 0
	}
	return float64(m.last.BytesSent) / float64(m.last.TotalBytes)
}

// View implements tea.Model.
func (m UploadModel) View() string {
	var b strings.Builder

	title := fmt.Sprintf("Uploading %q to slot %d", m.slot.Name, m.slot.Index)
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")

	state := string(m.last.State)
	if m.canceling && !m.done {
		state = "canceling"
	}
	b.WriteString(row("State", StateStyle(state).Render(state)))
	if m.last.Mode != "" {
		b.WriteString(row("Mode", string(m.last.Mode)))
	}
	b.WriteString(row("Sent", fmt.Sprintf("%d / %d bytes", m.last.BytesSent, m.last.TotalBytes)))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.Percent()))
	b.WriteString("\n")

	switch {
	case m.done && m.err != nil:
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	case m.done && m.result != nil:
		b.WriteString("\n")
		b.WriteString(SuccessStyle.Render(fmt.Sprintf("Done in %s (%s, %d chunks, %d retries)",
			m.result.Duration.Round(time.Millisecond), m.result.Mode, m.result.Chunks, m.result.Retries)))
		b.WriteString("\n")
	default:
		b.WriteString(HelpStyle.Render("Press q or Ctrl+C to cancel"))
		b.WriteString("\n")
	}
	return b.String()
}

func row(label, value string) string {
	return LabelStyle.Render(label+":") + ValueStyle.Render(value) + "\n"
}
