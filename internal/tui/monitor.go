// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"ducker/internal/ducking"
)

const (
	meterWidth     = 40
	defaultRefresh = 50 * time.Millisecond
)

// StatusSource provides the status to display.
type StatusSource interface {
	Latest() ducking.Status
}

// MuteController mutes and unmutes the mic.
type MuteController interface {
	ToggleMute(src ducking.Input) (bool, error)
	SourceMuted(src ducking.Input) bool
}

type monitorKeys struct {
	Mute   key.Binding
	Reload key.Binding
	Quit   key.Binding
}

var keys = monitorKeys{
	Mute:   key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute mic")),
	Reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload profile")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// ReloadFunc reloads the ducking profile and returns its gate threshold.
type ReloadFunc func() (float64, error)

type refreshMsg time.Time

// MonitorModel is the Bubble Tea model for the live ducker monitor.
type MonitorModel struct {
	source    StatusSource
	mute      MuteController
	reload    ReloadFunc
	refresh   time.Duration
	threshold float64

	status  ducking.Status
	muted   bool
	notice  string
	noticeE bool
	width   int
}

// NewMonitorModel creates a monitor. reload may be nil, in which case the
// reload key is disabled.
func NewMonitorModel(source StatusSource, mute MuteController, reload ReloadFunc, threshold float64) MonitorModel {
	m := MonitorModel{
		source:    source,
		mute:      mute,
		reload:    reload,
		refresh:   defaultRefresh,
		threshold: threshold,
		width:     80,
	}
	m.status = source.Latest()
	if mute != nil {
		m.muted = mute.SourceMuted(ducking.InputMic)
	}
	return m
}

func (m MonitorModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

// Init starts the refresh loop.
func (m MonitorModel) Init() tea.Cmd {
	return m.tick()
}

// Update handles refreshes and key presses.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case refreshMsg:
		m.status = m.source.Latest()
		if m.mute != nil {
			m.muted = m.mute.SourceMuted(ducking.InputMic)
		}
		return m, m.tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Mute):
			if m.mute == nil {
				break
			}
			muted, err := m.mute.ToggleMute(ducking.InputMic)
			if err != nil {
				m.setNotice(fmt.Sprintf("mute failed: %v", err), true)
				break
			}
			m.muted = muted
			if muted {
				m.setNotice("mic muted", false)
			} else {
				m.setNotice("mic live", false)
			}

		case key.Matches(msg, keys.Reload):
			if m.reload == nil {
				m.setNotice("no profile file to reload", true)
				break
			}
			threshold, err := m.reload()
			if err != nil {
				m.setNotice(fmt.Sprintf("reload failed: %v", err), true)
				break
			}
			m.threshold = threshold
			m.setNotice("profile reloaded", false)
		}
	}
	return m, nil
}

func (m *MonitorModel) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeE = isErr
}

// View renders the monitor.
func (m MonitorModel) View() string {
	s := m.status
	width := min(meterWidth, max(m.width-24, 10))
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Ducker"))
	sb.WriteString("\n\n")

	if !s.Enabled {
		sb.WriteString(dimStyle.Render("ducking disabled"))
		sb.WriteString("\n\n")
	}

	phase := infoStyle.Render(s.Phase.String())
	if s.Phase != ducking.PhaseIdle {
		phase = highlightStyle.Render(s.Phase.String())
	}
	fmt.Fprintf(&sb, "Phase:   %s\n", phase)
	fmt.Fprintf(&sb, "Volume:  %s %3d%%\n", bar(float64(s.Volume), 0, 100, width, -1), s.Volume)
	fmt.Fprintf(&sb, "Mic:     %s %6.1f dB\n", bar(s.RawDB, ducking.FloorDB, 0, width, m.threshold), s.RawDB)
	fmt.Fprintf(&sb, "Gate:    %s %6.1f dB\n", bar(s.GatedDB, ducking.FloorDB, 0, width, m.threshold), s.GatedDB)
	fmt.Fprintf(&sb, "Steps:   duck %d, unduck %d\n", s.DuckStep, s.UnduckStep)

	reasons := "none"
	if len(s.Reasons) > 0 {
		reasons = strings.Join(s.Reasons, ", ")
	}
	fmt.Fprintf(&sb, "Reasons: %s\n", reasons)

	if m.muted {
		sb.WriteString(warnStyle.Render("MIC MUTED"))
		sb.WriteString("\n")
	}

	if m.notice != "" {
		sb.WriteString("\n")
		if m.noticeE {
			sb.WriteString(warnStyle.Render(m.notice))
		} else {
			sb.WriteString(dimStyle.Render(m.notice))
		}
		sb.WriteString("\n")
	}

	help := []string{keys.Mute.Help().Key + ": " + keys.Mute.Help().Desc}
	if m.reload != nil {
		help = append(help, keys.Reload.Help().Key+": "+keys.Reload.Help().Desc)
	}
	help = append(help, keys.Quit.Help().Key+": "+keys.Quit.Help().Desc)
	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render(strings.Join(help, " • ")))

	return sb.String()
}

// bar draws v on a lo..hi scale. A marker position outside the scale is
// not drawn.
func bar(v, lo, hi float64, width int, marker float64) string {
	pos := func(x float64) int {
		if x <= lo {
			return 0
		}
		if x >= hi {
			return width
		}
		return int((x - lo) / (hi - lo) * float64(width))
	}

	filled := pos(v)
	mark := -1
	if marker > lo && marker < hi {
		mark = min(pos(marker), width-1)
	}

	cells := make([]rune, width)
	for i := range cells {
		switch {
		case i == mark:
			cells[i] = '|'
		case i < filled:
			cells[i] = '█'
		default:
			cells[i] = '·'
		}
	}
	return "[" + string(cells) + "]"
}

// RunMonitor runs the monitor until the user quits or ctx is cancelled.
func RunMonitor(ctx context.Context, model MonitorModel) error {
	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
