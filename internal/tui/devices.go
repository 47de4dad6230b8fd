// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ducker/internal/audio"
)

// DeviceListModel lets the user pick the input device the mic meter uses.
type DeviceListModel struct {
	fetch         func() ([]audio.Device, error)
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error

	chosen    int
	hasChosen bool
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

var (
	upKey     = key.NewBinding(key.WithKeys("up", "k"))
	downKey   = key.NewBinding(key.WithKeys("down", "j"))
	selectKey = key.NewBinding(key.WithKeys("enter"))
)

// NewDeviceListModel creates a picker listing the devices fetch returns.
// Only devices with input channels are listed.
func NewDeviceListModel(fetch func() ([]audio.Device, error)) DeviceListModel {
	return DeviceListModel{fetch: fetch}
}

// Init fetches the device list.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		inputs := devices[:0:0]
		for _, d := range devices {
			if d.MaxInputChannels > 0 {
				inputs = append(inputs, d)
			}
		}
		return devicesMsg{inputs}
	}
}

// Update handles input and updates the model.
func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.viewport.SetContent(m.renderDevices())

	case devicesMsg:
		m.devices = msg.devices
		m.viewport.SetContent(m.renderDevices())

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, upKey):
			if m.selectedIndex > 0 {
				m.selectedIndex--
				m.viewport.SetContent(m.renderDevices())
			}

		case key.Matches(msg, downKey):
			if m.selectedIndex < len(m.devices)-1 {
				m.selectedIndex++
				m.viewport.SetContent(m.renderDevices())
			}

		case key.Matches(msg, selectKey):
			if len(m.devices) > 0 {
				m.chosen = m.devices[m.selectedIndex].ID
				m.hasChosen = true
				return m, tea.Quit
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// Selected returns the chosen device ID, if the user picked one.
func (m DeviceListModel) Selected() (int, bool) {
	return m.chosen, m.hasChosen
}

// View renders the UI.
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	title := titleStyle.Render("Mic Input Devices")
	help := infoStyle.Render("↑/↓: Navigate • Enter: Use as mic • q: Quit")
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		info := fmt.Sprintf("[%d] %s\n", device.ID, device.Name)
		info += fmt.Sprintf("    Input channels: %d, Default sample rate: %.0f Hz\n",
			device.MaxInputChannels, device.DefaultSampleRate)

		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

// PickInputDevice runs the picker and returns the chosen device ID.
func PickInputDevice(fetch func() ([]audio.Device, error)) (int, bool, error) {
	final, err := tea.NewProgram(NewDeviceListModel(fetch), tea.WithAltScreen()).Run()
	if err != nil {
		return 0, false, err
	}
	id, ok := final.(DeviceListModel).Selected()
	return id, ok, nil
}
