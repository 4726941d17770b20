package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wifirtt/internal/model"
)

// SnapshotMsg carries one snapshot frame from the viewer stream.
type SnapshotMsg struct {
	Snapshot model.Snapshot
	At       time.Time
}

// StreamErrorMsg carries an error frame sent by the server in place of a
// snapshot. The stream stays open.
type StreamErrorMsg struct {
	Err string
	At  time.Time
}

// ClosedMsg reports that the stream ended; Err is nil on a clean close.
type ClosedMsg struct {
	Err error
}

// WatchModel renders the live stream: radios, gateway latency and neighbors.
type WatchModel struct {
	endpoint string

	snap     *model.Snapshot
	received int
	lastAt   time.Time
	lastErr  string
	closed   bool
	closeErr error

	networks table.Model
}

func NewWatchModel(endpoint string) WatchModel {
	columns := []table.Column{
		{Title: "SSID", Width: 24},
		{Title: "BSSID", Width: 18},
		{Title: "RSSI", Width: 6},
		{Title: "Ch", Width: 4},
		{Title: "Band", Width: 7},
		{Title: "MHz", Width: 5},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return WatchModel{
		endpoint: endpoint,
		networks: t,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return nil
}
