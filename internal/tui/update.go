package tui

import (
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"wifirtt/internal/model"
)

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case SnapshotMsg:
		snap := msg.Snapshot
		m.snap = &snap
		m.received++
		m.lastAt = msg.At
		m.lastErr = ""
		m.networks.SetRows(networkRows(snap.Networks))
		return m, nil

	case StreamErrorMsg:
		m.received++
		m.lastAt = msg.At
		m.lastErr = msg.Err
		return m, nil

	case ClosedMsg:
		m.closed = true
		m.closeErr = msg.Err
		return m, nil
	}

	m.networks, cmd = m.networks.Update(msg)
	return m, cmd
}

func networkRows(networks []model.NetworkInfo) []table.Row {
	rows := make([]table.Row, len(networks))
	for i, n := range networks {
		rows[i] = table.Row{
			n.SSID,
			n.BSSID,
			strconv.Itoa(n.RSSI),
			strconv.Itoa(n.Channel),
			n.Band,
			strconv.Itoa(n.BandwidthMHz),
		}
	}
	return rows
}
