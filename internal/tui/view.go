package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"wifirtt/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87")).
			Bold(true)
)

func (m WatchModel) View() string {
	title := titleStyle.Render("wifirtt - " + m.endpoint)

	status := fmt.Sprintf("Frames: %d", m.received)
	if !m.lastAt.IsZero() {
		status += "  Last: " + m.lastAt.Format("15:04:05")
	}
	if m.closed {
		status += "  [stream closed]"
		if m.closeErr != nil {
			status += " " + m.closeErr.Error()
		}
	}

	if m.snap == nil {
		body := title + "\n" + status + "\n"
		if m.lastErr != "" {
			body += errorStyle.Render("error: "+m.lastErr) + "\n"
		} else {
			body += "Waiting for first snapshot...\n"
		}
		return body + "\nPress q to quit."
	}

	linkBox := infoStyle.Render(connectionPanel(*m.snap))
	gwBox := infoStyle.Render(gatewayPanel(m.snap.GatewayRTT))
	arpBox := infoStyle.Render(arpPanel(m.snap.ArpTable))
	netBox := infoStyle.Render(fmt.Sprintf("Networks (%d)\n", len(m.snap.Networks)) + m.networks.View())

	row1 := lipgloss.JoinHorizontal(lipgloss.Top, linkBox, gwBox, arpBox)
	parts := []string{title, status}
	if m.lastErr != "" {
		parts = append(parts, errorStyle.Render("error: "+m.lastErr))
	}
	parts = append(parts, row1, netBox)
	body := lipgloss.JoinVertical(lipgloss.Left, parts...)

	return body + "\nPress q to quit."
}

func connectionPanel(s model.Snapshot) string {
	lines := []string{"Connection"}
	if s.ConnectedSSID != nil {
		lines = append(lines, "SSID: "+*s.ConnectedSSID)
	} else {
		lines = append(lines, "SSID: -")
	}
	if s.ConnectedRSSI != nil {
		line := fmt.Sprintf("RSSI: %d dBm", *s.ConnectedRSSI)
		if s.ConnectedNoise != nil {
			line += fmt.Sprintf(" (SNR %d dB)", *s.ConnectedRSSI-*s.ConnectedNoise)
		}
		lines = append(lines, line)
	}
	if s.ConnectedTxRate != nil {
		lines = append(lines, fmt.Sprintf("Tx rate: %.0f Mbps", *s.ConnectedTxRate))
	}
	if gw, ok := s.Gateway(); ok {
		lines = append(lines, "Gateway: "+gw)
	}
	if s.PublicAddr != "" {
		lines = append(lines, "Public: "+s.PublicAddr)
	}
	if s.NATType != "" {
		lines = append(lines, "NAT: "+s.NATType)
	}
	return strings.Join(lines, "\n")
}

func gatewayPanel(h *model.HostLatency) string {
	if h == nil {
		return "Gateway RTT\nno gateway"
	}
	lines := []string{"Gateway RTT " + h.Host}
	lines = append(lines, "TCP:  "+formatSummary(h.TCP))
	lines = append(lines, "ICMP: "+formatSummary(h.ICMP))
	if h.KernelRTTMs != nil {
		lines = append(lines, fmt.Sprintf("Kernel: %.2f ms", *h.KernelRTTMs))
	}
	return strings.Join(lines, "\n")
}

func arpPanel(entries []model.AddressEntry) string {
	lines := []string{fmt.Sprintf("Neighbors (%d)", len(entries))}
	limit := 5
	if len(entries) < limit {
		limit = len(entries)
	}
	for _, e := range entries[:limit] {
		lines = append(lines, fmt.Sprintf("%-15s %s", e.IP, e.MAC))
	}
	if len(entries) > limit {
		lines = append(lines, fmt.Sprintf("... %d more", len(entries)-limit))
	}
	return strings.Join(lines, "\n")
}

func formatSummary(s *model.LatencySummary) string {
	if s == nil {
		return "n/a"
	}
	out := fmt.Sprintf("%.2f ms (min %.2f, max %.2f, n=%d)", s.AvgMs, s.MinMs, s.MaxMs, s.Samples)
	if s.JitterMs != nil {
		out += fmt.Sprintf(" jitter %.2f", *s.JitterMs)
	}
	return out
}
