package model

import "time"

// Technique identifies how a latency sample was measured.
type Technique string

const (
	TechniqueTCP  Technique = "tcp-connect"
	TechniqueICMP Technique = "icmp-echo"
)

// LatencySample is a single measured round trip.
type LatencySample struct {
	Technique Technique
	Duration  time.Duration
}

// LatencySummary reduces the samples of one technique. A nil *LatencySummary
// means no usable samples; a summary never carries Samples == 0.
type LatencySummary struct {
	AvgMs    float64   `json:"avgMs"`
	MinMs    float64   `json:"minMs"`
	MaxMs    float64   `json:"maxMs"`
	Samples  int       `json:"samples"`
	JitterMs *float64  `json:"jitterMs,omitempty"`
	AllMs    []float64 `json:"allMs"`
}

// HostLatency pairs both techniques for one target.
type HostLatency struct {
	Host        string          `json:"host"`
	TCP         *LatencySummary `json:"tcp"`
	ICMP        *LatencySummary `json:"icmp"`
	KernelRTTMs *float64        `json:"kernelRttMs,omitempty"`
}

// NetworkInfo is one access point as reported by the scanner.
type NetworkInfo struct {
	SSID         string `json:"ssid"`
	BSSID        string `json:"bssid"`
	RSSI         int    `json:"rssi"`
	Noise        int    `json:"noise"`
	Channel      int    `json:"channel"`
	Band         string `json:"band"`
	BandwidthMHz int    `json:"bandwidthMHz"`
}

// ScanResult is the scanner's JSON document.
type ScanResult struct {
	Timestamp          float64       `json:"timestamp"`
	Networks           []NetworkInfo `json:"networks"`
	ConnectedSSID      *string       `json:"connectedSSID,omitempty"`
	ConnectedBSSID     *string       `json:"connectedBSSID,omitempty"`
	ConnectedRSSI      *int          `json:"connectedRSSI,omitempty"`
	ConnectedNoise     *int          `json:"connectedNoise,omitempty"`
	ConnectedTxRate    *float64      `json:"connectedTxRate,omitempty"`
	GatewayIP          *string       `json:"gatewayIP,omitempty"`
	LocationAuthorized bool          `json:"locationAuthorized"`
	TotalRawNetworks   int           `json:"totalRawNetworks"`
}

// Gateway returns the gateway IP named by the scan, if any.
func (s ScanResult) Gateway() (string, bool) {
	if s.GatewayIP == nil || *s.GatewayIP == "" {
		return "", false
	}
	return *s.GatewayIP, true
}

// AddressEntry is one address-resolution table row.
type AddressEntry struct {
	IP  string `json:"ip"`
	MAC string `json:"mac"`
}

// Snapshot is the merged result of one measurement cycle. The scan fields are
// flattened to the top level so viewers see the scanner document unchanged.
type Snapshot struct {
	ScanResult
	ArpTable   []AddressEntry `json:"arpTable"`
	GatewayRTT *HostLatency   `json:"gatewayRTT"`
	PublicAddr string         `json:"publicAddr,omitempty"`
	NATType    string         `json:"natType,omitempty"`
}

// ErrorMessage is sent to viewers in place of a snapshot when a build fails.
type ErrorMessage struct {
	Error string `json:"error"`
}
