// Package topology gathers the scanner's view of nearby access points and the
// host's address-resolution table.
package topology

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"wifirtt/internal/config"
	"wifirtt/internal/execx"
	"wifirtt/internal/logging"
	"wifirtt/internal/model"
)

// ErrScanUnavailable means the external scanner could not produce a usable
// result: it is missing, failed, timed out, or printed something unparseable.
var ErrScanUnavailable = errors.New("scan unavailable")

// BroadcastMAC never identifies a real host.
const BroadcastMAC = "ff:ff:ff:ff:ff:ff"

var arpLineRe = regexp.MustCompile(`(?i)\((\d+\.\d+\.\d+\.\d+)\)\s+at\s+([0-9a-f:]+)`)

// Collector runs the external scanner and arp command.
type Collector struct {
	scannerPath string
	scanTimeout time.Duration
	arpTimeout  time.Duration
	runner      execx.Runner
	breaker     *gobreaker.CircuitBreaker // nil when disabled
	log         *slog.Logger
}

// NewCollector builds a Collector from the server config.
func NewCollector(cfg config.ServerConfig, runner execx.Runner, log *slog.Logger) *Collector {
	if runner == nil {
		runner = execx.NewOSRunner()
	}
	scanTimeout := cfg.ScanTimeout
	if scanTimeout <= 0 {
		scanTimeout = config.DefaultScanTimeout
	}
	arpTimeout := cfg.ARPTimeout
	if arpTimeout <= 0 {
		arpTimeout = config.DefaultARPTimeout
	}
	c := &Collector{
		scannerPath: cfg.ScannerPath,
		scanTimeout: scanTimeout,
		arpTimeout:  arpTimeout,
		runner:      runner,
		log:         logging.Or(log),
	}
	c.breaker = newScanBreaker(cfg, c.log)
	return c
}

// newScanBreaker stops launching the scanner for a cooldown after repeated
// failures, e.g. when the host has no wireless interface.
func newScanBreaker(cfg config.ServerConfig, log *slog.Logger) *gobreaker.CircuitBreaker {
	failures := cfg.ScanBreakerFailures
	if failures < 0 {
		return nil
	}
	if failures == 0 {
		failures = config.DefaultScanBreakerFailures
	}
	cooldown := cfg.ScanBreakerCooldown
	if cooldown <= 0 {
		cooldown = config.DefaultScanBreakerCooldown
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "scanner",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			var abandoned abandonedScan
			return err == nil || errors.As(err, &abandoned)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("scanner circuit changed", "from", from.String(), "to", to.String())
		},
	})
}

// abandonedScan is a scan cut short by the caller's context. It says nothing
// about the scanner, so the breaker does not count it.
type abandonedScan struct{ err error }

func (e abandonedScan) Error() string { return e.err.Error() }
func (e abandonedScan) Unwrap() error { return e.err }

// FetchScan runs the scanner and decodes its JSON document. Every failure
// wraps ErrScanUnavailable, including a fast failure while the circuit is open.
func (c *Collector) FetchScan(ctx context.Context) (model.ScanResult, error) {
	if c.breaker == nil {
		return c.scan(ctx)
	}
	if err := ctx.Err(); err != nil {
		return model.ScanResult{}, fmt.Errorf("%w: %v", ErrScanUnavailable, err)
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		res, err := c.scan(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, abandonedScan{err: err}
		}
		return res, err
	})
	if err != nil {
		var abandoned abandonedScan
		switch {
		case errors.As(err, &abandoned):
			return model.ScanResult{}, abandoned.err
		case errors.Is(err, gobreaker.ErrOpenState):
			return model.ScanResult{}, fmt.Errorf("%w: scanner paused after repeated failures", ErrScanUnavailable)
		case errors.Is(err, gobreaker.ErrTooManyRequests):
			return model.ScanResult{}, fmt.Errorf("%w: scanner recovery check in progress", ErrScanUnavailable)
		}
		return model.ScanResult{}, err
	}
	return res.(model.ScanResult), nil
}

func (c *Collector) scan(ctx context.Context) (model.ScanResult, error) {
	out, err := execx.OutputTimeout(ctx, c.runner, c.scanTimeout, c.scannerPath)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("%w: scanner failed: %v", ErrScanUnavailable, err)
	}
	return ParseScan([]byte(out))
}

// ParseScan decodes scanner output. The scanner reports its own failures as
// {"error": "..."}; those are surfaced as ErrScanUnavailable too.
func ParseScan(data []byte) (model.ScanResult, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return model.ScanResult{}, fmt.Errorf("%w: empty scanner output", ErrScanUnavailable)
	}

	var probe struct {
		Error    *string          `json:"error"`
		Networks *json.RawMessage `json:"networks"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return model.ScanResult{}, fmt.Errorf("%w: invalid scanner output: %v", ErrScanUnavailable, err)
	}
	if probe.Error != nil {
		return model.ScanResult{}, fmt.Errorf("%w: %s", ErrScanUnavailable, *probe.Error)
	}
	if probe.Networks == nil {
		return model.ScanResult{}, fmt.Errorf("%w: invalid scanner output: missing networks", ErrScanUnavailable)
	}

	var res model.ScanResult
	if err := json.Unmarshal(data, &res); err != nil {
		return model.ScanResult{}, fmt.Errorf("%w: invalid scanner output: %v", ErrScanUnavailable, err)
	}
	if res.Networks == nil {
		res.Networks = []model.NetworkInfo{}
	}
	return res, nil
}

// FetchAddressTable runs `arp -a` and parses it. The table is best-effort: any
// failure yields an empty slice.
func (c *Collector) FetchAddressTable(ctx context.Context) []model.AddressEntry {
	out, err := execx.OutputTimeout(ctx, c.runner, c.arpTimeout, "arp", "-a")
	if err != nil {
		c.log.Debug("arp failed", "err", err)
		return []model.AddressEntry{}
	}
	return ParseARP(out)
}

// ParseARP extracts "(ip) at mac" pairs, skipping broadcast entries.
func ParseARP(out string) []model.AddressEntry {
	entries := []model.AddressEntry{}
	for _, line := range strings.Split(out, "\n") {
		m := arpLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if strings.EqualFold(m[2], BroadcastMAC) {
			continue
		}
		entries = append(entries, model.AddressEntry{IP: m[1], MAC: m[2]})
	}
	return entries
}
