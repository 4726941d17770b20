// Package probe measures round-trip latency to a single host by TCP connect
// timing and by ICMP echo through the system ping binary.
package probe

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"wifirtt/internal/config"
	"wifirtt/internal/execx"
	"wifirtt/internal/logging"
	"wifirtt/internal/metrics"
	"wifirtt/internal/model"
)

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options configures a Prober. Zero fields take the config defaults.
type Options struct {
	TCPPort        int
	TCPSamples     int
	TCPStagger     time.Duration
	ICMPSamples    int
	ICMPInterval   time.Duration
	ICMPTimeout    time.Duration
	AttemptTimeout time.Duration
}

// OptionsFromConfig copies the probe settings out of a server config.
func OptionsFromConfig(cfg config.ServerConfig) Options {
	return Options{
		TCPPort:        cfg.TCPPort,
		TCPSamples:     cfg.TCPSamples,
		TCPStagger:     cfg.TCPStagger,
		ICMPSamples:    cfg.ICMPSamples,
		ICMPInterval:   cfg.ICMPInterval,
		ICMPTimeout:    cfg.ICMPTimeout,
		AttemptTimeout: cfg.AttemptTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.TCPPort <= 0 {
		o.TCPPort = config.DefaultTCPPort
	}
	if o.TCPSamples <= 0 {
		o.TCPSamples = config.DefaultTCPSamples
	}
	if o.TCPStagger <= 0 {
		o.TCPStagger = config.DefaultTCPStagger
	}
	if o.ICMPSamples <= 0 {
		o.ICMPSamples = config.DefaultICMPSamples
	}
	if o.ICMPInterval <= 0 {
		o.ICMPInterval = config.DefaultICMPInterval
	}
	if o.ICMPTimeout <= 0 {
		o.ICMPTimeout = config.DefaultICMPTimeout
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = config.DefaultAttemptTimeout
	}
	return o
}

// Prober runs latency measurements. It never returns errors: failed attempts
// are dropped and a technique without samples yields a nil summary.
type Prober struct {
	opts   Options
	runner execx.Runner
	dialer Dialer
	log    *slog.Logger
}

// New constructs a Prober. A nil runner or dialer selects the OS default.
func New(opts Options, runner execx.Runner, dialer Dialer, log *slog.Logger) *Prober {
	if runner == nil {
		runner = execx.NewOSRunner()
	}
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &Prober{
		opts:   opts.withDefaults(),
		runner: runner,
		dialer: dialer,
		log:    logging.Or(log),
	}
}

// MeasureLatency samples host sampleCount times with technique and reduces the
// result. perSampleTimeout bounds each TCP attempt, or each echo for ICMP.
func (p *Prober) MeasureLatency(ctx context.Context, host string, technique model.Technique, sampleCount int, perSampleTimeout time.Duration) *model.LatencySummary {
	switch technique {
	case model.TechniqueTCP:
		samples, _ := p.tcpSamples(ctx, host, sampleCount, perSampleTimeout)
		return metrics.ReduceSamples(samples)
	case model.TechniqueICMP:
		return p.pingSummary(ctx, host, sampleCount, perSampleTimeout)
	default:
		p.log.Warn("unknown probe technique", "technique", technique)
		return nil
	}
}

// MeasureHost runs both techniques against host concurrently using the
// configured sample counts.
func (p *Prober) MeasureHost(ctx context.Context, host string) model.HostLatency {
	result := model.HostLatency{Host: host}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		samples, kernel := p.tcpSamples(ctx, host, p.opts.TCPSamples, p.opts.AttemptTimeout)
		result.TCP = metrics.ReduceSamples(samples)
		result.KernelRTTMs = kernel
	}()
	go func() {
		defer wg.Done()
		result.ICMP = p.pingSummary(ctx, host, p.opts.ICMPSamples, p.opts.AttemptTimeout)
	}()
	wg.Wait()

	return result
}
