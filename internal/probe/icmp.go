package probe

import (
	"context"
	"math"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"wifirtt/internal/execx"
	"wifirtt/internal/metrics"
	"wifirtt/internal/model"
)

var (
	pingTimeRe    = regexp.MustCompile(`time[=<](\d+\.?\d*)\s*ms`)
	pingSummaryRe = regexp.MustCompile(`(\d+\.?\d*)/(\d+\.?\d*)/(\d+\.?\d*)/(\d+\.?\d*)\s*ms`)
)

// pingSummary runs one ping invocation requesting count echoes and reduces the
// reported times. A missing or failing ping yields nil.
func (p *Prober) pingSummary(ctx context.Context, host string, count int, timeout time.Duration) *model.LatencySummary {
	if count <= 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = p.opts.AttemptTimeout
	}

	args := pingArgs(runtime.GOOS, host, count, p.opts.ICMPInterval, timeout)
	out, err := execx.OutputTimeout(ctx, p.runner, p.opts.ICMPTimeout, "ping", args...)
	if err != nil {
		// ping exits non-zero on partial loss; whatever replies it printed still count.
		p.log.Debug("ping failed", "host", host, "err", err)
	}

	values, jitter := ParsePing(out)
	summary := metrics.Reduce(values)
	if summary != nil {
		summary.JitterMs = jitter
	}
	return summary
}

// pingArgs renders the ping command line. The per-reply wait (-W) is in
// milliseconds on darwin and whole seconds elsewhere.
func pingArgs(goos, host string, count int, interval, timeout time.Duration) []string {
	wait := strconv.Itoa(int(math.Ceil(timeout.Seconds())))
	if goos == "darwin" {
		wait = strconv.FormatInt(timeout.Milliseconds(), 10)
	}
	return []string{
		"-c", strconv.Itoa(count),
		"-i", strconv.FormatFloat(interval.Seconds(), 'f', -1, 64),
		"-W", wait,
		host,
	}
}

// ParsePing extracts per-reply round-trip times in milliseconds from ping
// output, in reply order. jitter is the fourth field of the trailing
// "min/avg/max/stddev" line when present, and nil otherwise.
func ParsePing(out string) (values []float64, jitter *float64) {
	for _, line := range strings.Split(out, "\n") {
		m := pingTimeRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}

	if m := pingSummaryRe.FindStringSubmatch(out); m != nil {
		if v, err := strconv.ParseFloat(m[4], 64); err == nil {
			jitter = &v
		}
	}
	return values, jitter
}
