package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wifirtt/internal/execx"
	"wifirtt/internal/logging"
	"wifirtt/internal/model"
)

const darwinPing = `PING 192.168.1.1 (192.168.1.1): 56 data bytes
64 bytes from 192.168.1.1: icmp_seq=0 ttl=64 time=3.112 ms
64 bytes from 192.168.1.1: icmp_seq=1 ttl=64 time=2.871 ms
Request timeout for icmp_seq 2
64 bytes from 192.168.1.1: icmp_seq=3 ttl=64 time=40.5 ms
64 bytes from 192.168.1.1: icmp_seq=4 ttl=64 time=2.9 ms

--- 192.168.1.1 ping statistics ---
5 packets transmitted, 4 packets received, 20.0% packet loss
round-trip min/avg/max/stddev = 2.871/12.346/40.500/16.253 ms
`

const linuxPartial = `PING 10.0.0.1 (10.0.0.1) 56(84) bytes of data.
64 bytes from 10.0.0.1: icmp_seq=1 ttl=64 time<1 ms
64 bytes from 10.0.0.1: icmp_seq=2 ttl=64 time=0.412 ms
`

func TestParsePing_DarwinOutput(t *testing.T) {
	t.Parallel()

	values, jitter := ParsePing(darwinPing)
	want := []float64{3.112, 2.871, 40.5, 2.9}
	if len(values) != len(want) {
		t.Fatalf("values=%v", values)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Fatalf("values=%v", values)
		}
	}
	if jitter == nil || *jitter != 16.253 {
		t.Fatalf("jitter=%v", jitter)
	}
}

func TestParsePing_NoSummaryMeansNoJitter(t *testing.T) {
	t.Parallel()

	values, jitter := ParsePing(linuxPartial)
	if len(values) != 2 || values[0] != 1 || values[1] != 0.412 {
		t.Fatalf("values=%v", values)
	}
	if jitter != nil {
		t.Fatalf("jitter=%v", *jitter)
	}
}

func TestPingArgs_WaitUnits(t *testing.T) {
	t.Parallel()

	darwin := pingArgs("darwin", "10.0.0.1", 10, 100*time.Millisecond, 2*time.Second)
	if got := darwin[5]; got != "2000" {
		t.Fatalf("darwin -W=%s args=%v", got, darwin)
	}
	linux := pingArgs("linux", "10.0.0.1", 10, 100*time.Millisecond, 2*time.Second)
	if got := linux[5]; got != "2" {
		t.Fatalf("linux -W=%s args=%v", got, linux)
	}
	if linux[1] != "10" || linux[3] != "0.1" || linux[6] != "10.0.0.1" {
		t.Fatalf("args=%v", linux)
	}
}

func TestMeasureLatency_ICMPUsesSummaryJitter(t *testing.T) {
	t.Parallel()

	var gotName string
	runner := execx.Func(func(_ context.Context, name string, args ...string) (string, error) {
		gotName = name
		return darwinPing, nil
	})
	p := New(Options{}, runner, nil, logging.Discard())

	s := p.MeasureLatency(context.Background(), "192.168.1.1", model.TechniqueICMP, 5, 2*time.Second)
	if gotName != "ping" {
		t.Fatalf("ran %q", gotName)
	}
	if s == nil {
		t.Fatal("expected summary")
	}
	if s.Samples != 4 || s.MinMs != 2.871 || s.MaxMs != 40.5 {
		t.Fatalf("summary=%+v", s)
	}
	// trimmed: [2.9, 3.112]
	if s.AvgMs < 3.005 || s.AvgMs > 3.007 {
		t.Fatalf("avg=%v", s.AvgMs)
	}
	if s.JitterMs == nil || *s.JitterMs != 16.253 {
		t.Fatalf("jitter=%v", s.JitterMs)
	}
}

func TestMeasureLatency_ICMPFailureIsAbsent(t *testing.T) {
	t.Parallel()

	runner := execx.Func(func(context.Context, string, ...string) (string, error) {
		return "", errors.New("ping: cannot resolve host")
	})
	p := New(Options{}, runner, nil, logging.Discard())

	if s := p.MeasureLatency(context.Background(), "10.9.9.9", model.TechniqueICMP, 10, time.Second); s != nil {
		t.Fatalf("expected nil, got %+v", s)
	}
}

func TestMeasureLatency_ICMPPartialOutputOnError(t *testing.T) {
	t.Parallel()

	runner := execx.Func(func(context.Context, string, ...string) (string, error) {
		return linuxPartial, errors.New("exit status 1")
	})
	p := New(Options{}, runner, nil, logging.Discard())

	s := p.MeasureLatency(context.Background(), "10.0.0.1", model.TechniqueICMP, 10, time.Second)
	if s == nil || s.Samples != 2 {
		t.Fatalf("summary=%+v", s)
	}
}

func TestMeasureLatency_TCPAgainstListener(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	p := New(Options{TCPPort: port, TCPStagger: 5 * time.Millisecond}, nil, nil, logging.Discard())

	s := p.MeasureLatency(context.Background(), "127.0.0.1", model.TechniqueTCP, 4, time.Second)
	if s == nil {
		t.Fatal("expected summary")
	}
	if s.Samples != 4 || len(s.AllMs) != 4 {
		t.Fatalf("summary=%+v", s)
	}
	if s.MinMs > s.AvgMs || s.AvgMs > s.MaxMs {
		t.Fatalf("summary=%+v", s)
	}
}

func TestMeasureLatency_TCPRefusedIsAbsent(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	p := New(Options{TCPPort: port, TCPStagger: time.Millisecond}, nil, nil, logging.Discard())
	if s := p.MeasureLatency(context.Background(), "127.0.0.1", model.TechniqueTCP, 3, 500*time.Millisecond); s != nil {
		t.Fatalf("expected nil, got %+v", s)
	}
}

type flakyDialer struct {
	calls atomic.Int32
	mu    sync.Mutex
	addrs []string
}

func (d *flakyDialer) DialContext(_ context.Context, _, address string) (net.Conn, error) {
	n := d.calls.Add(1)
	d.mu.Lock()
	d.addrs = append(d.addrs, address)
	d.mu.Unlock()
	if n%2 == 0 {
		return nil, errors.New("connection reset")
	}
	a, b := net.Pipe()
	_ = b.Close()
	return a, nil
}

func TestMeasureLatency_TCPDropsFailedAttempts(t *testing.T) {
	t.Parallel()

	d := &flakyDialer{}
	p := New(Options{TCPStagger: time.Millisecond}, nil, d, logging.Discard())

	s := p.MeasureLatency(context.Background(), "192.168.1.1", model.TechniqueTCP, 5, time.Second)
	if got := d.calls.Load(); got != 5 {
		t.Fatalf("attempts=%d", got)
	}
	if s == nil || s.Samples != 3 {
		t.Fatalf("summary=%+v", s)
	}
	for _, a := range d.addrs {
		if a != net.JoinHostPort("192.168.1.1", strconv.Itoa(80)) {
			t.Fatalf("addr=%q", a)
		}
	}
}

func TestMeasureHost_CombinesTechniques(t *testing.T) {
	t.Parallel()

	runner := execx.Func(func(context.Context, string, ...string) (string, error) {
		return darwinPing, nil
	})
	p := New(Options{TCPStagger: time.Millisecond, TCPSamples: 2}, runner, &flakyDialer{}, logging.Discard())

	hl := p.MeasureHost(context.Background(), "192.168.1.1")
	if hl.Host != "192.168.1.1" {
		t.Fatalf("host=%q", hl.Host)
	}
	if hl.TCP == nil || hl.TCP.Samples != 1 {
		t.Fatalf("tcp=%+v", hl.TCP)
	}
	if hl.ICMP == nil || hl.ICMP.Samples != 4 {
		t.Fatalf("icmp=%+v", hl.ICMP)
	}
	if hl.KernelRTTMs != nil {
		t.Fatalf("kernel rtt from pipe conn: %v", *hl.KernelRTTMs)
	}
}
