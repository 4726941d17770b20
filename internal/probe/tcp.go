package probe

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"wifirtt/internal/metrics"
	"wifirtt/internal/model"
)

// tcpSamples opens count staggered connections to host and times each
// handshake. All attempts are joined before returning. The second result is
// the lowest kernel-reported handshake RTT, when the platform exposes one.
func (p *Prober) tcpSamples(ctx context.Context, host string, count int, timeout time.Duration) ([]model.LatencySample, *float64) {
	if count <= 0 {
		return nil, nil
	}
	if timeout <= 0 {
		timeout = p.opts.AttemptTimeout
	}
	addr := net.JoinHostPort(host, strconv.Itoa(p.opts.TCPPort))

	var (
		mu      sync.Mutex
		samples = make([]model.LatencySample, 0, count)
		kernel  *float64
		wg      sync.WaitGroup
	)
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(delay time.Duration) {
			defer wg.Done()
			if !sleepCtx(ctx, delay) {
				return
			}
			rtt, krtt, err := p.connectOnce(ctx, addr, timeout)
			if err != nil {
				p.log.Debug("tcp probe attempt failed", "addr", addr, "err", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			samples = append(samples, model.LatencySample{Technique: model.TechniqueTCP, Duration: rtt})
			if krtt > 0 {
				ms := metrics.Millis(krtt)
				if kernel == nil || ms < *kernel {
					kernel = &ms
				}
			}
		}(time.Duration(i) * p.opts.TCPStagger)
	}
	wg.Wait()

	return samples, kernel
}

func (p *Prober) connectOnce(ctx context.Context, addr string, timeout time.Duration) (time.Duration, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(attemptCtx, "tcp", addr)
	if err != nil {
		return 0, 0, err
	}
	rtt := time.Since(start)
	defer conn.Close()

	krtt, err := kernelRTT(conn)
	if err != nil {
		krtt = 0
	}
	return rtt, krtt, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
