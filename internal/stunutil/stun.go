package stunutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

const (
	NATTypeUnknown          = "unknown"
	NATTypeSymmetric        = "symmetric"
	NATTypeConeOrRestricted = "cone_or_restricted"
)

// ErrNoServers is returned by Probe when no STUN server is configured.
var ErrNoServers = errors.New("no STUN servers provided")

// Result is the public mapping observed through STUN.
type Result struct {
	PublicAddr string
	NATType    string
}

// Probe queries each server for the mapped address of a fresh UDP socket and
// classifies the NAT from the answers. It fails only when no server answered.
func Probe(ctx context.Context, servers []string, timeout time.Duration) (Result, error) {
	if len(servers) == 0 {
		return Result{NATType: NATTypeUnknown}, ErrNoServers
	}

	mapped := make([]string, 0, len(servers))
	var lastErr error
	for _, server := range servers {
		addr, err := bindingRequest(ctx, server, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		mapped = append(mapped, addr)
	}

	if len(mapped) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("STUN probe failed")
		}
		return Result{NATType: NATTypeUnknown}, lastErr
	}
	return Result{PublicAddr: mapped[0], NATType: Classify(mapped)}, nil
}

// Classify infers NAT type by comparing mapped addresses from multiple servers.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return NATTypeUnknown
	}
	for _, addr := range addrs[1:] {
		if addr != addrs[0] {
			return NATTypeSymmetric
		}
	}
	return NATTypeConeOrRestricted
}

// NormalizeURI prefixes bare host:port entries with the stun: scheme.
func NormalizeURI(server string) (string, error) {
	s := strings.TrimSpace(server)
	if s == "" {
		return "", fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(s, "stun:") && !strings.HasPrefix(s, "stuns:") {
		s = "stun:" + s
	}
	return s, nil
}

func bindingRequest(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uriStr, err := NormalizeURI(server)
	if err != nil {
		return "", err
	}
	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return "", err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type answer struct {
		addr string
		err  error
	}
	done := make(chan answer, 1)
	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	go func() {
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				done <- answer{err: res.Error}
				return
			}
			var addr stun.XORMappedAddress
			if err := addr.GetFrom(res.Message); err != nil {
				done <- answer{err: err}
				return
			}
			done <- answer{addr: addr.String()}
		})
		if err != nil {
			select {
			case done <- answer{err: err}:
			default:
			}
		}
	}()

	select {
	case a := <-done:
		return a.addr, a.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
