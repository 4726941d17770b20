package probe

import (
	"errors"
	"net/netip"
	"regexp"
)

// ErrInvalidHost rejects a target that is not a dotted-quad IPv4 address.
var ErrInvalidHost = errors.New("invalid IP address")

var ipv4Re = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

// ValidateHost accepts dotted-quad IPv4 only, with every octet in range. The
// target is handed to ping as an argument, so nothing else gets through.
func ValidateHost(host string) (string, error) {
	if !ipv4Re.MatchString(host) {
		return "", ErrInvalidHost
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || !addr.Is4() {
		return "", ErrInvalidHost
	}
	return host, nil
}
