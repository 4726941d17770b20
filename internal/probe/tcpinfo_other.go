//go:build !linux

package probe

import (
	"errors"
	"net"
	"time"
)

func kernelRTT(net.Conn) (time.Duration, error) {
	return 0, errors.New("tcp_info not supported on this platform")
}
