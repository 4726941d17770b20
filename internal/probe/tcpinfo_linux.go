//go:build linux

package probe

import (
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// kernelRTT reads the smoothed RTT the kernel recorded for c. Right after the
// handshake this is the SYN/SYN-ACK round trip.
func kernelRTT(c net.Conn) (time.Duration, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("net.Conn does not implement syscall.Conn")
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}

	var info *unix.TCPInfo
	var serr error
	if cerr := raw.Control(func(fd uintptr) {
		info, serr = unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
	}); cerr != nil {
		return 0, cerr
	}
	if serr != nil {
		return 0, serr
	}
	if info == nil {
		return 0, fmt.Errorf("nil TCPInfo")
	}

	return time.Duration(info.Rtt) * time.Microsecond, nil
}
