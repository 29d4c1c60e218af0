//go:build linux || darwin

package netutil

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func SetReusePort(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolInt(enable))
}

func SetReuseAddr(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolInt(enable))
}

func SetRecvBuf(fd int, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}

func SetSendBuf(fd int, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, n)
}

// Control 可作为 net.ListenConfig.Control，在 bind 之前设置选项
func (o Options) Control(network, address string, rc syscall.RawConn) error {
	var serr error
	err := rc.Control(func(fd uintptr) {
		serr = o.apply(int(fd))
	})
	if err != nil {
		return err
	}
	return serr
}

func (o Options) apply(fd int) error {
	if o.ReuseAddr {
		if err := SetReuseAddr(fd, true); err != nil {
			return err
		}
	}
	if o.ReusePort {
		if err := SetReusePort(fd, true); err != nil {
			return err
		}
	}
	if o.RecvBuf > 0 {
		if err := SetRecvBuf(fd, o.RecvBuf); err != nil {
			return err
		}
	}
	if o.SendBuf > 0 {
		if err := SetSendBuf(fd, o.SendBuf); err != nil {
			return err
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
