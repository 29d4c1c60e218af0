//go:build !linux && !darwin

package netutil

import (
	"errors"
	"syscall"
)

// ErrReusePort 当前平台不支持 SO_REUSEPORT
var ErrReusePort = errors.New("netutil: SO_REUSEPORT not supported on this platform")

// Control 仅校验选项；其余使用系统默认
func (o Options) Control(network, address string, rc syscall.RawConn) error {
	if o.ReusePort {
		return ErrReusePort
	}
	return nil
}
