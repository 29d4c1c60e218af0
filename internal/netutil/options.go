// Package netutil 设置监听 socket 的选项。
package netutil

// Options 为监听 socket 在 bind 之前设置的选项；accept 得到的连接继承缓冲区大小
type Options struct {
	ReuseAddr bool
	ReusePort bool
	RecvBuf   int
	SendBuf   int
}
