package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/legamerdc/ftbuf/protocol"
)

const (
	readBufferSize  = 64 << 10
	writeBufferSize = 64 << 10
	maxKeptOut      = 1 << 20
)

// conn 封装一条连接的缓冲读写
type conn struct {
	nc  net.Conn
	r   *bufio.Reader
	w   *bufio.Writer
	out []byte // 响应消息体的复用缓冲
}

func newConn(nc net.Conn) conn {
	return conn{
		nc: nc,
		r:  bufio.NewReaderSize(nc, readBufferSize),
		w:  bufio.NewWriterSize(nc, writeBufferSize),
	}
}

func (c *conn) read(maxBody int) (*protocol.Message, error) {
	return protocol.ReadMessage(c.r, maxBody)
}

// reply 写出一条响应并刷新
func (c *conn) reply(order protocol.Order, typ protocol.MessageType, body []byte) error {
	var head [protocol.HeadSize]byte
	_, _ = c.w.Write(protocol.AppendHead(head[:0], order, typ, len(body)))
	_, _ = c.w.Write(body)
	// bufio.Writer 记住首个写错误，Flush 时一并返回
	if err := c.w.Flush(); err != nil {
		return &protocol.ConnectionError{Err: err}
	}
	if cap(body) <= maxKeptOut {
		c.out = body[:0]
	} else {
		c.out = nil
	}
	return nil
}

// watchClose 在连接阻塞等待期间探测对端关闭：读到 EOF 或错误时调用 cancel。
// 对端提前发送的下一条消息留在读缓冲中，探测随即结束。
// 返回的 stop 终止探测并返回探测到的关闭错误（未关闭为 nil）。
func (c *conn) watchClose(cancel context.CancelFunc) (stop func() error) {
	done := make(chan error, 1)
	go func() {
		_, err := c.r.Peek(1)
		if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			cancel()
			done <- err
			return
		}
		done <- nil
	}()
	return func() error {
		// 以过期的读截止时间唤醒阻塞的 Peek
		_ = c.nc.SetReadDeadline(time.Now())
		err := <-done
		_ = c.nc.SetReadDeadline(time.Time{})
		return err
	}
}
