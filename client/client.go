// Package client 为缓冲区协议的同步客户端：每个方法发送一条请求并等待应答。
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/legamerdc/ftbuf/protocol"
)

var (
	// ErrRequestFailed 服务端以 *_ERR 应答
	ErrRequestFailed = errors.New("client: request failed")

	// ErrUnexpectedResponse 应答类型与请求不匹配
	ErrUnexpectedResponse = errors.New("client: unexpected response")
)

type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	order   protocol.Order
	maxBody int

	mu  sync.Mutex
	out []byte
}

type Option func(*Client)

// WithOrder 指定发送字节序，默认本机字节序
func WithOrder(o protocol.Order) Option {
	return func(c *Client) { c.order = o }
}

// WithMaxPayload 限制应答消息体大小
func WithMaxPayload(n int) Option {
	return func(c *Client) { c.maxBody = n }
}

func Dial(network, address string, opts ...Option) (*Client, error) {
	nc, err := net.Dial(network, address)
	if err != nil {
		return nil, err
	}
	return New(nc, opts...), nil
}

// New 在已建立的连接上创建客户端
func New(nc net.Conn, opts ...Option) *Client {
	c := &Client{conn: nc, r: bufio.NewReader(nc), order: protocol.NativeOrder}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Order() protocol.Order { return c.order }

func (c *Client) Close() error { return c.conn.Close() }

// roundTrip 发送一条请求并读取应答；body 由 encode 追加到复用缓冲
func (c *Client) roundTrip(typ protocol.MessageType, encode func([]byte) []byte, want protocol.MessageType) (*protocol.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 先预留帧头，消息体编码完成后回填长度
	buf := append(c.out[:0], make([]byte, protocol.HeadSize)...)
	if encode != nil {
		buf = encode(buf)
	}
	protocol.AppendHead(buf[:0], c.order, typ, len(buf)-protocol.HeadSize)
	c.out = buf[:0]
	if _, err := c.conn.Write(buf); err != nil {
		return nil, &protocol.ConnectionError{Err: err}
	}

	msg, err := protocol.ReadMessage(c.r, c.maxBody)
	if err != nil {
		return nil, err
	}
	switch msg.Type {
	case want:
		return msg, nil
	case protocol.ErrorFor(typ):
		return nil, fmt.Errorf("%w: %s -> %s", ErrRequestFailed, typ, msg.Type)
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrUnexpectedResponse, typ, msg.Type)
}

func (c *Client) PutHeader(h *protocol.Header) error {
	hdr := *h
	hdr.Samples, hdr.Events = 0, 0
	_, err := c.roundTrip(protocol.PutHdr, func(b []byte) []byte {
		return protocol.AppendHeader(b, &hdr, c.order)
	}, protocol.PutOK)
	return err
}

// GetHeader 返回服务端头部，Samples/Events 为当前计数
func (c *Client) GetHeader() (*protocol.Header, error) {
	msg, err := c.roundTrip(protocol.GetHdr, nil, protocol.GetOK)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeHeaderResponse(msg.Body, msg.Order)
}

func (c *Client) PutData(d *protocol.Data) error {
	_, err := c.roundTrip(protocol.PutDat, func(b []byte) []byte {
		return protocol.AppendData(b, d, c.order)
	}, protocol.PutOK)
	return err
}

// GetData 请求闭区间内的样本；req 为 nil 时返回全部驻留样本
func (c *Client) GetData(req *protocol.Request) (*protocol.Data, error) {
	msg, err := c.roundTrip(protocol.GetDat, encodeRequest(req, c.order), protocol.GetOK)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeData(msg.Body, msg.Order)
}

func (c *Client) PutEvents(evs []protocol.Event) error {
	_, err := c.roundTrip(protocol.PutEvt, func(b []byte) []byte {
		return protocol.AppendEvents(b, evs, c.order)
	}, protocol.PutOK)
	return err
}

// GetEvents 请求闭区间内的事件；req 为 nil 时返回全部驻留事件
func (c *Client) GetEvents(req *protocol.Request) ([]protocol.Event, error) {
	msg, err := c.roundTrip(protocol.GetEvt, encodeRequest(req, c.order), protocol.GetOK)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeEvents(msg.Body, msg.Order)
}

func (c *Client) FlushData() error {
	_, err := c.roundTrip(protocol.FlushDat, nil, protocol.FlushOK)
	return err
}

func (c *Client) FlushEvents() error {
	_, err := c.roundTrip(protocol.FlushEvt, nil, protocol.FlushOK)
	return err
}

func (c *Client) FlushHeader() error {
	_, err := c.roundTrip(protocol.FlushHdr, nil, protocol.FlushOK)
	return err
}

// WaitData 阻塞直到服务端的样本数或事件数达到阈值，或超时。
// ctx 结束时连接处于未知状态，调用方应关闭客户端。
func (c *Client) WaitData(ctx context.Context, req protocol.WaitRequest) (samples, events int, err error) {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Now()) })
	defer stop()

	msg, err := c.roundTrip(protocol.WaitDat, func(b []byte) []byte {
		return protocol.AppendWaitRequest(b, req, c.order)
	}, protocol.WaitOK)
	if err != nil {
		if ctx.Err() != nil {
			return 0, 0, ctx.Err()
		}
		return 0, 0, err
	}
	return protocol.DecodeWaitResponse(msg.Body, msg.Order)
}

// Poll 以零超时查询当前计数
func (c *Client) Poll() (samples, events int, err error) {
	return c.WaitData(context.Background(), protocol.WaitRequest{})
}

func encodeRequest(req *protocol.Request, order protocol.Order) func([]byte) []byte {
	if req == nil {
		return nil
	}
	return func(b []byte) []byte { return protocol.AppendRequest(b, *req, order) }
}
