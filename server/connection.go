package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/legamerdc/ftbuf/logger"
	"github.com/legamerdc/ftbuf/monitor"
	"github.com/legamerdc/ftbuf/protocol"
)

// connection 为一条客户端连接：读取一条消息、分发、写出应答，循环直到连接结束
type connection struct {
	conn
	id  uint64
	srv *Server
	log *zap.Logger
}

func newConnection(id uint64, nc net.Conn, s *Server) *connection {
	addr := nc.RemoteAddr().String()
	return &connection{
		conn: newConn(nc),
		id:   id,
		srv:  s,
		log:  s.log.With(zap.Uint64("conn_id", id), zap.String("remote_addr", addr)),
	}
}

func (c *connection) serve() {
	mon := c.srv.mon
	mon.ConnectionOpened(c.id, c.nc.RemoteAddr().String())
	c.log.Debug("Connection opened")
	defer func() {
		// 单个连接的 panic 不能终止整个进程
		if r := recover(); r != nil {
			c.log.Error("Connection panicked", zap.Any("panic", r), zap.Stack("stack"))
			if c.srv.ctx.Err() == nil {
				mon.ClientError(c.id, monitor.ProtocolViolation, time.Now())
			}
		}
		_ = c.nc.Close()
		mon.ConnectionClosed(c.id)
	}()

	for {
		msg, err := c.read(c.srv.cfg.MaxPayload)
		if err == nil {
			mon.Activity(c.id, time.Now())
			err = c.dispatch(msg)
		}
		if err != nil {
			c.terminate(err)
			return
		}
	}
}

// terminate 按错误分类通知 Monitor；在帧边界正常关闭或服务停止时不计为错误
func (c *connection) terminate(err error) {
	kind, ok := classify(err)
	if !ok || c.srv.ctx.Err() != nil {
		c.log.Debug("Connection closed", zap.Error(err))
		return
	}
	c.srv.mon.ClientError(c.id, kind, time.Now())
	c.log.Info("Connection terminated", zap.Stringer("kind", kind), zap.Error(err))
}

// classify 返回连接终止的错误分类；ok 为 false 表示正常关闭
func classify(err error) (kind monitor.ErrorKind, ok bool) {
	switch {
	case errors.Is(err, protocol.ErrVersion):
		return monitor.VersionConflict, true
	case protocol.IsProtocolError(err):
		return monitor.ProtocolViolation, true
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return 0, false
	}
	return monitor.ConnectionLost, true
}

// dispatch 处理一条请求。返回非 nil 错误时连接终止；
// 请求本身失败（存储状态不符、消息体非法）以对应的 *_ERR 应答，连接继续。
func (c *connection) dispatch(msg *protocol.Message) error {
	var (
		typ  protocol.MessageType
		body []byte
		err  error
	)
	switch msg.Type {
	case protocol.PutHdr:
		typ, err = c.putHeader(msg)
	case protocol.PutDat:
		typ, err = c.putData(msg)
	case protocol.PutEvt:
		typ, err = c.putEvents(msg)
	case protocol.GetHdr:
		typ, body, err = c.getHeader(msg)
	case protocol.GetDat:
		typ, body, err = c.getData(msg)
	case protocol.GetEvt:
		typ, body, err = c.getEvents(msg)
	case protocol.FlushHdr:
		typ, err = c.flushHeader()
	case protocol.FlushDat:
		typ, err = c.flushData()
	case protocol.FlushEvt:
		typ, err = c.flushEvents()
	case protocol.WaitDat:
		typ, body, err = c.waitData(msg)
	default:
		return &protocol.ProtocolError{Err: protocol.ErrUnknownType, Detail: msg.Type.String()}
	}
	if err != nil {
		if protocol.IsConnectionError(err) {
			return err
		}
		c.log.Debug("Request failed", zap.Stringer("type", msg.Type), zap.Error(err))
		typ, body = protocol.ErrorFor(msg.Type), nil
	}
	return c.reply(msg.Order, typ, body)
}

func (c *connection) putHeader(msg *protocol.Message) (protocol.MessageType, error) {
	h, err := protocol.DecodeHeader(msg.Body, msg.Order)
	if err != nil {
		return 0, err
	}
	if err := c.srv.ds.PutHeader(h); err != nil {
		return 0, err
	}
	c.srv.mon.PutHeader(c.id, h.DataType, h.SampleRate, h.Channels)
	return protocol.PutOK, nil
}

func (c *connection) putData(msg *protocol.Message) (protocol.MessageType, error) {
	d, err := protocol.DecodeData(msg.Body, msg.Order)
	if err != nil {
		return 0, err
	}
	total, err := c.srv.ds.PutData(d)
	if err != nil {
		return 0, err
	}
	c.srv.mon.PutSamples(c.id, total, d.Samples)
	return protocol.PutOK, nil
}

func (c *connection) putEvents(msg *protocol.Message) (protocol.MessageType, error) {
	evs, err := protocol.DecodeEvents(msg.Body, msg.Order)
	if err != nil {
		return 0, err
	}
	total, err := c.srv.ds.PutEvents(evs)
	if err != nil {
		return 0, err
	}
	c.srv.mon.PutEvents(c.id, total, len(evs))
	return protocol.PutOK, nil
}

func (c *connection) getHeader(msg *protocol.Message) (protocol.MessageType, []byte, error) {
	h, err := c.srv.ds.GetHeader()
	if err != nil {
		return 0, nil, err
	}
	c.srv.mon.GetHeader(c.id)
	return protocol.GetOK, protocol.AppendHeader(c.out[:0], h, msg.Order), nil
}

// request 解析可选的区间请求；空消息体表示全部驻留条目
func request(msg *protocol.Message) (*protocol.Request, error) {
	if len(msg.Body) == 0 {
		return nil, nil
	}
	req, err := protocol.DecodeRequest(msg.Body, msg.Order)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (c *connection) getData(msg *protocol.Message) (protocol.MessageType, []byte, error) {
	req, err := request(msg)
	if err != nil {
		return 0, nil, err
	}
	d, err := c.srv.ds.GetData(req)
	if err != nil {
		return 0, nil, err
	}
	c.srv.mon.GetSamples(c.id, d.Samples)
	return protocol.GetOK, protocol.AppendData(c.out[:0], d, msg.Order), nil
}

func (c *connection) getEvents(msg *protocol.Message) (protocol.MessageType, []byte, error) {
	req, err := request(msg)
	if err != nil {
		return 0, nil, err
	}
	evs, err := c.srv.ds.GetEvents(req)
	if err != nil {
		return 0, nil, err
	}
	c.srv.mon.GetEvents(c.id, len(evs))
	return protocol.GetOK, protocol.AppendEvents(c.out[:0], evs, msg.Order), nil
}

func (c *connection) flushHeader() (protocol.MessageType, error) {
	if err := c.srv.ds.FlushHeader(); err != nil {
		return 0, err
	}
	c.srv.mon.FlushedHeader(c.id)
	return protocol.FlushOK, nil
}

func (c *connection) flushData() (protocol.MessageType, error) {
	if err := c.srv.ds.FlushData(); err != nil {
		return 0, err
	}
	c.srv.mon.FlushedData(c.id)
	return protocol.FlushOK, nil
}

func (c *connection) flushEvents() (protocol.MessageType, error) {
	if err := c.srv.ds.FlushEvents(); err != nil {
		return 0, err
	}
	c.srv.mon.FlushedEvents(c.id)
	return protocol.FlushOK, nil
}

// waitData 阻塞直到阈值满足或超时；等待期间对端关闭则注销等待并终止连接
func (c *connection) waitData(msg *protocol.Message) (protocol.MessageType, []byte, error) {
	req, err := protocol.DecodeWaitRequest(msg.Body, msg.Order)
	if err != nil {
		return 0, nil, err
	}
	ctx, cancel := context.WithCancel(logger.NewContextWithLogger(c.srv.ctx, c.log))
	defer cancel()

	var stop func() error
	if req.Timeout > 0 {
		stop = c.watchClose(cancel)
	}
	c.srv.mon.Waits(c.id, req)
	res, err := c.srv.coord.Wait(ctx, req)
	var closeErr error
	if stop != nil {
		closeErr = stop()
	}
	c.srv.mon.Continues(c.id)

	switch {
	case closeErr != nil:
		return 0, nil, &protocol.ConnectionError{Err: closeErr}
	case errors.Is(err, context.Canceled):
		return 0, nil, &protocol.ConnectionError{Err: net.ErrClosed}
	case err != nil:
		return 0, nil, err
	}
	return protocol.WaitOK, protocol.AppendWaitResponse(c.out[:0], res.Samples, res.Events, msg.Order), nil
}
