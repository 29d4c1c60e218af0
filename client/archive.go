package client

import (
	"errors"
	"fmt"
	"io"

	"github.com/legamerdc/ftbuf/protocol"
)

// Stats 为一次转储或回放的条目统计
type Stats struct {
	Samples int
	Events  int
}

// Dump 将服务端当前的头部与全部驻留样本、事件写入归档
func (c *Client) Dump(a *protocol.ArchiveWriter) (Stats, error) {
	var st Stats
	hdr, err := c.GetHeader()
	if err != nil {
		return st, err
	}
	samples, events := hdr.Samples, hdr.Events
	hdr.Samples, hdr.Events = 0, 0
	if err := a.WriteHeader(hdr); err != nil {
		return st, err
	}
	// 读取头部之后其他客户端可能已清空样本或事件，此时跳过对应的帧
	if samples > 0 {
		d, err := c.GetData(nil)
		switch {
		case errors.Is(err, ErrRequestFailed):
		case err != nil:
			return st, err
		default:
			if err := a.WriteData(d); err != nil {
				return st, err
			}
			st.Samples = d.Samples
		}
	}
	if events > 0 {
		evs, err := c.GetEvents(nil)
		switch {
		case errors.Is(err, ErrRequestFailed):
		case err != nil:
			return st, err
		default:
			if err := a.WriteEvents(evs); err != nil {
				return st, err
			}
			st.Events = len(evs)
		}
	}
	return st, nil
}

// Replay 按顺序把归档中的帧发送给服务端，直到归档结束
func (c *Client) Replay(a *protocol.ArchiveReader) (Stats, error) {
	var st Stats
	for {
		msg, err := a.Next()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, err
		}
		if err := c.replay(msg, &st); err != nil {
			return st, err
		}
	}
}

func (c *Client) replay(msg *protocol.Message, st *Stats) error {
	switch msg.Type {
	case protocol.PutHdr:
		h, err := protocol.DecodeHeader(msg.Body, msg.Order)
		if err != nil {
			return err
		}
		return c.PutHeader(h)
	case protocol.PutDat:
		d, err := protocol.DecodeData(msg.Body, msg.Order)
		if err != nil {
			return err
		}
		if err := c.PutData(d); err != nil {
			return err
		}
		st.Samples += d.Samples
		return nil
	case protocol.PutEvt:
		evs, err := protocol.DecodeEvents(msg.Body, msg.Order)
		if err != nil {
			return err
		}
		if err := c.PutEvents(evs); err != nil {
			return err
		}
		st.Events += len(evs)
		return nil
	}
	return fmt.Errorf("%w: %s in archive", ErrUnexpectedResponse, msg.Type)
}
