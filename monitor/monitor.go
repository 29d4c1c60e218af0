// Package monitor 定义缓冲区对外的观察接口。
// 核心只调用 Monitor，不依赖其实现；实现不得阻塞调用方。
package monitor

import (
	"time"

	"github.com/legamerdc/ftbuf/protocol"
)

// ErrorKind 为连接异常的分类
type ErrorKind int

const (
	// ProtocolViolation 帧或消息体格式错误、未知消息类型
	ProtocolViolation ErrorKind = iota
	// ConnectionLost 传输层异常断开
	ConnectionLost
	// VersionConflict 协议版本不符
	VersionConflict
)

func (k ErrorKind) String() string {
	switch k {
	case ProtocolViolation:
		return "protocol"
	case ConnectionLost:
		return "connection"
	case VersionConflict:
		return "version"
	}
	return "unknown"
}

// Monitor 接收连接生命周期与每类请求的通知。id 为连接编号。
type Monitor interface {
	ConnectionOpened(id uint64, addr string)
	ConnectionClosed(id uint64)
	// Activity 每处理一条消息调用一次
	Activity(id uint64, at time.Time)
	ClientError(id uint64, kind ErrorKind, at time.Time)

	PutHeader(id uint64, dt protocol.DataType, rate float32, channels int)
	// PutSamples total 为写入后的累计样本数，added 为本次写入数
	PutSamples(id uint64, total, added int)
	PutEvents(id uint64, total, added int)

	GetHeader(id uint64)
	// GetSamples count 为本次返回的样本数
	GetSamples(id uint64, count int)
	GetEvents(id uint64, count int)

	FlushedData(id uint64)
	FlushedEvents(id uint64)
	FlushedHeader(id uint64)

	// Waits 连接开始阻塞等待
	Waits(id uint64, req protocol.WaitRequest)
	// Continues 等待结束，连接恢复处理
	Continues(id uint64)
}

// Nop 忽略所有通知
type Nop struct{}

var _ Monitor = Nop{}

func (Nop) ConnectionOpened(uint64, string) {}
func (Nop) ConnectionClosed(uint64) {}
func (Nop) Activity(uint64, time.Time) {}
func (Nop) ClientError(uint64, ErrorKind, time.Time) {}
func (Nop) PutHeader(uint64, protocol.DataType, float32, int) {}
func (Nop) PutSamples(uint64, int, int) {}
func (Nop) PutEvents(uint64, int, int) {}
func (Nop) GetHeader(uint64) {}
func (Nop) GetSamples(uint64, int) {}
func (Nop) GetEvents(uint64, int) {}
func (Nop) FlushedData(uint64) {}
func (Nop) FlushedEvents(uint64) {}
func (Nop) FlushedHeader(uint64) {}
func (Nop) Waits(uint64, protocol.WaitRequest) {}
func (Nop) Continues(uint64) {}

// Multi 将通知依次转发给多个 Monitor
type Multi []Monitor

var _ Monitor = Multi(nil)

func (m Multi) ConnectionOpened(id uint64, addr string) {
	for _, x := range m {
		x.ConnectionOpened(id, addr)
	}
}

func (m Multi) ConnectionClosed(id uint64) {
	for _, x := range m {
		x.ConnectionClosed(id)
	}
}

func (m Multi) Activity(id uint64, at time.Time) {
	for _, x := range m {
		x.Activity(id, at)
	}
}

func (m Multi) ClientError(id uint64, kind ErrorKind, at time.Time) {
	for _, x := range m {
		x.ClientError(id, kind, at)
	}
}

func (m Multi) PutHeader(id uint64, dt protocol.DataType, rate float32, channels int) {
	for _, x := range m {
		x.PutHeader(id, dt, rate, channels)
	}
}

func (m Multi) PutSamples(id uint64, total, added int) {
	for _, x := range m {
		x.PutSamples(id, total, added)
	}
}

func (m Multi) PutEvents(id uint64, total, added int) {
	for _, x := range m {
		x.PutEvents(id, total, added)
	}
}

func (m Multi) GetHeader(id uint64) {
	for _, x := range m {
		x.GetHeader(id)
	}
}

func (m Multi) GetSamples(id uint64, count int) {
	for _, x := range m {
		x.GetSamples(id, count)
	}
}

func (m Multi) GetEvents(id uint64, count int) {
	for _, x := range m {
		x.GetEvents(id, count)
	}
}

func (m Multi) FlushedData(id uint64) {
	for _, x := range m {
		x.FlushedData(id)
	}
}

func (m Multi) FlushedEvents(id uint64) {
	for _, x := range m {
		x.FlushedEvents(id)
	}
}

func (m Multi) FlushedHeader(id uint64) {
	for _, x := range m {
		x.FlushedHeader(id)
	}
}

func (m Multi) Waits(id uint64, req protocol.WaitRequest) {
	for _, x := range m {
		x.Waits(id, req)
	}
}

func (m Multi) Continues(id uint64) {
	for _, x := range m {
		x.Continues(id)
	}
}
