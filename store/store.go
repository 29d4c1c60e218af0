// Package store 保存当前采集流的头部、样本与事件，并在写入后通知订阅者。
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/legamerdc/ftbuf/protocol"
)

const (
	// DefaultSampleCapacity 样本环默认容量（条）
	DefaultSampleCapacity = 600000

	// DefaultEventCapacity 事件环默认容量（条）
	DefaultEventCapacity = 5000

	// DefaultMaxBytes 样本环按头部分配的字节上限
	DefaultMaxBytes = 1 << 30
)

const (
	// KindRing 有界环形存储
	KindRing = "ring"
	// KindSimple 无界存储，仅用于调试
	KindSimple = "simple"
)

// Config 为存储的类型与容量配置
type Config struct {
	Kind           string `toml:"kind"`
	SampleCapacity int    `toml:"sample-capacity"`
	EventCapacity  int    `toml:"event-capacity"`
	MaxBytes       int64  `toml:"max-bytes"`
}

// NewConfig 返回默认容量的环形存储配置
func NewConfig() Config {
	return Config{
		Kind:           KindRing,
		SampleCapacity: DefaultSampleCapacity,
		EventCapacity:  DefaultEventCapacity,
		MaxBytes:       DefaultMaxBytes,
	}
}

// Validate 校验容量
func (c Config) Validate() error {
	switch c.Kind {
	case "", KindRing, KindSimple:
	default:
		return fmt.Errorf("store: unknown kind %q", c.Kind)
	}
	if c.SampleCapacity <= 0 {
		return fmt.Errorf("store: sample-capacity must be positive, got %d", c.SampleCapacity)
	}
	if c.EventCapacity <= 0 {
		return fmt.Errorf("store: event-capacity must be positive, got %d", c.EventCapacity)
	}
	if c.MaxBytes <= 0 {
		return fmt.Errorf("store: max-bytes must be positive, got %d", c.MaxBytes)
	}
	return nil
}

// New 按配置创建存储
func New(cfg Config) (DataStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Kind == KindSimple {
		return NewSimpleStore(), nil
	}
	return NewRingStore(cfg), nil
}

// Notifier 在每次成功写入样本或事件后被调用，参数为写入后的累计计数。
// 调用时存储锁已释放。
type Notifier interface {
	Notify(samples, events int)
}

// NotifierFunc 函数适配器
type NotifierFunc func(samples, events int)

func (f NotifierFunc) Notify(samples, events int) { f(samples, events) }

// DataStore 为缓冲区的存储能力接口。
// 所有读操作返回副本；所有错误若与状态相关均为 *DataError。
type DataStore interface {
	// PutHeader 采用新头部并清空样本与事件
	PutHeader(h *protocol.Header) error
	// PutData 追加样本块，返回累计样本数
	PutData(d *protocol.Data) (int, error)
	// PutEvents 追加事件，返回累计事件数
	PutEvents(events []protocol.Event) (int, error)

	// GetHeader 返回头部副本，计数为当前值
	GetHeader() (*protocol.Header, error)
	// GetData 返回闭区间内的样本；req 为 nil 时返回全部驻留样本
	GetData(req *protocol.Request) (*protocol.Data, error)
	// GetEvents 返回闭区间内的事件；req 为 nil 时返回全部驻留事件
	GetEvents(req *protocol.Request) ([]protocol.Event, error)

	SampleCount() int
	EventCount() int
	// Counts 一致地返回两个计数；ok 为 false 表示没有头部
	Counts() (samples, events int, ok bool)
	HeaderExists() bool

	FlushData() error
	FlushEvents() error
	FlushHeader() error

	// Subscribe 注册写入通知
	Subscribe(n Notifier)
}

// subscribers 为订阅者登记表，独立于存储锁
type subscribers struct {
	mu   sync.Mutex
	list []Notifier
}

func (s *subscribers) Subscribe(n Notifier) {
	s.mu.Lock()
	s.list = append(s.list, n)
	s.mu.Unlock()
}

func (s *subscribers) notify(samples, events int) {
	s.mu.Lock()
	list := s.list
	s.mu.Unlock()
	for _, n := range list {
		n.Notify(samples, events)
	}
}

// adoptHeader 复制头部，把字节序敏感的块归一到本机字节序并清零计数
func adoptHeader(h *protocol.Header) *protocol.Header {
	c := h.Clone()
	for i, ch := range c.Chunks {
		c.Chunks[i] = protocol.NormalizeChunk(ch, h.Order, protocol.NativeOrder)
	}
	c.Order = protocol.NativeOrder
	c.Samples, c.Events = 0, 0
	return c
}

// checkHeader 校验待采用的头部，以及与当前头部的兼容性（cur 可为 nil）
func checkHeader(cur, h *protocol.Header) error {
	if h == nil || h.Channels <= 0 || h.DataType.Width() < 0 {
		return dataError("put header", errors.New("invalid header"))
	}
	if cur == nil {
		return nil
	}
	if cur.Channels != h.Channels || cur.DataType != h.DataType {
		return dataError("put header", fmt.Errorf("%w: %d x %s -> %d x %s",
			ErrHeaderMismatch, cur.Channels, cur.DataType, h.Channels, h.DataType))
	}
	return nil
}

// checkFootprint 拒绝 capacity 条记录超过 maxBytes 的头部；乘法前逐步比较以免溢出
func checkFootprint(h *protocol.Header, capacity int, maxBytes int64) error {
	width := int64(h.DataType.Width())
	channels := int64(h.Channels)
	if channels > maxBytes/width || int64(capacity) > maxBytes/(channels*width) {
		return dataError("put header", fmt.Errorf("%w: %d samples x %d channels x %d bytes, limit %d bytes",
			ErrTooLarge, capacity, channels, width, maxBytes))
	}
	return nil
}

// checkData 校验样本块与头部形状一致
func checkData(h *protocol.Header, d *protocol.Data) error {
	if h == nil {
		return dataError("put data", ErrNoHeader)
	}
	if d.Channels != h.Channels || d.DataType != h.DataType {
		return dataError("put data", fmt.Errorf("%w: got %d x %s, header %d x %s",
			ErrShapeMismatch, d.Channels, d.DataType, h.Channels, h.DataType))
	}
	if d.Samples < 0 || len(d.Payload) != d.Samples*d.RecordSize() {
		return dataError("put data", fmt.Errorf("%w: %d bytes for %d samples", ErrShapeMismatch, len(d.Payload), d.Samples))
	}
	return nil
}

// nativePayload 返回本机字节序的载荷；需要翻转时复制
func nativePayload(d *protocol.Data) []byte {
	if d.Order == protocol.NativeOrder {
		return d.Payload
	}
	p := append([]byte(nil), d.Payload...)
	protocol.SwapBytes(p, d.DataType.Width())
	return p
}

// nativeEvent 返回本机字节序的事件副本，type 与 value 分别翻转
func nativeEvent(e protocol.Event) protocol.Event {
	if e.Order == protocol.NativeOrder {
		return e.Clone()
	}
	return protocol.NormalizeEvent(e, protocol.NativeOrder)
}

// resolveRange 将可选请求解析为闭区间 [begin, end]。
// 有效区间满足 oldest <= begin <= end < total。
func resolveRange(op string, req *protocol.Request, oldest, total int) (begin, end int, err error) {
	if req == nil {
		if total == oldest {
			return 0, 0, dataError(op, ErrNoData)
		}
		return oldest, total - 1, nil
	}
	begin, end = req.Begin, req.End
	switch {
	case begin < 0 || begin > end:
		return 0, 0, rangeError(op, ErrInvalidRange, begin, end, oldest, total)
	case end >= total || begin < oldest:
		return 0, 0, rangeError(op, ErrOutOfRange, begin, end, oldest, total)
	}
	return begin, end, nil
}
