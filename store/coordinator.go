package store

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/legamerdc/ftbuf/logger"
	"github.com/legamerdc/ftbuf/protocol"
)

// WaitResult 为一次等待结束时从存储重新读取的计数
type WaitResult struct {
	Samples  int
	Events   int
	TimedOut bool
}

// waiter 为单次触发的等待者：数据唤醒与超时唤醒只有一方生效
type waiter struct {
	samples  int
	events   int
	once     sync.Once
	done     chan struct{}
	timedOut bool
}

func (w *waiter) met(samples, events int) bool {
	return samples >= w.samples || events >= w.events
}

// fire 唤醒等待者；后到的唤醒为空操作
func (w *waiter) fire(timeout bool) {
	w.once.Do(func() {
		w.timedOut = timeout
		close(w.done)
	})
}

// Coordinator 让连接阻塞直到存储的样本数或事件数达到阈值，或超时。
// 挂起列表由自身的锁保护，与存储锁互不嵌套。
type Coordinator struct {
	ds    DataStore
	clock clock.Clock

	mu      sync.Mutex
	pending []*waiter
}

// CoordinatorOption 配置 Coordinator
type CoordinatorOption func(*Coordinator)

// WithClock 替换计时来源，测试中使用 clock.NewMock()
func WithClock(c clock.Clock) CoordinatorOption {
	return func(co *Coordinator) { co.clock = c }
}

// NewCoordinator 创建协调器并订阅 ds 的写入通知
func NewCoordinator(ds DataStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{ds: ds, clock: clock.New()}
	for _, opt := range opts {
		opt(c)
	}
	ds.Subscribe(c)
	return c
}

// Wait 阻塞直到 req 的样本阈值或事件阈值之一被满足、超时或 ctx 取消。
// Timeout 为 0 时直接返回当前计数。ctx 取消时注销等待并返回 ctx 的错误。
// 调试日志写入 ctx 携带的 logger。
func (c *Coordinator) Wait(ctx context.Context, req protocol.WaitRequest) (WaitResult, error) {
	samples, events, ok := c.ds.Counts()
	if !ok {
		return WaitResult{}, dataError("wait", ErrNoHeader)
	}
	if req.Timeout == 0 {
		return WaitResult{Samples: samples, Events: events}, nil
	}

	w := &waiter{samples: req.Samples, events: req.Events, done: make(chan struct{})}
	t := c.clock.AfterFunc(time.Duration(req.Timeout)*time.Millisecond, func() { w.fire(true) })
	defer t.Stop()

	c.register(w)
	defer c.unregister(w)

	// 注册前到达的写入不会再通知
	if s, e, ok := c.ds.Counts(); !ok || w.met(s, e) {
		w.fire(false)
	}

	log := logger.FromContext(ctx)
	select {
	case <-w.done:
	case <-ctx.Done():
		log.Debug("Wait cancelled", zap.Error(ctx.Err()))
		return WaitResult{}, ctx.Err()
	}

	samples, events, ok = c.ds.Counts()
	if !ok {
		return WaitResult{}, dataError("wait", ErrNoHeader)
	}
	log.Debug("Wait finished",
		zap.Int("samples", samples),
		zap.Int("events", events),
		zap.Bool("timed_out", w.timedOut))
	return WaitResult{Samples: samples, Events: events, TimedOut: w.timedOut}, nil
}

// Notify 唤醒所有阈值已满足的等待者，其余保留
func (c *Coordinator) Notify(samples, events int) {
	var woken []*waiter
	c.mu.Lock()
	kept := c.pending[:0]
	for _, w := range c.pending {
		if w.met(samples, events) {
			woken = append(woken, w)
			continue
		}
		kept = append(kept, w)
	}
	clear(c.pending[len(kept):])
	c.pending = kept
	c.mu.Unlock()

	for _, w := range woken {
		w.fire(false)
	}
}

// Pending 返回挂起的等待数
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) register(w *waiter) {
	c.mu.Lock()
	c.pending = append(c.pending, w)
	c.mu.Unlock()
}

func (c *Coordinator) unregister(w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pending {
		if p == w {
			last := len(c.pending) - 1
			copy(c.pending[i:], c.pending[i+1:])
			c.pending[last] = nil
			c.pending = c.pending[:last]
			return
		}
	}
}
