package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/legamerdc/ftbuf/internal/netutil"
	"github.com/legamerdc/ftbuf/monitor"
	"github.com/legamerdc/ftbuf/store"
)

// Server 每个连接一个 goroutine，所有连接共享同一个存储与等待协调器
type Server struct {
	cfg   Config
	ds    store.DataStore
	coord *store.Coordinator
	log   *zap.Logger
	mon   monitor.Monitor

	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	nextID atomic.Uint64

	mu     sync.Mutex
	conns  map[uint64]*connection
	closed bool
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithMonitor(m monitor.Monitor) Option {
	return func(s *Server) { s.mon = m }
}

// Start 打开监听并开始接受连接。coord 为 nil 时为 ds 新建协调器。
func Start(cfg Config, ds store.DataStore, coord *store.Coordinator, opts ...Option) (*Server, error) {
	if ds == nil {
		return nil, errors.New("server: nil data store")
	}
	if cfg.ListenNetwork == "" {
		cfg.ListenNetwork = "tcp"
	}
	// 消息体在读取前按声明长度整块分配，必须有上限
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = DefaultMaxPayload
	}
	if coord == nil {
		coord = store.NewCoordinator(ds)
	}
	s := &Server{
		cfg:   cfg,
		ds:    ds,
		coord: coord,
		log:   zap.NewNop(),
		mon:   monitor.Nop{},
		conns: make(map[uint64]*connection),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	lc := net.ListenConfig{Control: netutil.Options{
		ReuseAddr: true,
		ReusePort: cfg.ReusePort,
		RecvBuf:   cfg.ReadBuffer,
		SendBuf:   cfg.WriteBuffer,
	}.Control}
	ln, err := lc.Listen(s.ctx, cfg.ListenNetwork, cfg.ListenAddress)
	if err != nil {
		s.cancel()
		return nil, err
	}
	s.ln = ln
	s.log.Info("Listening", zap.Stringer("addr", ln.Addr()), zap.Int("max_payload", cfg.MaxPayload))

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Connections 返回当前连接数
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Stop 关闭监听与全部连接，等待连接 goroutine 退出或 ctx 结束
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.cancel()
	err := ignoreClosed(s.ln.Close())
	for _, c := range conns {
		err = multierr.Append(err, ignoreClosed(c.nc.Close()))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, ctx.Err())
	}
	s.log.Info("Stopped", zap.Error(err))
	return err
}

// track 登记新连接；服务已停止时返回 false
func (s *Server) track(c *connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c.id] = c
	return true
}

func (s *Server) untrack(c *connection) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
