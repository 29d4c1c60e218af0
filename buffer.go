package ftbuf

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/legamerdc/ftbuf/monitor"
	"github.com/legamerdc/ftbuf/server"
	"github.com/legamerdc/ftbuf/store"
)

// Buffer 为一个运行中的缓冲区实例
type Buffer struct {
	cfg Config
	log *zap.Logger

	store   store.DataStore
	coord   *store.Coordinator
	metrics *monitor.Metrics
	srv     *server.Server

	httpLn  net.Listener
	httpSrv *http.Server

	closeOnce sync.Once
	closeErr  error
}

// Open 创建存储并开始监听协议端口与状态端口
func Open(cfg Config, log *zap.Logger) (*Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	ds, err := store.New(cfg.Store)
	if err != nil {
		return nil, err
	}
	b := &Buffer{
		cfg:     cfg,
		log:     log,
		store:   ds,
		coord:   store.NewCoordinator(ds),
		metrics: monitor.NewMetrics(),
	}

	fields := []zap.Field{zap.String("kind", cfg.Store.Kind)}
	if cfg.Store.Kind != store.KindSimple {
		fields = append(fields,
			zap.String("sample_capacity", humanize.Comma(int64(cfg.Store.SampleCapacity))),
			zap.String("event_capacity", humanize.Comma(int64(cfg.Store.EventCapacity))))
	}
	if cfg.Server.MaxPayload > 0 {
		fields = append(fields, zap.String("max_payload", humanize.IBytes(uint64(cfg.Server.MaxPayload))))
	}
	log.Info("Opening buffer", fields...)

	mon := monitor.Multi{monitor.NewLog(log.Named("monitor")), b.metrics}
	b.srv, err = server.Start(cfg.Server.server(), ds, b.coord,
		server.WithLogger(log.Named("server")), server.WithMonitor(mon))
	if err != nil {
		return nil, err
	}

	if cfg.HTTP.BindAddress != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(b.metrics.PrometheusCollectors()...)
		ln, err := net.Listen("tcp", cfg.HTTP.BindAddress)
		if err != nil {
			return nil, multierr.Append(err, b.srv.Stop(context.Background()))
		}
		b.httpLn = ln
		b.httpSrv = &http.Server{Handler: NewStatusHandler(b, reg, log.Named("http"))}
		log.Info("Serving status", zap.Stringer("addr", ln.Addr()))
	}
	return b, nil
}

// Addr 返回协议端口的监听地址
func (b *Buffer) Addr() net.Addr { return b.srv.Addr() }

// HTTPAddr 返回状态端口的监听地址；未启用时为 nil
func (b *Buffer) HTTPAddr() net.Addr {
	if b.httpLn == nil {
		return nil
	}
	return b.httpLn.Addr()
}

func (b *Buffer) Store() store.DataStore { return b.store }

// Status 返回当前计数与头部摘要
func (b *Buffer) Status() Status {
	st := Status{
		PendingWaits: b.coord.Pending(),
		Connections:  b.srv.Connections(),
	}
	if hdr, err := b.store.GetHeader(); err == nil {
		st.Header = headerStatus(hdr)
		st.Samples, st.Events = hdr.Samples, hdr.Events
	}
	return st
}

// Run 提供服务直到 ctx 结束或任一组件失败，随后关闭缓冲区
func (b *Buffer) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if b.httpSrv != nil {
		g.Go(func() error {
			if err := b.httpSrv.Serve(b.httpLn); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return b.Close()
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close 停止状态接口与协议服务，可重复调用
func (b *Buffer) Close() error {
	b.closeOnce.Do(func() {
		ctx := context.Background()
		if t := b.cfg.Server.ShutdownTimeout; t > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}
		if b.httpSrv != nil {
			b.closeErr = multierr.Append(b.closeErr, b.httpSrv.Shutdown(ctx))
			// Serve 未启动时 Shutdown 不会关闭监听
			if err := b.httpLn.Close(); !errors.Is(err, net.ErrClosed) {
				b.closeErr = multierr.Append(b.closeErr, err)
			}
		}
		b.closeErr = multierr.Append(b.closeErr, b.srv.Stop(ctx))
	})
	return b.closeErr
}

// Run 按配置打开缓冲区并服务直到 ctx 结束
func Run(ctx context.Context, cfg Config, log *zap.Logger) error {
	b, err := Open(cfg, log)
	if err != nil {
		return err
	}
	return b.Run(ctx)
}
