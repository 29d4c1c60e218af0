package server

import (
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
)

const maxAcceptDelay = time.Second

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	var delay time.Duration
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				return
			}
			// 临时错误（如 fd 耗尽）退避后重试
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			s.log.Warn("Accept failed", zap.Error(err), zap.Duration("retry_in", delay))
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-s.ctx.Done():
				t.Stop()
				return
			}
			continue
		}
		delay = 0

		if tc, ok := nc.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(s.cfg.NoDelay)
		}
		c := newConnection(s.nextID.Add(1), nc, s)
		if !s.track(c) {
			_ = nc.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			c.serve()
		}()
	}
}
