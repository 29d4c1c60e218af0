package server

import (
	"bufio"
	"context"
	"errors"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/legamerdc/ftbuf/client"
	"github.com/legamerdc/ftbuf/monitor"
	"github.com/legamerdc/ftbuf/protocol"
	"github.com/legamerdc/ftbuf/store"
)

// recorder 记录错误分类与连接关闭
type recorder struct {
	monitor.Nop
	mu     sync.Mutex
	errors []monitor.ErrorKind
	opened int
	closed int
	waits  int
}

func (r *recorder) ConnectionOpened(uint64, string) {
	r.mu.Lock()
	r.opened++
	r.mu.Unlock()
}

func (r *recorder) ConnectionClosed(uint64) {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
}

func (r *recorder) ClientError(_ uint64, kind monitor.ErrorKind, _ time.Time) {
	r.mu.Lock()
	r.errors = append(r.errors, kind)
	r.mu.Unlock()
}

func (r *recorder) Waits(uint64, protocol.WaitRequest) {
	r.mu.Lock()
	r.waits++
	r.mu.Unlock()
}

func (r *recorder) snapshot() (errs []monitor.ErrorKind, closed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]monitor.ErrorKind(nil), r.errors...), r.closed
}

type fixture struct {
	srv   *Server
	ds    *store.RingStore
	coord *store.Coordinator
	mon   *recorder
}

func startServer(t *testing.T) *fixture {
	t.Helper()
	ds := store.NewRingStore(store.Config{SampleCapacity: 1000, EventCapacity: 100})
	coord := store.NewCoordinator(ds)
	mon := &recorder{}
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.MaxPayload = 1 << 20
	srv, err := Start(cfg, ds, coord, WithLogger(zaptest.NewLogger(t)), WithMonitor(mon))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Stop(ctx))
	})
	return &fixture{srv: srv, ds: ds, coord: coord, mon: mon}
}

func (f *fixture) dial(t *testing.T, opts ...client.Option) *client.Client {
	t.Helper()
	c, err := client.Dial("tcp", f.srv.Addr().String(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (f *fixture) raw(t *testing.T) net.Conn {
	t.Helper()
	nc, err := net.Dial("tcp", f.srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Close() })
	return nc
}

// float32Data 构造本机字节序的样本块，样本 i 通道 c 的值为 i + c/10
func float32Data(from, samples, channels int) (*protocol.Data, []float32) {
	bo := protocol.NativeOrder.Binary()
	var p []byte
	var values []float32
	for i := from; i < from+samples; i++ {
		for c := 0; c < channels; c++ {
			v := float32(i) + float32(c)/10
			values = append(values, v)
			p = bo.AppendUint32(p, math.Float32bits(v))
		}
	}
	return &protocol.Data{Channels: channels, Samples: samples, DataType: protocol.Float32, Order: protocol.NativeOrder, Payload: p}, values
}

func decodeFloat32(d *protocol.Data) []float32 {
	bo := d.Order.Binary()
	out := make([]float32, 0, len(d.Payload)/4)
	for off := 0; off+4 <= len(d.Payload); off += 4 {
		out = append(out, math.Float32frombits(bo.Uint32(d.Payload[off:])))
	}
	return out
}

func eegHeader() *protocol.Header {
	return &protocol.Header{
		Channels:   4,
		SampleRate: 250,
		DataType:   protocol.Float32,
		Order:      protocol.NativeOrder,
		Chunks:     []protocol.Chunk{protocol.NewChannelNamesChunk([]string{"Fz", "Cz", "Pz", "Oz"})},
	}
}

func TestServer_EndToEnd(t *testing.T) {
	f := startServer(t)
	a := f.dial(t)
	require.NoError(t, a.PutHeader(eegHeader()))

	d, values := float32Data(0, 100, 4)
	require.NoError(t, a.PutData(d))
	assert.Equal(t, 100, f.ds.SampleCount())

	for _, order := range []protocol.Order{protocol.BigEndian, protocol.LittleEndian} {
		t.Run(order.String(), func(t *testing.T) {
			b := f.dial(t, client.WithOrder(order))
			got, err := b.GetData(&protocol.Request{Begin: 0, End: 99})
			require.NoError(t, err)
			assert.Equal(t, order, got.Order)
			assert.Equal(t, 100, got.Samples)
			assert.Equal(t, 4, got.Channels)
			assert.Equal(t, protocol.Float32, got.DataType)
			assert.Equal(t, values, decodeFloat32(got))

			h, err := b.GetHeader()
			require.NoError(t, err)
			assert.Equal(t, 100, h.Samples)
			assert.Equal(t, float32(250), h.SampleRate)
			assert.Equal(t, []string{"Fz", "Cz", "Pz", "Oz"}, h.ChannelNames())
		})
	}
}

func TestServer_BigEndianProducer(t *testing.T) {
	f := startServer(t)
	a := f.dial(t, client.WithOrder(protocol.BigEndian))
	require.NoError(t, a.PutHeader(eegHeader()))
	d, values := float32Data(0, 10, 4)
	require.NoError(t, a.PutData(d))

	evs := []protocol.Event{{
		TypeType: protocol.Char, TypeCount: 8, Type: []byte("stimulus"),
		ValueType: protocol.Int16, ValueCount: 2, Value: protocol.NativeOrder.Binary().AppendUint16(protocol.NativeOrder.Binary().AppendUint16(nil, 7), 300),
		Sample: 5, Duration: 1, Order: protocol.NativeOrder,
	}}
	require.NoError(t, a.PutEvents(evs))

	b := f.dial(t, client.WithOrder(protocol.LittleEndian))
	got, err := b.GetData(nil)
	require.NoError(t, err)
	assert.Equal(t, values, decodeFloat32(got))

	gotEvs, err := b.GetEvents(nil)
	require.NoError(t, err)
	require.Len(t, gotEvs, 1)
	e := gotEvs[0]
	assert.Equal(t, []byte("stimulus"), e.Type)
	assert.Equal(t, int32(5), e.Sample)
	bo := e.Order.Binary()
	assert.Equal(t, uint16(7), bo.Uint16(e.Value[0:]))
	assert.Equal(t, uint16(300), bo.Uint16(e.Value[2:]))
}

func TestServer_DataErrorsKeepConnection(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	_, err := c.GetHeader()
	assert.ErrorIs(t, err, client.ErrRequestFailed)
	assert.ErrorIs(t, c.FlushData(), client.ErrRequestFailed)
	_, _, err = c.Poll()
	assert.ErrorIs(t, err, client.ErrRequestFailed)

	require.NoError(t, c.PutHeader(eegHeader()))
	wrong, _ := float32Data(0, 2, 3)
	assert.ErrorIs(t, c.PutData(wrong), client.ErrRequestFailed)

	hdr := eegHeader()
	hdr.Channels = 8
	assert.ErrorIs(t, c.PutHeader(hdr), client.ErrRequestFailed)

	d, _ := float32Data(0, 10, 4)
	require.NoError(t, c.PutData(d))
	for _, req := range []protocol.Request{{Begin: 5, End: 2}, {Begin: -1, End: 0}, {Begin: 0, End: 10}} {
		_, err := c.GetData(&req)
		assert.ErrorIs(t, err, client.ErrRequestFailed, "%+v", req)
	}

	h, err := c.GetHeader()
	require.NoError(t, err)
	assert.Equal(t, 10, h.Samples)
	errs, _ := f.mon.snapshot()
	assert.Empty(t, errs)
}

func TestServer_FlushIdempotent(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)
	require.NoError(t, c.PutHeader(eegHeader()))
	for i := 0; i < 2; i++ {
		require.NoError(t, c.FlushData())
		require.NoError(t, c.FlushEvents())
	}
	samples, events, err := c.Poll()
	require.NoError(t, err)
	assert.Equal(t, 0, samples)
	assert.Equal(t, 0, events)

	require.NoError(t, c.FlushHeader())
	assert.ErrorIs(t, c.FlushHeader(), client.ErrRequestFailed)
	assert.False(t, f.ds.HeaderExists())
}

func TestServer_MalformedBody(t *testing.T) {
	f := startServer(t)
	nc := f.raw(t)
	r := bufio.NewReader(nc)
	order := protocol.LittleEndian

	// 头部声明 samples != 0
	body := protocol.AppendHeader(nil, &protocol.Header{Channels: 1, DataType: protocol.Int8, Samples: 3}, order)
	_, err := nc.Write(protocol.AppendMessage(nil, order, protocol.PutHdr, body))
	require.NoError(t, err)
	msg, err := protocol.ReadMessage(r, 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.PutErr, msg.Type)
	assert.Empty(t, msg.Body)

	// 连接仍可用
	_, err = nc.Write(protocol.AppendMessage(nil, order, protocol.GetHdr, nil))
	require.NoError(t, err)
	msg, err = protocol.ReadMessage(r, 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.GetErr, msg.Type)
}

func expectClosed(t *testing.T, nc net.Conn) {
	t.Helper()
	_ = nc.SetReadDeadline(time.Now().Add(5 * time.Second))
	var b [1]byte
	_, err := nc.Read(b[:])
	require.Error(t, err)
	var ne net.Error
	if errors.As(err, &ne) {
		assert.False(t, ne.Timeout(), "connection not closed by server")
	}
}

func TestServer_UnknownTypeTerminates(t *testing.T) {
	f := startServer(t)
	nc := f.raw(t)
	_, err := nc.Write(protocol.AppendMessage(nil, protocol.LittleEndian, protocol.MessageType(0x999), []byte{1, 2}))
	require.NoError(t, err)
	expectClosed(t, nc)

	require.Eventually(t, func() bool {
		errs, closed := f.mon.snapshot()
		return closed == 1 && len(errs) == 1
	}, 5*time.Second, 5*time.Millisecond)
	errs, _ := f.mon.snapshot()
	assert.Equal(t, monitor.ProtocolViolation, errs[0])
}

func TestServer_VersionConflict(t *testing.T) {
	f := startServer(t)
	nc := f.raw(t)
	frame := []byte{2, 0, 0x01, 0x02, 0, 0, 0, 0}
	_, err := nc.Write(frame)
	require.NoError(t, err)
	expectClosed(t, nc)

	require.Eventually(t, func() bool {
		errs, _ := f.mon.snapshot()
		return len(errs) == 1
	}, 5*time.Second, 5*time.Millisecond)
	errs, _ := f.mon.snapshot()
	assert.Equal(t, monitor.VersionConflict, errs[0])
}

func TestServer_TooLarge(t *testing.T) {
	f := startServer(t)
	nc := f.raw(t)
	head := protocol.AppendHead(nil, protocol.LittleEndian, protocol.PutDat, 2<<20)
	_, err := nc.Write(head)
	require.NoError(t, err)
	expectClosed(t, nc)

	require.Eventually(t, func() bool {
		errs, _ := f.mon.snapshot()
		return len(errs) == 1 && errs[0] == monitor.ProtocolViolation
	}, 5*time.Second, 5*time.Millisecond)
}

func TestServer_OversizedHeaderKeepsConnection(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	huge := &protocol.Header{Channels: 1 << 31, SampleRate: 250, DataType: protocol.Float64}
	assert.ErrorIs(t, c.PutHeader(huge), client.ErrRequestFailed)
	assert.False(t, f.ds.HeaderExists())

	// 同一连接与新连接都继续可用
	require.NoError(t, c.PutHeader(eegHeader()))
	hdr, err := f.dial(t).GetHeader()
	require.NoError(t, err)
	assert.Equal(t, 4, hdr.Channels)

	errs, _ := f.mon.snapshot()
	assert.Empty(t, errs)
}

// panicStore 在读取头部时 panic
type panicStore struct {
	*store.RingStore
}

func (panicStore) GetHeader() (*protocol.Header, error) { panic("corrupted store") }

func TestServer_PanicClosesOnlyItsConnection(t *testing.T) {
	mon := &recorder{}
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	srv, err := Start(cfg, panicStore{store.NewRingStore(store.NewConfig())}, nil,
		WithLogger(zaptest.NewLogger(t)), WithMonitor(mon))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	a, err := client.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer a.Close()
	_, err = a.GetHeader()
	require.Error(t, err)

	require.Eventually(t, func() bool {
		errs, closed := mon.snapshot()
		return closed == 1 && len(errs) == 1 && errs[0] == monitor.ProtocolViolation
	}, 5*time.Second, 5*time.Millisecond)

	b, err := client.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.PutHeader(eegHeader()))
}

func TestServer_ZeroMaxPayloadUsesDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.MaxPayload = 0
	srv, err := Start(cfg, store.NewRingStore(store.NewConfig()), nil, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	assert.Equal(t, DefaultMaxPayload, srv.cfg.MaxPayload)

	nc, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer nc.Close()
	_, err = nc.Write(protocol.AppendHead(nil, protocol.LittleEndian, protocol.PutDat, DefaultMaxPayload+1))
	require.NoError(t, err)
	expectClosed(t, nc)
}

func TestServer_CleanCloseIsNotAnError(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)
	require.NoError(t, c.PutHeader(eegHeader()))
	require.NoError(t, c.Close())

	require.Eventually(t, func() bool {
		_, closed := f.mon.snapshot()
		return closed == 1
	}, 5*time.Second, 5*time.Millisecond)
	errs, _ := f.mon.snapshot()
	assert.Empty(t, errs)
}

func TestServer_WaitDataWake(t *testing.T) {
	f := startServer(t)
	a := f.dial(t)
	require.NoError(t, a.PutHeader(eegHeader()))
	b := f.dial(t, client.WithOrder(protocol.BigEndian))

	type result struct {
		samples, events int
		err             error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		s, e, err := b.WaitData(context.Background(), protocol.WaitRequest{Samples: 10, Events: 1000000, Timeout: 5000})
		done <- result{s, e, err}
	}()
	require.Eventually(t, func() bool { return f.coord.Pending() == 1 }, 5*time.Second, time.Millisecond)

	// 等待期间其它连接不受影响
	_, _, err := a.Poll()
	require.NoError(t, err)

	d, _ := float32Data(0, 10, 4)
	require.NoError(t, a.PutData(d))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, 10, r.samples)
		assert.Equal(t, 0, r.events)
		assert.Less(t, time.Since(start), 5*time.Second)
	case <-time.After(4 * time.Second):
		t.Fatal("wait not woken by data")
	}
}

func TestServer_WaitDataTimeout(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)
	require.NoError(t, c.PutHeader(eegHeader()))
	d, _ := float32Data(0, 3, 4)
	require.NoError(t, c.PutData(d))

	start := time.Now()
	samples, events, err := c.WaitData(context.Background(), protocol.WaitRequest{Samples: 999999, Events: 999999, Timeout: 50})
	require.NoError(t, err)
	assert.Equal(t, 3, samples)
	assert.Equal(t, 0, events)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 0, f.coord.Pending())
}

func TestServer_CloseDuringWait(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)
	require.NoError(t, c.PutHeader(eegHeader()))

	nc := f.raw(t)
	req := protocol.AppendWaitRequest(nil, protocol.WaitRequest{Samples: 100, Events: 100, Timeout: 60000}, protocol.LittleEndian)
	_, err := nc.Write(protocol.AppendMessage(nil, protocol.LittleEndian, protocol.WaitDat, req))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.coord.Pending() == 1 }, 5*time.Second, time.Millisecond)

	require.NoError(t, nc.Close())
	require.Eventually(t, func() bool {
		return f.coord.Pending() == 0 && f.srv.Connections() == 1
	}, 5*time.Second, time.Millisecond)

	// 之后的写入不会投递给已关闭的连接
	d, _ := float32Data(0, 100, 4)
	require.NoError(t, c.PutData(d))
}

func TestServer_PipelinedAfterWait(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)
	require.NoError(t, c.PutHeader(eegHeader()))

	nc := f.raw(t)
	r := bufio.NewReader(nc)
	order := protocol.BigEndian
	req := protocol.AppendWaitRequest(nil, protocol.WaitRequest{Samples: 100, Events: 100, Timeout: 100}, order)
	frames := protocol.AppendMessage(nil, order, protocol.WaitDat, req)
	frames = protocol.AppendMessage(frames, order, protocol.GetHdr, nil)
	_, err := nc.Write(frames)
	require.NoError(t, err)

	msg, err := protocol.ReadMessage(r, 0)
	require.NoError(t, err)
	require.Equal(t, protocol.WaitOK, msg.Type)
	assert.Equal(t, order, msg.Order)
	samples, events, err := protocol.DecodeWaitResponse(msg.Body, msg.Order)
	require.NoError(t, err)
	assert.Equal(t, 0, samples)
	assert.Equal(t, 0, events)

	msg, err = protocol.ReadMessage(r, 0)
	require.NoError(t, err)
	require.Equal(t, protocol.GetOK, msg.Type)
	h, err := protocol.DecodeHeaderResponse(msg.Body, msg.Order)
	require.NoError(t, err)
	assert.Equal(t, 4, h.Channels)
}

func TestServer_StopClosesConnections(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)
	require.NoError(t, c.PutHeader(eegHeader()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.srv.Stop(ctx))
	assert.Equal(t, 0, f.srv.Connections())

	_, err := c.GetHeader()
	assert.Error(t, err)
	// 重复 Stop 无副作用
	require.NoError(t, f.srv.Stop(ctx))
}
