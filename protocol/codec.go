package protocol

import (
	"math"
	"math/bits"
)

const (
	headerFixedSize = 24 // channels samples events rate dataType chunkLen
	dataFixedSize   = 16 // channels samples dataType byteLen
	eventFixedSize  = 32 // typeType typeCount valueType valueCount sample offset duration size
	chunkFixedSize  = 8  // type size
	requestSize     = 8
	waitRequestSize = 12
	waitRespSize    = 8
)

// bodyReader 按给定字节序顺序读取定长字段
type bodyReader struct {
	b   []byte
	off int
	bo  ByteOrder
}

func newBodyReader(b []byte, order Order) *bodyReader {
	return &bodyReader{b: b, bo: order.Binary()}
}

func (r *bodyReader) remaining() int { return len(r.b) - r.off }

func (r *bodyReader) u32() uint32 {
	v := r.bo.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *bodyReader) i32() int32 { return int32(r.u32()) }

func (r *bodyReader) bytes(n int) []byte {
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

// DecodeHeader 解析 PUT_HDR 消息体。
// 头部更新即重新开始，因此 samples/events 必须为 0。
func DecodeHeader(body []byte, order Order) (*Header, error) {
	h, err := decodeHeader(body, order)
	if err != nil {
		return nil, err
	}
	if h.Samples != 0 {
		return nil, malformed("header with %d samples", h.Samples)
	}
	if h.Events != 0 {
		return nil, malformed("header with %d events", h.Events)
	}
	return h, nil
}

// DecodeHeaderResponse 解析 GET_HDR 的 GET_OK 消息体，保留当前计数
func DecodeHeaderResponse(body []byte, order Order) (*Header, error) {
	return decodeHeader(body, order)
}

func decodeHeader(body []byte, order Order) (*Header, error) {
	if len(body) < headerFixedSize {
		return nil, malformed("header body %d bytes, need %d", len(body), headerFixedSize)
	}
	r := newBodyReader(body, order)
	h := &Header{Order: order}
	h.Channels = int(r.u32())
	h.Samples = int(r.u32())
	h.Events = int(r.u32())
	h.SampleRate = math.Float32frombits(r.u32())
	h.DataType = DataType(r.u32())
	chunkLen := int(r.u32())

	if h.Channels <= 0 {
		return nil, malformed("header with %d channels", h.Channels)
	}
	if h.DataType.Width() < 0 {
		return nil, malformed("header with unknown data type %d", uint32(h.DataType))
	}
	if chunkLen != r.remaining() {
		return nil, malformed("header declares %d chunk bytes, %d present", chunkLen, r.remaining())
	}
	for r.remaining() > 0 {
		if r.remaining() < chunkFixedSize {
			return nil, malformed("truncated chunk definition")
		}
		typ := ChunkType(r.u32())
		size := int(r.u32())
		if size < 0 || size > r.remaining() {
			return nil, malformed("chunk %d declares %d bytes, %d present", typ, size, r.remaining())
		}
		h.Chunks = append(h.Chunks, Chunk{Type: typ, Data: append([]byte(nil), r.bytes(size)...)})
	}
	return h, nil
}

// AppendHeader 以 order 编码头部（GET_OK 消息体 / PUT_HDR 消息体）
func AppendHeader(dst []byte, h *Header, order Order) []byte {
	bo := order.Binary()
	chunkLen := 0
	for _, c := range h.Chunks {
		chunkLen += chunkFixedSize + len(c.Data)
	}
	dst = bo.AppendUint32(dst, uint32(h.Channels))
	dst = bo.AppendUint32(dst, uint32(h.Samples))
	dst = bo.AppendUint32(dst, uint32(h.Events))
	dst = bo.AppendUint32(dst, math.Float32bits(h.SampleRate))
	dst = bo.AppendUint32(dst, uint32(h.DataType))
	dst = bo.AppendUint32(dst, uint32(chunkLen))
	for _, c := range h.Chunks {
		dst = bo.AppendUint32(dst, uint32(c.Type))
		dst = bo.AppendUint32(dst, uint32(len(c.Data)))
		if c.Type == ChunkResolutions {
			dst = appendOrdered(dst, c.Data, resolutionWidth, h.Order, order)
		} else {
			dst = append(dst, c.Data...)
		}
	}
	return dst
}

// DecodeData 解析 PUT_DAT 消息体；声明长度必须与 channels*samples*width 及实际剩余字节完全一致
func DecodeData(body []byte, order Order) (*Data, error) {
	if len(body) < dataFixedSize {
		return nil, malformed("data body %d bytes, need %d", len(body), dataFixedSize)
	}
	r := newBodyReader(body, order)
	channels := uint64(r.u32())
	samples := uint64(r.u32())
	dt := DataType(r.u32())
	size := uint64(r.u32())
	width := dt.Width()
	if width < 0 {
		return nil, malformed("data with unknown data type %d", uint32(dt))
	}
	if hi, want := bits.Mul64(channels*uint64(width), samples); hi != 0 || size != want {
		return nil, malformed("data declares %d bytes for %d samples x %d channels x %d bytes", size, samples, channels, width)
	}
	if size != uint64(r.remaining()) {
		return nil, malformed("data declares %d bytes, %d present", size, r.remaining())
	}
	// body 由 ReadMessage 独立分配，直接引用
	return &Data{
		Channels: int(channels),
		Samples:  int(samples),
		DataType: dt,
		Order:    order,
		Payload:  r.bytes(int(size)),
	}, nil
}

// AppendData 以 order 编码样本块，多字节元素按需翻转
func AppendData(dst []byte, d *Data, order Order) []byte {
	bo := order.Binary()
	dst = bo.AppendUint32(dst, uint32(d.Channels))
	dst = bo.AppendUint32(dst, uint32(d.Samples))
	dst = bo.AppendUint32(dst, uint32(d.DataType))
	dst = bo.AppendUint32(dst, uint32(len(d.Payload)))
	return appendOrdered(dst, d.Payload, d.DataType.Width(), d.Order, order)
}

// DecodeEvents 解析 PUT_EVT 消息体，逐条读取直到消息体耗尽
func DecodeEvents(body []byte, order Order) ([]Event, error) {
	r := newBodyReader(body, order)
	var events []Event
	for r.remaining() > 0 {
		if r.remaining() < eventFixedSize {
			return nil, malformed("truncated event definition (%d bytes)", r.remaining())
		}
		e := Event{Order: order}
		e.TypeType = DataType(r.u32())
		typeCount := uint64(r.u32())
		e.ValueType = DataType(r.u32())
		valueCount := uint64(r.u32())
		e.Sample = r.i32()
		e.Offset = r.i32()
		e.Duration = r.i32()
		size := uint64(r.u32())

		tw, vw := e.TypeType.Width(), e.ValueType.Width()
		if tw < 0 || vw < 0 {
			return nil, malformed("event with unknown data type (type %d, value %d)", uint32(e.TypeType), uint32(e.ValueType))
		}
		typeBytes := typeCount * uint64(tw)
		valueBytes := valueCount * uint64(vw)
		if size != typeBytes+valueBytes {
			return nil, malformed("event declares %d bytes, type+value need %d", size, typeBytes+valueBytes)
		}
		if size > uint64(r.remaining()) {
			return nil, malformed("event declares %d bytes, %d present", size, r.remaining())
		}
		e.TypeCount = int(typeCount)
		e.ValueCount = int(valueCount)
		e.Type = append([]byte(nil), r.bytes(int(typeBytes))...)
		e.Value = append([]byte(nil), r.bytes(int(valueBytes))...)
		events = append(events, e)
	}
	return events, nil
}

// AppendEvent 以 order 编码单个事件
func AppendEvent(dst []byte, e *Event, order Order) []byte {
	bo := order.Binary()
	dst = bo.AppendUint32(dst, uint32(e.TypeType))
	dst = bo.AppendUint32(dst, uint32(e.TypeCount))
	dst = bo.AppendUint32(dst, uint32(e.ValueType))
	dst = bo.AppendUint32(dst, uint32(e.ValueCount))
	dst = bo.AppendUint32(dst, uint32(e.Sample))
	dst = bo.AppendUint32(dst, uint32(e.Offset))
	dst = bo.AppendUint32(dst, uint32(e.Duration))
	dst = bo.AppendUint32(dst, uint32(len(e.Type)+len(e.Value)))
	dst = appendOrdered(dst, e.Type, e.TypeType.Width(), e.Order, order)
	return appendOrdered(dst, e.Value, e.ValueType.Width(), e.Order, order)
}

// AppendEvents 顺序编码多个事件
func AppendEvents(dst []byte, events []Event, order Order) []byte {
	for i := range events {
		dst = AppendEvent(dst, &events[i], order)
	}
	return dst
}

// DecodeRequest 解析 GET_DAT/GET_EVT 的区间请求，仅校验长度
func DecodeRequest(body []byte, order Order) (Request, error) {
	if len(body) != requestSize {
		return Request{}, malformed("request body %d bytes, need %d", len(body), requestSize)
	}
	r := newBodyReader(body, order)
	return Request{Begin: int(r.i32()), End: int(r.i32())}, nil
}

// AppendRequest 编码区间请求
func AppendRequest(dst []byte, req Request, order Order) []byte {
	bo := order.Binary()
	dst = bo.AppendUint32(dst, uint32(int32(req.Begin)))
	return bo.AppendUint32(dst, uint32(int32(req.End)))
}

// DecodeWaitRequest 解析 WAIT_DAT 消息体，仅校验长度
func DecodeWaitRequest(body []byte, order Order) (WaitRequest, error) {
	if len(body) != waitRequestSize {
		return WaitRequest{}, malformed("wait request body %d bytes, need %d", len(body), waitRequestSize)
	}
	r := newBodyReader(body, order)
	return WaitRequest{Samples: int(r.u32()), Events: int(r.u32()), Timeout: r.u32()}, nil
}

// AppendWaitRequest 编码等待请求
func AppendWaitRequest(dst []byte, req WaitRequest, order Order) []byte {
	bo := order.Binary()
	dst = bo.AppendUint32(dst, uint32(req.Samples))
	dst = bo.AppendUint32(dst, uint32(req.Events))
	return bo.AppendUint32(dst, req.Timeout)
}

// AppendWaitResponse 编码 WAIT_OK 消息体（当前样本数、事件数）
func AppendWaitResponse(dst []byte, samples, events int, order Order) []byte {
	bo := order.Binary()
	dst = bo.AppendUint32(dst, uint32(samples))
	return bo.AppendUint32(dst, uint32(events))
}

// DecodeWaitResponse 解析 WAIT_OK 消息体
func DecodeWaitResponse(body []byte, order Order) (samples, events int, _ error) {
	if len(body) != waitRespSize {
		return 0, 0, malformed("wait response body %d bytes, need %d", len(body), waitRespSize)
	}
	r := newBodyReader(body, order)
	return int(r.u32()), int(r.u32()), nil
}
