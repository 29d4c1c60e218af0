package protocol

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataTypeWidth(t *testing.T) {
	want := map[DataType]int{
		Char: 1, Uint8: 1, Uint16: 2, Uint32: 4, Uint64: 8,
		Int8: 1, Int16: 2, Int32: 4, Int64: 8, Float32: 4, Float64: 8,
	}
	for dt, w := range want {
		assert.Equal(t, w, dt.Width(), dt.String())
	}
	assert.Equal(t, -1, DataType(11).Width())
	assert.Equal(t, -1, DataType(0xFFFFFFFF).Width())
}

func resolutions(order Order, vals ...float64) []byte {
	var b []byte
	for _, v := range vals {
		b = order.Binary().AppendUint64(b, math.Float64bits(v))
	}
	return b
}

func TestHeaderRoundTrip(t *testing.T) {
	for _, order := range []Order{LittleEndian, BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			h := &Header{
				Channels:   2,
				SampleRate: 250,
				DataType:   Float32,
				Order:      order,
				Chunks: []Chunk{
					NewChannelNamesChunk([]string{"Fz", "Cz"}),
					{Type: ChunkResolutions, Data: resolutions(order, 0.5, 2)},
					{Type: ChunkCTFRes4, Data: []byte{9, 8, 7}},
				},
			}
			got, err := DecodeHeader(AppendHeader(nil, h, order), order)
			require.NoError(t, err)
			if diff := cmp.Diff(h, got); diff != "" {
				t.Fatalf("header mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, []string{"Fz", "Cz"}, got.ChannelNames())
		})
	}
}

func TestAppendHeader_ReordersResolutions(t *testing.T) {
	h := &Header{
		Channels: 1,
		DataType: Int16,
		Order:    LittleEndian,
		Chunks: []Chunk{
			{Type: ChunkResolutions, Data: resolutions(LittleEndian, 0.25)},
			{Type: ChunkASCIIKeyVal, Data: []byte("a=1\x00")},
		},
	}
	got, err := DecodeHeader(AppendHeader(nil, h, BigEndian), BigEndian)
	require.NoError(t, err)
	require.Len(t, got.Chunks, 2)
	assert.Equal(t, 0.25, math.Float64frombits(binary.BigEndian.Uint64(got.Chunks[0].Data)))
	assert.Equal(t, []byte("a=1\x00"), got.Chunks[1].Data)
}

func headerBody(order Order, channels, samples, events uint32, dt DataType, chunkLen uint32, tail []byte) []byte {
	bo := order.Binary()
	var b []byte
	b = bo.AppendUint32(b, channels)
	b = bo.AppendUint32(b, samples)
	b = bo.AppendUint32(b, events)
	b = bo.AppendUint32(b, math.Float32bits(100))
	b = bo.AppendUint32(b, uint32(dt))
	b = bo.AppendUint32(b, chunkLen)
	return append(b, tail...)
}

func TestDecodeHeader_Errors(t *testing.T) {
	chunk := LittleEndian.Binary().AppendUint32(nil, uint32(ChunkChannelFlags))
	chunk = LittleEndian.Binary().AppendUint32(chunk, 2)
	chunk = append(chunk, 1, 2)

	tests := []struct {
		name string
		body []byte
	}{
		{"short", make([]byte, 10)},
		{"non-zero samples", headerBody(LittleEndian, 2, 1, 0, Int8, 0, nil)},
		{"non-zero events", headerBody(LittleEndian, 2, 0, 3, Int8, 0, nil)},
		{"zero channels", headerBody(LittleEndian, 0, 0, 0, Int8, 0, nil)},
		{"unknown data type", headerBody(LittleEndian, 2, 0, 0, DataType(42), 0, nil)},
		{"chunk length too large", headerBody(LittleEndian, 2, 0, 0, Int8, uint32(len(chunk)+1), chunk)},
		{"chunk length too small", headerBody(LittleEndian, 2, 0, 0, Int8, uint32(len(chunk)-1), chunk)},
		{"chunk size overflow", headerBody(LittleEndian, 2, 0, 0, Int8, uint32(len(chunk)), chunk[:8+1])},
		{"truncated chunk head", headerBody(LittleEndian, 2, 0, 0, Int8, 4, []byte{1, 0, 0, 0})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHeader(tt.body, LittleEndian)
			require.Error(t, err)
			assert.True(t, IsProtocolError(err), "got %v", err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeHeaderResponse_KeepsCounts(t *testing.T) {
	h := &Header{Channels: 3, DataType: Int32, Samples: 10, Events: 2, Order: BigEndian}
	got, err := DecodeHeaderResponse(AppendHeader(nil, h, BigEndian), BigEndian)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Samples)
	assert.Equal(t, 2, got.Events)

	_, err = DecodeHeader(AppendHeader(nil, h, BigEndian), BigEndian)
	assert.ErrorIs(t, err, ErrMalformed)
}

func seq(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func TestDataRoundTrip_SameOrder(t *testing.T) {
	for _, order := range []Order{LittleEndian, BigEndian} {
		d := &Data{Channels: 3, Samples: 4, DataType: Int16, Order: order, Payload: seq(3 * 4 * 2)}
		got, err := DecodeData(AppendData(nil, d, order), order)
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
}

func TestDataRoundTrip_OtherOrder(t *testing.T) {
	payload := seq(2 * 2 * 4)
	d := &Data{Channels: 2, Samples: 2, DataType: Float32, Order: LittleEndian, Payload: append([]byte(nil), payload...)}

	got, err := DecodeData(AppendData(nil, d, BigEndian), BigEndian)
	require.NoError(t, err)
	assert.Equal(t, BigEndian, got.Order)
	// 每个 4 字节元素被翻转
	assert.Equal(t, []byte{4, 3, 2, 1, 8, 7, 6, 5}, got.Payload[:8])
	assert.Equal(t, payload, d.Payload, "source payload must not be modified")

	NormalizeData(got, LittleEndian)
	assert.Equal(t, payload, got.Payload)
}

func TestDataRoundTrip_SingleByteNeverReordered(t *testing.T) {
	payload := seq(5 * 3)
	d := &Data{Channels: 3, Samples: 5, DataType: Uint8, Order: LittleEndian, Payload: payload}
	got, err := DecodeData(AppendData(nil, d, BigEndian), BigEndian)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Payload)
}

func dataBody(channels, samples uint32, dt DataType, declared uint32, payload []byte) []byte {
	bo := LittleEndian.Binary()
	var b []byte
	b = bo.AppendUint32(b, channels)
	b = bo.AppendUint32(b, samples)
	b = bo.AppendUint32(b, uint32(dt))
	b = bo.AppendUint32(b, declared)
	return append(b, payload...)
}

func TestDecodeData_Errors(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"short", make([]byte, 8)},
		{"declared too small", dataBody(2, 2, Int16, 7, make([]byte, 7))},
		{"declared too large", dataBody(2, 2, Int16, 9, make([]byte, 9))},
		{"missing bytes", dataBody(2, 2, Int16, 8, make([]byte, 7))},
		{"extra bytes", dataBody(2, 2, Int16, 8, make([]byte, 9))},
		{"unknown type", dataBody(2, 2, DataType(99), 8, make([]byte, 8))},
		{"overflow", dataBody(0xFFFFFFFF, 0xFFFFFFFF, Float64, 0, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeData(tt.body, LittleEndian)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEventsRoundTrip(t *testing.T) {
	events := []Event{
		{
			TypeType: Char, TypeCount: 8, Type: []byte("stimulus"),
			ValueType: Int32, ValueCount: 2, Value: seq(8),
			Sample: 100, Offset: -3, Duration: 12, Order: BigEndian,
		},
		{
			TypeType: Uint16, TypeCount: 1, Type: []byte{0, 7},
			ValueType: Float64, ValueCount: 0,
			Sample: 5, Order: BigEndian,
		},
	}
	got, err := DecodeEvents(AppendEvents(nil, events, BigEndian), BigEndian)
	require.NoError(t, err)
	if diff := cmp.Diff(events, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	// 跨字节序：type 与 value 各自按宽度翻转
	got, err = DecodeEvents(AppendEvents(nil, events, LittleEndian), LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, []byte("stimulus"), got[0].Type)
	assert.Equal(t, []byte{4, 3, 2, 1, 8, 7, 6, 5}, got[0].Value)
	assert.Equal(t, []byte{7, 0}, got[1].Type)
	assert.Equal(t, int32(-3), got[0].Offset)
}

func TestDecodeEvents_Empty(t *testing.T) {
	got, err := DecodeEvents(nil, LittleEndian)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func eventBody(tt, tc, vt, vc, size uint32, tail []byte) []byte {
	bo := LittleEndian.Binary()
	var b []byte
	for _, v := range []uint32{tt, tc, vt, vc, 0, 0, 0, size} {
		b = bo.AppendUint32(b, v)
	}
	return append(b, tail...)
}

func TestDecodeEvents_Errors(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"truncated definition", make([]byte, 20)},
		{"size mismatch", eventBody(uint32(Char), 2, uint32(Int16), 1, 5, make([]byte, 5))},
		{"missing payload", eventBody(uint32(Char), 2, uint32(Int16), 1, 4, make([]byte, 3))},
		{"unknown type type", eventBody(77, 1, uint32(Int8), 1, 2, make([]byte, 2))},
		{"unknown value type", eventBody(uint32(Int8), 1, 77, 1, 2, make([]byte, 2))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvents(tt.body, LittleEndian)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestRequests(t *testing.T) {
	req, err := DecodeRequest(AppendRequest(nil, Request{Begin: -1, End: 99}, BigEndian), BigEndian)
	require.NoError(t, err)
	assert.Equal(t, Request{Begin: -1, End: 99}, req)

	_, err = DecodeRequest(make([]byte, 7), BigEndian)
	assert.ErrorIs(t, err, ErrMalformed)

	wr := WaitRequest{Samples: 10, Events: 1000000, Timeout: 5000}
	gotWr, err := DecodeWaitRequest(AppendWaitRequest(nil, wr, LittleEndian), LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, wr, gotWr)

	_, err = DecodeWaitRequest(make([]byte, 8), LittleEndian)
	assert.ErrorIs(t, err, ErrMalformed)

	s, e, err := DecodeWaitResponse(AppendWaitResponse(nil, 42, 7, BigEndian), BigEndian)
	require.NoError(t, err)
	assert.Equal(t, 42, s)
	assert.Equal(t, 7, e)
}

func TestSwapBytes(t *testing.T) {
	p := []byte{1, 2, 3, 4, 5, 6, 7}
	SwapBytes(p, 2)
	assert.Equal(t, []byte{2, 1, 4, 3, 6, 5, 7}, p)

	p = []byte{1, 2, 3}
	SwapBytes(p, 1)
	assert.Equal(t, []byte{1, 2, 3}, p)
}

func TestNormalizeEvent_Independent(t *testing.T) {
	e := Event{TypeType: Int16, TypeCount: 1, Type: []byte{1, 2}, ValueType: Uint8, ValueCount: 2, Value: []byte{3, 4}, Order: BigEndian}
	n := NormalizeEvent(e, LittleEndian)
	assert.Equal(t, []byte{2, 1}, n.Type)
	assert.Equal(t, []byte{3, 4}, n.Value)
	assert.Equal(t, LittleEndian, n.Order)
	assert.Equal(t, []byte{1, 2}, e.Type, "source event must not be modified")
}
