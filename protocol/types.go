package protocol

import (
	"encoding/binary"
	"fmt"
)

// Version 为服务端支持的协议版本
const Version uint16 = 1

// HeadSize 为帧头长度：version(2) + type(2) + bodyLen(4)
const HeadSize = 8

// MessageType 为帧头中的消息类型码
type MessageType uint16

const (
	PutHdr   MessageType = 0x101
	PutDat   MessageType = 0x102
	PutEvt   MessageType = 0x103
	PutOK    MessageType = 0x104
	PutErr   MessageType = 0x105
	GetHdr   MessageType = 0x201
	GetDat   MessageType = 0x202
	GetEvt   MessageType = 0x203
	GetOK    MessageType = 0x204
	GetErr   MessageType = 0x205
	FlushHdr MessageType = 0x301
	FlushDat MessageType = 0x302
	FlushEvt MessageType = 0x303
	FlushOK  MessageType = 0x304
	FlushErr MessageType = 0x305
	WaitDat  MessageType = 0x402
	WaitOK   MessageType = 0x404
	WaitErr  MessageType = 0x405
)

var messageTypeNames = map[MessageType]string{
	PutHdr: "PUT_HDR", PutDat: "PUT_DAT", PutEvt: "PUT_EVT", PutOK: "PUT_OK", PutErr: "PUT_ERR",
	GetHdr: "GET_HDR", GetDat: "GET_DAT", GetEvt: "GET_EVT", GetOK: "GET_OK", GetErr: "GET_ERR",
	FlushHdr: "FLUSH_HDR", FlushDat: "FLUSH_DAT", FlushEvt: "FLUSH_EVT", FlushOK: "FLUSH_OK", FlushErr: "FLUSH_ERR",
	WaitDat: "WAIT_DAT", WaitOK: "WAIT_OK", WaitErr: "WAIT_ERR",
}

func (t MessageType) String() string {
	if s, ok := messageTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("MessageType(0x%03x)", uint16(t))
}

// Known 报告类型码是否属于协议定义的集合
func (t MessageType) Known() bool {
	_, ok := messageTypeNames[t]
	return ok
}

// DataType 为样本/事件元素的数据类型码
type DataType uint32

const (
	Char DataType = iota
	Uint8
	Uint16
	Uint32
	Uint64
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
)

var dataTypeWidths = [...]int{1, 1, 2, 4, 8, 1, 2, 4, 8, 4, 8}

var dataTypeNames = [...]string{
	"char", "uint8", "uint16", "uint32", "uint64",
	"int8", "int16", "int32", "int64", "float32", "float64",
}

// Width 返回单个元素的字节宽度；未知类型返回 -1，调用方需视为解码失败
func (t DataType) Width() int {
	if int(t) >= len(dataTypeWidths) {
		return -1
	}
	return dataTypeWidths[t]
}

func (t DataType) String() string {
	if int(t) >= len(dataTypeNames) {
		return fmt.Sprintf("DataType(%d)", uint32(t))
	}
	return dataTypeNames[t]
}

// ChunkType 为头部扩展块类型码
type ChunkType uint32

const (
	ChunkUnknown ChunkType = iota
	ChunkChannelNames
	ChunkChannelFlags
	ChunkResolutions
	ChunkASCIIKeyVal
	ChunkNifti1
	ChunkSiemensAP
	ChunkCTFRes4
	ChunkNeuromagFIF
	ChunkNeuromagIsotrak
	ChunkNeuromagHPIResult
)

// Order 表示一条消息或一段载荷的字节序
type Order uint8

const (
	LittleEndian Order = iota
	BigEndian
)

// NativeOrder 为本机字节序，存储层统一归一到此字节序
var NativeOrder = func() Order {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 1)
	if b[0] == 1 {
		return LittleEndian
	}
	return BigEndian
}()

// ByteOrder 同时支持读写与追加编码
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Binary 返回对应的 encoding/binary 实现
func (o Order) Binary() ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (o Order) String() string {
	if o == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

// Chunk 为头部附带的扩展块，载荷对服务端不透明（分辨率块除外）
type Chunk struct {
	Type ChunkType
	Data []byte
}

// Header 描述当前采集流：通道数、采样率、数据类型与扩展块
type Header struct {
	Channels   int
	SampleRate float32
	DataType   DataType
	Samples    int
	Events     int
	Chunks     []Chunk
	Order      Order
}

// Clone 深拷贝
func (h *Header) Clone() *Header {
	c := *h
	c.Chunks = make([]Chunk, len(h.Chunks))
	for i, ch := range h.Chunks {
		c.Chunks[i] = Chunk{Type: ch.Type, Data: append([]byte(nil), ch.Data...)}
	}
	return &c
}

// ChannelNames 解析通道名块（以 NUL 分隔）；无该块时返回 nil
func (h *Header) ChannelNames() []string {
	if h.Channels <= 0 {
		return nil
	}
	for _, ch := range h.Chunks {
		if ch.Type != ChunkChannelNames {
			continue
		}
		names := make([]string, h.Channels)
		n, start := 0, 0
		for pos, b := range ch.Data {
			if b != 0 {
				continue
			}
			names[n] = string(ch.Data[start:pos])
			start = pos + 1
			if n++; n == h.Channels {
				break
			}
		}
		return names
	}
	return nil
}

// NewChannelNamesChunk 构造通道名块
func NewChannelNamesChunk(names []string) Chunk {
	var data []byte
	for _, n := range names {
		data = append(data, n...)
		data = append(data, 0)
	}
	return Chunk{Type: ChunkChannelNames, Data: data}
}

// Data 为一块样本：Payload 按 [sample][channel][byte] 顺序展平
type Data struct {
	Channels int
	Samples  int
	DataType DataType
	Order    Order
	Payload  []byte
}

// RecordSize 返回单个样本（所有通道）的字节数
func (d *Data) RecordSize() int { return d.Channels * d.DataType.Width() }

// Sample 返回第 i 个样本的原始字节视图
func (d *Data) Sample(i int) []byte {
	n := d.RecordSize()
	return d.Payload[i*n : (i+1)*n]
}

// Event 为一个带类型的 type/value 对，附带样本位置信息
type Event struct {
	TypeType   DataType
	TypeCount  int
	Type       []byte
	ValueType  DataType
	ValueCount int
	Value      []byte
	Sample     int32
	Offset     int32
	Duration   int32
	Order      Order
}

// Clone 深拷贝
func (e Event) Clone() Event {
	e.Type = append([]byte(nil), e.Type...)
	e.Value = append([]byte(nil), e.Value...)
	return e
}

// Request 为闭区间 [Begin, End] 的索引请求
type Request struct {
	Begin int
	End   int
}

// WaitRequest 请求阻塞直到样本数或事件数达到阈值，或超时（毫秒）
type WaitRequest struct {
	Samples int
	Events  int
	Timeout uint32
}

// Message 为一条已读出的帧
type Message struct {
	Version uint16
	Type    MessageType
	Order   Order
	Body    []byte
}
