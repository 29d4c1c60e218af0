package protocol

// SwapBytes 原地翻转 p 中每个 width 字节元素的字节序；width <= 1 时不做任何事。
// 尾部不足一个元素的字节保持不变。
func SwapBytes(p []byte, width int) {
	if width <= 1 {
		return
	}
	for off := 0; off+width <= len(p); off += width {
		e := p[off : off+width]
		for i, j := 0, width-1; i < j; i, j = i+1, j-1 {
			e[i], e[j] = e[j], e[i]
		}
	}
}

// appendOrdered 追加 p，若 from 与 to 字节序不同则按 width 翻转
func appendOrdered(dst, p []byte, width int, from, to Order) []byte {
	start := len(dst)
	dst = append(dst, p...)
	if from != to {
		SwapBytes(dst[start:], width)
	}
	return dst
}

// resolutionWidth 分辨率块每个通道一个 float64
const resolutionWidth = 8

// NormalizeChunk 将字节序敏感的块从 from 转换到 to；其它块原样返回
func NormalizeChunk(c Chunk, from, to Order) Chunk {
	if c.Type != ChunkResolutions || from == to {
		return c
	}
	data := append([]byte(nil), c.Data...)
	SwapBytes(data, resolutionWidth)
	return Chunk{Type: c.Type, Data: data}
}

// NormalizeData 将样本载荷原地转换到 to 字节序
func NormalizeData(d *Data, to Order) {
	if d.Order == to {
		return
	}
	SwapBytes(d.Payload, d.DataType.Width())
	d.Order = to
}

// NormalizeEvent 分别转换 type 与 value 字节；返回副本
func NormalizeEvent(e Event, to Order) Event {
	if e.Order == to {
		return e
	}
	e = e.Clone()
	SwapBytes(e.Type, e.TypeType.Width())
	SwapBytes(e.Value, e.ValueType.Width())
	e.Order = to
	return e
}
