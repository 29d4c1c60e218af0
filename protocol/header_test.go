package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMessage_DetectsOrder(t *testing.T) {
	for _, order := range []Order{LittleEndian, BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			frame := AppendMessage(nil, order, GetDat, []byte{1, 2, 3})
			m, err := ReadMessage(bytes.NewReader(frame), 0)
			require.NoError(t, err)
			assert.Equal(t, order, m.Order)
			assert.Equal(t, GetDat, m.Type)
			assert.Equal(t, Version, m.Version)
			assert.Equal(t, []byte{1, 2, 3}, m.Body)
		})
	}
}

func TestDecodeHead_VersionBytes(t *testing.T) {
	// 00 01 => 大端；01 00 => 小端
	_, order, _, err := DecodeHead([]byte{0, 1, 2, 1, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, BigEndian, order)

	_, order, _, err = DecodeHead([]byte{1, 0, 1, 2, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, LittleEndian, order)
}

func TestReadMessage_VersionConflict(t *testing.T) {
	frame := []byte{0, 2, 0x02, 0x01, 0, 0, 0, 0}
	_, err := ReadMessage(bytes.NewReader(frame), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersion)
	assert.True(t, IsProtocolError(err))
}

func TestReadMessage_ConnectionErrors(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader(nil), 0)
	assert.True(t, IsConnectionError(err))
	assert.ErrorIs(t, err, io.EOF)

	_, err = ReadMessage(bytes.NewReader([]byte{1, 0, 1}), 0)
	assert.True(t, IsConnectionError(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	frame := AppendMessage(nil, LittleEndian, PutDat, make([]byte, 16))
	_, err = ReadMessage(bytes.NewReader(frame[:len(frame)-1]), 0)
	assert.True(t, IsConnectionError(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadMessage_TooLarge(t *testing.T) {
	frame := AppendMessage(nil, BigEndian, PutDat, make([]byte, 32))
	_, err := ReadMessage(bytes.NewReader(frame), 16)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestReadMessage_Sequential(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, LittleEndian, FlushDat, nil))
	require.NoError(t, WriteMessage(&buf, BigEndian, WaitDat, AppendWaitRequest(nil, WaitRequest{Samples: 1}, BigEndian)))

	m, err := ReadMessage(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, FlushDat, m.Type)
	assert.Empty(t, m.Body)

	m, err = ReadMessage(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, WaitDat, m.Type)
	assert.Equal(t, BigEndian, m.Order)
}

func TestAckAndErrorFor(t *testing.T) {
	assert.Equal(t, []byte{0, 1, 0x01, 0x04, 0, 0, 0, 0}, Ack(BigEndian, PutOK))
	assert.Equal(t, []byte{1, 0, 0x05, 0x04, 0, 0, 0, 0}, Ack(LittleEndian, WaitErr))

	assert.Equal(t, PutErr, ErrorFor(PutEvt))
	assert.Equal(t, GetErr, ErrorFor(GetHdr))
	assert.Equal(t, FlushErr, ErrorFor(FlushHdr))
	assert.Equal(t, WaitErr, ErrorFor(WaitDat))
	assert.Equal(t, MessageType(0), ErrorFor(GetOK))
	assert.False(t, MessageType(0x999).Known())
	assert.Equal(t, "WAIT_DAT", WaitDat.String())
}
