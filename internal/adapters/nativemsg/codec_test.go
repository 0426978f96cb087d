package nativemsg

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, map[string]string{"action": "test"}))

	frame, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"test"}`, string(frame))
}

func TestReadFrameLittleEndianLength(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"a":1}`)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(len(payload))))
	buf.Write(payload)

	frame, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, frame)
}

func TestReadFrameCleanEOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(100)))
	buf.WriteString("short")

	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}

func TestReadFrameOversized(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(maxInboundSize+1)))

	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}
