package transport

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrameThenReadFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	body := []byte(`{"op":"Get"}`)
	require.NoError(t, writeFrame(&buf, body))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestReadFrameRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte("XXXX"))
	binary.Write(&buf, binary.LittleEndian, uint32(0))

	_, err := readFrame(&buf)
	assert.Error(t, err)
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(frameMagic[:])
	binary.Write(&buf, binary.LittleEndian, uint32(maxFrameSize+1))

	_, err := readFrame(&buf)
	assert.ErrorIs(t, err, errMessageTooLarge)
}

func TestWriteFrameRejectsOversizeBody(t *testing.T) {
	var buf bytes.Buffer
	err := writeFrame(&buf, make([]byte, maxFrameSize+1))
	assert.ErrorIs(t, err, errMessageTooLarge)
}

func TestReadFrameReturnsEOFOnEmptyStream(t *testing.T) {
	_, err := readFrame(&bytes.Buffer{})
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameReturnsErrorOnTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(frameMagic[:])
	binary.Write(&buf, binary.LittleEndian, uint32(10))
	buf.Write([]byte("short"))

	_, err := readFrame(&buf)
	assert.Error(t, err)
}
