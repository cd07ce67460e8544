package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameMagic opens every binary-protocol frame so a peer can reject a
// stream that isn't actually speaking this protocol, distinct from a
// raw length-prefixed payload (spec §4.11 "a magic prefix followed by
// length-prefixed MessagePack frames").
var frameMagic = [4]byte{'S', 'D', 'B', 1}

// maxFrameSize bounds a single frame's MessagePack body; a declared
// length beyond this yields MessageTooLarge instead of an unbounded
// allocation (spec §4.11 "Max frame size is bounded").
const maxFrameSize = 64 << 20

// readFrame reads one magic+length+body frame from r. io.EOF is
// returned verbatim so callers can distinguish a clean connection close
// from a truncated frame.
func readFrame(r io.Reader) ([]byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:4]); err != nil {
		return nil, err
	}
	if header[0] != frameMagic[0] || header[1] != frameMagic[1] || header[2] != frameMagic[2] || header[3] != frameMagic[3] {
		return nil, fmt.Errorf("transport: bad frame magic")
	}
	if _, err := io.ReadFull(r, header[4:8]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > maxFrameSize {
		return nil, errMessageTooLarge
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// writeFrame writes one magic+length+body frame to w.
func writeFrame(w io.Writer, body []byte) error {
	if len(body) > maxFrameSize {
		return errMessageTooLarge
	}
	var header [8]byte
	copy(header[:4], frameMagic[:])
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

var errMessageTooLarge = fmt.Errorf("transport: frame exceeds maximum size")
