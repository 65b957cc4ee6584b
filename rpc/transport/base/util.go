package base

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/cockroachdb/errors"
)

// frameHeaderSize is shardId u64 | requestID u64 | length u32
const frameHeaderSize = 20

// ErrFrameTooLarge is returned when a peer announces a frame larger than
// the configured maximum.
var ErrFrameTooLarge = errors.New("transport: frame too large")

// writeFrame writes a frame to the connection with the format:
// - 8 bytes: shardId (uint64, big endian)
// - 8 bytes: requestID (uint64, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn net.Conn, shardID uint64, requestID uint64, data []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(header[:8], shardID)
	binary.BigEndian.PutUint64(header[8:16], requestID)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from the connection using the provided buffer.
// If the buffer is too small, it will allocate a new buffer for the data.
// maxBytes limits the payload size, 0 means no limit.
func readFrame(conn io.Reader, buf []byte, maxBytes int) (uint64, uint64, []byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return 0, 0, nil, err
	}

	shardID := binary.BigEndian.Uint64(header[:8])
	requestID := binary.BigEndian.Uint64(header[8:16])
	contentLength := int(binary.BigEndian.Uint32(header[16:20]))

	if maxBytes > 0 && contentLength > maxBytes {
		return shardID, requestID, nil, errors.Wrapf(ErrFrameTooLarge, "%d > %d bytes", contentLength, maxBytes)
	}

	// If no data, return empty slice
	if contentLength == 0 {
		return shardID, requestID, []byte{}, nil
	}

	if len(buf) < contentLength {
		buf = make([]byte, contentLength)
	}
	if _, err := io.ReadFull(conn, buf[:contentLength]); err != nil {
		return 0, 0, nil, err
	}
	return shardID, requestID, buf[:contentLength], nil
}
