package sftpproto

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// headerLenFieldSize is the width in bytes of the header_len field in
// the reserved framing (spec §6): byte 0 is opcode, bytes 1-2 are a
// big-endian u16 header length.
const headerLenFieldSize = 2

// Pack encodes the reserved binary framing: opcode, then a
// 2-byte-big-endian length-prefixed JSON header, then raw data.
func Pack(opcode byte, header map[string]interface{}, data []byte) ([]byte, error) {
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	if len(headerBytes) > 0xFFFF {
		return nil, fmt.Errorf("header too large: %d bytes", len(headerBytes))
	}

	buf := make([]byte, 0, 1+headerLenFieldSize+len(headerBytes)+len(data))
	buf = append(buf, opcode)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(headerBytes)))
	buf = append(buf, headerBytes...)
	buf = append(buf, data...)
	return buf, nil
}

// Unpack decodes a frame produced by Pack. The original Python
// implementation this is reserved from read the length field as
// data[offset:3] instead of data[offset:offset+2], an off-by-one that
// only happened to work while offset was 1; Unpack reads the full
// 2-byte field at its correct position so pack/unpack round-trips for
// every valid input (spec §8 testable property 7), rather than
// reproducing that bug.
func Unpack(frame []byte) (opcode byte, header map[string]interface{}, data []byte, err error) {
	if len(frame) < 1+headerLenFieldSize {
		return 0, nil, nil, fmt.Errorf("frame too short: %d bytes", len(frame))
	}

	opcode = frame[0]
	headerLen := binary.BigEndian.Uint16(frame[1 : 1+headerLenFieldSize])

	headerStart := 1 + headerLenFieldSize
	headerEnd := headerStart + int(headerLen)
	if headerEnd > len(frame) {
		return 0, nil, nil, fmt.Errorf("header length %d exceeds frame size", headerLen)
	}

	header = make(map[string]interface{})
	if headerLen > 0 {
		if err := json.Unmarshal(frame[headerStart:headerEnd], &header); err != nil {
			return 0, nil, nil, fmt.Errorf("unmarshal header: %w", err)
		}
	}

	data = frame[headerEnd:]
	return opcode, header, data, nil
}
