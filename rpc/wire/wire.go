// Package wire packs and unpacks the RPC runtime's fixed frame headers.
// It performs no validation; callers enforce bounds and buffer lengths.
package wire

import "encoding/binary"

// HeaderSize is the size in bytes of a request/response frame header.
const HeaderSize = 12

// StatusSize is the size in bytes of the reserved status field that
// precedes a response header on the wire.
const StatusSize = 4

// Header is the 12-byte request/response frame header: three
// little-endian u32 fields in this order.
type Header struct {
	MethodIndex   uint32
	MessageLength uint32
	RequestID     uint32
}

// Pack writes h into buf[0:12] in little-endian order. buf must have at
// least HeaderSize bytes.
func Pack(h Header, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.MethodIndex)
	binary.LittleEndian.PutUint32(buf[4:8], h.MessageLength)
	binary.LittleEndian.PutUint32(buf[8:12], h.RequestID)
}

// Unpack reads a Header from buf[0:12]. buf must have at least
// HeaderSize bytes.
func Unpack(buf []byte) Header {
	return Header{
		MethodIndex:   binary.LittleEndian.Uint32(buf[0:4]),
		MessageLength: binary.LittleEndian.Uint32(buf[4:8]),
		RequestID:     binary.LittleEndian.Uint32(buf[8:12]),
	}
}
