package consensus

import "encoding/binary"

func appendU16le(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

func appendU32le(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

func appendU64le(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendU16le, AppendU32le and AppendU64le are the exported append helpers
// used by the tx/block marshalling layer; they share the same little-endian
// wire format as their unexported counterparts above.
func AppendU16le(dst []byte, v uint16) []byte { return appendU16le(dst, v) }
func AppendU32le(dst []byte, v uint32) []byte { return appendU32le(dst, v) }
func AppendU64le(dst []byte, v uint64) []byte { return appendU64le(dst, v) }

// appendCompactSize is the unexported alias used by lower-level tests.
func appendCompactSize(dst []byte, n uint64) []byte { return AppendCompactSize(dst, n) }
