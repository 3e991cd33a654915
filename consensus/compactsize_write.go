package consensus

// DecodeCompactSize decodes one Bitcoin-style CompactSize varint from the
// front of b, returning the value and the number of bytes it occupied. It
// rejects non-minimal encodings (a value that could have used a shorter
// prefix byte).
func DecodeCompactSize(b []byte) (uint64, int, error) {
	if len(b) < 1 {
		return 0, 0, txerr(TX_ERR_PARSE, "unexpected EOF (compactsize prefix)")
	}
	switch prefix := b[0]; {
	case prefix < 0xfd:
		return uint64(prefix), 1, nil
	case prefix == 0xfd:
		if len(b) < 3 {
			return 0, 0, txerr(TX_ERR_PARSE, "unexpected EOF (compactsize u16)")
		}
		off := 1
		v, err := readU16le(b, &off)
		if err != nil {
			return 0, 0, err
		}
		if v < 0xfd {
			return 0, 0, txerr(TX_ERR_PARSE, "non-minimal compactsize (u16)")
		}
		return uint64(v), off, nil
	case prefix == 0xfe:
		if len(b) < 5 {
			return 0, 0, txerr(TX_ERR_PARSE, "unexpected EOF (compactsize u32)")
		}
		off := 1
		v, err := readU32le(b, &off)
		if err != nil {
			return 0, 0, err
		}
		if v <= 0xffff {
			return 0, 0, txerr(TX_ERR_PARSE, "non-minimal compactsize (u32)")
		}
		return uint64(v), off, nil
	default:
		if len(b) < 9 {
			return 0, 0, txerr(TX_ERR_PARSE, "unexpected EOF (compactsize u64)")
		}
		off := 1
		v, err := readU64le(b, &off)
		if err != nil {
			return 0, 0, err
		}
		if v <= 0xffff_ffff {
			return 0, 0, txerr(TX_ERR_PARSE, "non-minimal compactsize (u64)")
		}
		return v, off, nil
	}
}

// AppendCompactSize encodes n in Bitcoin-style CompactSize and appends to dst.
func AppendCompactSize(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		dst = append(dst, 0xfd)
		return AppendU16le(dst, uint16(n))
	case n <= 0xffff_ffff:
		dst = append(dst, 0xfe)
		return AppendU32le(dst, uint32(n))
	default:
		dst = append(dst, 0xff)
		return AppendU64le(dst, n)
	}
}
