package wire

// COBS (Consistent Overhead Byte Stuffing) removes zero bytes from a
// message so a single 0x00 can unambiguously mark the end of a frame on the
// wire -- the same framing scheme the original firmware uses, reimplemented
// here with encoding/binary-style manual byte math rather than a generic
// stream codec, since the hot path needs a static worst-case overhead bound.

// cobsEncode returns src encoded per COBS, without the trailing zero
// delimiter (callers append that when writing to the wire).
func cobsEncode(src []byte) []byte {
	dst := make([]byte, 0, len(src)+len(src)/254+1)
	codeIdx := len(dst)
	dst = append(dst, 0) // placeholder for the first code byte
	code := byte(1)

	for _, b := range src {
		if b == 0 {
			dst[codeIdx] = code
			codeIdx = len(dst)
			dst = append(dst, 0)
			code = 1
			continue
		}
		dst = append(dst, b)
		code++
		if code == 0xFF {
			dst[codeIdx] = code
			codeIdx = len(dst)
			dst = append(dst, 0)
			code = 1
		}
	}
	dst[codeIdx] = code
	return dst
}

// cobsDecode reverses cobsEncode. src must not include the trailing zero
// delimiter. Returns ErrCorruptEncoding if src is not validly COBS-encoded.
func cobsDecode(src []byte) ([]byte, error) {
	dst := make([]byte, 0, len(src))
	i := 0
	for i < len(src) {
		code := src[i]
		if code == 0 {
			return nil, ErrCorruptEncoding
		}
		i++
		end := i + int(code) - 1
		if end > len(src) {
			return nil, ErrCorruptEncoding
		}
		dst = append(dst, src[i:end]...)
		i = end
		if code != 0xFF && i < len(src) {
			dst = append(dst, 0)
		}
	}
	return dst, nil
}
