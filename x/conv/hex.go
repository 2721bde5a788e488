package conv

const hexd = "0123456789ABCDEF"

// AppendHex appends src as uppercase hex, two digits per byte, no separators.
func AppendHex(dst, src []byte) []byte {
	for _, b := range src {
		dst = append(dst, hexd[b>>4], hexd[b&0x0F])
	}
	return dst
}

// AppendHexByte appends a single byte as two uppercase hex digits.
func AppendHexByte(dst []byte, b byte) []byte {
	return append(dst, hexd[b>>4], hexd[b&0x0F])
}
