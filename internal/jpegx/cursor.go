package jpegx

import "encoding/binary"

// 以下是带边界检查的二进制读写小工具：扫描与写段共用，任何越界都返回 ok=false 而不是 panic。

// readU16BE 读取 buf[off:off+2] 的大端 uint16。
func readU16BE(buf []byte, off int) (uint16, bool) {
	if off < 0 || off+2 > len(buf) {
		return 0, false
	}
	return binary.BigEndian.Uint16(buf[off:]), true
}

// appendU16BE 把 v 以大端追加到 dst。
func appendU16BE(dst []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(dst, v)
}

// markerAt 判断 buf[off] 是否为 0xFF，并返回其后一个字节。
func markerAt(buf []byte, off int) (Marker, bool) {
	if off < 0 || off+2 > len(buf) || buf[off] != MarkerPrefix {
		return 0, false
	}
	return Marker(buf[off+1]), true
}

// hasPrefixAt 判断 buf[off:end] 是否以 prefix 开头。
// prefix 必须完整落在 [off, end) 且 end 不超过 len(buf)，否则视为不匹配。
func hasPrefixAt(buf []byte, off, end int, prefix []byte) bool {
	if off < 0 || end > len(buf) || off+len(prefix) > end {
		return false
	}
	for i, b := range prefix {
		if buf[off+i] != b {
			return false
		}
	}
	return true
}
