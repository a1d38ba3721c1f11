package jpegx

import "fmt"

// StripFunc 返回去掉所有 drop 命中的应用段之后的新缓冲区，以及被去掉的段数。
//
// 起始标记、未命中的段、tail 都按原相对顺序逐字节拷贝。输入不会被修改。
func StripFunc(buf []byte, drop func(buf []byte, seg Segment) bool) ([]byte, int, error) {
	sc, err := NewScanner(buf)
	if err != nil {
		return nil, 0, err
	}

	out := make([]byte, 0, len(buf))
	out = append(out, buf[:HeaderSize]...)

	removed := 0
	for {
		seg, ok := sc.Next()
		if !ok {
			break
		}
		if drop(buf, seg) {
			removed++
			continue
		}
		out = append(out, buf[seg.Start:seg.End]...)
	}
	out = append(out, buf[sc.Tail():]...)
	return out, removed, nil
}

// StripSignature 去掉 payload 以 sig 开头的应用段（例如 XMP 的命名空间前缀）。
// 相同 marker 但前缀不同的段（例如 APP1 的 EXIF）不会被去掉。
//
// 幂等：StripSignature(StripSignature(x)) 与 StripSignature(x) 相同。
func StripSignature(buf []byte, sig []byte) ([]byte, int, error) {
	return StripFunc(buf, func(buf []byte, seg Segment) bool {
		return seg.HasPayloadPrefix(buf, sig)
	})
}

// AppendSegment 把一个完整的段（FF marker + 大端长度 + payload）追加到 dst。
// 长度字段 = 2 + len(payload)，超过 MaxSegmentLength 时返回 ErrSegmentTooLarge 且不写入任何字节。
func AppendSegment(dst []byte, m Marker, payload []byte) ([]byte, error) {
	n := 2 + len(payload)
	if n > MaxSegmentLength {
		return dst, fmt.Errorf("%w（%s 需要 %d 字节）", ErrSegmentTooLarge, m.Name(), n)
	}
	dst = append(dst, MarkerPrefix, byte(m))
	dst = appendU16BE(dst, uint16(n))
	return append(dst, payload...), nil
}
