// Package jpegx 在内存缓冲区上做 JPEG 段级编辑：只识别 marker 与长度字段，不解释 payload，
// 也不解码像素。所有函数都是纯函数，输入缓冲区不会被修改。
package jpegx

import (
	"errors"
	"fmt"
)

// HeaderSize 是起始 marker（SOI）的字节数。
const HeaderSize = 2

// MaxSegmentLength 是段长度字段能表达的上限（长度字段计入自身 2 字节）。
const MaxSegmentLength = 0xFFFF

var (
	// ErrInvalidContainer 表示缓冲区不足 2 字节或不以 FF D8 开头。
	ErrInvalidContainer = errors.New("jpegx: 缺少 SOI 起始标记（不是 JPEG 容器）")
	// ErrSegmentTooLarge 表示要写入的段超过 MaxSegmentLength。
	ErrSegmentTooLarge = errors.New("jpegx: 段长度超过 65535")
)

// Segment 描述缓冲区内一个应用段的字节范围。
//
// 不变量：End = Start + 2 + Length，且 End <= len(buf)。
type Segment struct {
	Marker Marker
	Start  int // 0xFF 所在偏移
	Length int // 长度字段的值（含长度字段自身 2 字节）
	End    int // 段之后第一个字节的偏移
}

// PayloadStart 返回 payload 的起始偏移（marker 2 字节 + 长度字段 2 字节之后）。
func (s Segment) PayloadStart() int { return s.Start + 4 }

// Payload 返回段的 payload 切片（与 buf 共享底层数组，只读使用）。
func (s Segment) Payload(buf []byte) []byte {
	return buf[s.PayloadStart():s.End]
}

// HasPayloadPrefix 判断 payload 是否以 prefix 开头；prefix 必须完整落在段内。
func (s Segment) HasPayloadPrefix(buf []byte, prefix []byte) bool {
	return hasPrefixAt(buf, s.PayloadStart(), s.End, prefix)
}

// IsJPEG 判断 buf 是否以 SOI 起始标记开头。
func IsJPEG(buf []byte) bool {
	m, ok := markerAt(buf, 0)
	return ok && m == SOI
}

// Scanner 从 SOI 之后逐个产出应用段，遇到非应用段 marker、数据不足或段长度越界时停止。
// 停止点之后的字节（Tail）一律视为不透明数据，由调用方原样拷贝。
//
// Scanner 只读 buf；Reset 后可以重新遍历。
type Scanner struct {
	buf  []byte
	pos  int
	done bool
}

// NewScanner 校验起始标记并返回 Scanner。
func NewScanner(buf []byte) (*Scanner, error) {
	if !IsJPEG(buf) {
		return nil, fmt.Errorf("%w（len=%d）", ErrInvalidContainer, len(buf))
	}
	return &Scanner{buf: buf, pos: HeaderSize}, nil
}

// Next 返回下一个应用段；没有更多可分解的段时返回 false。
func (s *Scanner) Next() (Segment, bool) {
	if s.done {
		return Segment{}, false
	}
	seg, ok := s.segmentAt(s.pos)
	if !ok {
		s.done = true
		return Segment{}, false
	}
	s.pos = seg.End
	return seg, true
}

// Tail 返回分解停止的偏移：[Tail, len(buf)) 是需要原样保留的剩余数据。
// 在 Next 返回 false 之前调用，得到的是当前游标位置。
func (s *Scanner) Tail() int { return s.pos }

// Reset 把游标移回 SOI 之后。
func (s *Scanner) Reset() {
	s.pos = HeaderSize
	s.done = false
}

func (s *Scanner) segmentAt(p int) (Segment, bool) {
	// marker(2) + length(2) 至少需要 4 字节。
	if p+4 > len(s.buf) {
		return Segment{}, false
	}
	m, ok := markerAt(s.buf, p)
	if !ok || !m.IsApp() {
		return Segment{}, false
	}
	n, ok := readU16BE(s.buf, p+2)
	if !ok || n < 2 {
		return Segment{}, false
	}
	end := p + 2 + int(n)
	if end > len(s.buf) {
		// 声明长度越过缓冲区末尾：不分解，整段连同之后的数据留在 tail 里。
		return Segment{}, false
	}
	return Segment{Marker: m, Start: p, Length: int(n), End: end}, true
}

// Scan 一次性收集全部应用段，并返回 tail 偏移。
func Scan(buf []byte) ([]Segment, int, error) {
	sc, err := NewScanner(buf)
	if err != nil {
		return nil, 0, err
	}
	segs := make([]Segment, 0, 8)
	for {
		seg, ok := sc.Next()
		if !ok {
			break
		}
		segs = append(segs, seg)
	}
	return segs, sc.Tail(), nil
}
