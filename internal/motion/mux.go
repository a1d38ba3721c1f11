// Package motion 把一张 JPEG 与一段视频合成为“动态照片”：
// 在 SOI 之后插入描述视频偏移的 XMP 段，再把视频原样追加到文件末尾。
//
// 本包不做任何 I/O、不打日志、不读全局状态；所有函数可以在多个 goroutine 中对各自的缓冲区并发调用。
package motion

import (
	"errors"
	"fmt"

	"github.com/John-Robertt/mpmux/internal/jpegx"
)

var (
	// ErrInvalidContainer 表示图片不以 SOI 开头。
	ErrInvalidContainer = jpegx.ErrInvalidContainer
	// ErrPayloadTooLarge 表示描述段会超过单段 65535 字节的上限。
	ErrPayloadTooLarge = errors.New("motion: 描述段超过 65535 字节上限")
	// ErrAlreadyTagged 表示 strict 模式下输入已经带有动态照片描述。
	ErrAlreadyTagged = errors.New("motion: 图片已包含动态照片描述（strict 模式拒绝重复合成）")
)

// Options 控制 MuxWithOptions 的行为。
type Options struct {
	// Strict 为 true 时拒绝已带描述的图片，而不是剥离旧描述后按当前图片大小重新计算偏移。
	Strict bool
}

// Result 是一次合成的结果。
type Result struct {
	Data        []byte
	VideoOffset int64
	// Removed 是从原图中剥离的旧 XMP 段数量。
	Removed int
}

// Mux 合成动态照片，等价于 MuxWithOptions(image, video, Options{})。
func Mux(image, video []byte) ([]byte, error) {
	r, err := MuxWithOptions(image, video, Options{})
	if err != nil {
		return nil, err
	}
	return r.Data, nil
}

// MuxWithOptions 合成动态照片。
//
// 输出布局：FF D8 | FF E1 | 长度(BE16) | Signature + 描述 | 剥离旧 XMP 后的原图（去掉其 SOI）| video。
//
// 注意：对已经合成过的文件再次合成时，旧描述会被剥离，但偏移仍按 len(video) 计算；
// “原图大小”此时包含旧视频数据。需要严格偏移语义的调用方请开启 Strict。
func MuxWithOptions(image, video []byte, opts Options) (Result, error) {
	if !jpegx.IsJPEG(image) {
		return Result{}, fmt.Errorf("%w（len=%d）", ErrInvalidContainer, len(image))
	}

	videoOffset := int64(len(video))
	return assemble(image, video, descriptorPayload(videoOffset), videoOffset, opts)
}

func assemble(image, video, payload []byte, videoOffset int64, opts Options) (Result, error) {
	// 长度检查必须先于任何拼接。
	segLen := 2 + len(payload)
	if segLen > jpegx.MaxSegmentLength {
		return Result{}, fmt.Errorf("%w（需要 %d 字节）", ErrPayloadTooLarge, segLen)
	}

	if opts.Strict && IsTagged(image) {
		return Result{}, ErrAlreadyTagged
	}

	stripped, removed, err := jpegx.StripSignature(image, Signature)
	if err != nil {
		return Result{}, err
	}

	out := make([]byte, 0, jpegx.HeaderSize+4+len(payload)+len(stripped)-jpegx.HeaderSize+len(video))
	out = append(out, stripped[:jpegx.HeaderSize]...)
	out, err = jpegx.AppendSegment(out, jpegx.APP1, payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrPayloadTooLarge, err)
	}
	out = append(out, stripped[jpegx.HeaderSize:]...)
	out = append(out, video...)

	return Result{Data: out, VideoOffset: videoOffset, Removed: removed}, nil
}
