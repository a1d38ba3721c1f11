package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
)

// ErrVerify 表示合成结果不能再被当作 JPEG 正常解码。上层映射为 error_code=verify_failed。
var ErrVerify = errors.New("合成结果校验失败")

// VerifyMuxed 校验合成输出的 JPEG 头仍可解析，且尺寸与原图一致。
//
// 只读取头部（DecodeConfig，读到 SOF 即停止），不解码像素；
// 新插入的 APP1 段位于 SOF 之前，因此这里能发现段长度写坏之类的问题。
func VerifyMuxed(original, muxed []byte) error {
	if len(muxed) == 0 {
		return fmt.Errorf("%w：输出为空", ErrVerify)
	}

	want, err := jpeg.DecodeConfig(bytes.NewReader(original))
	if err != nil {
		// 原图本身解不开时无从比较，只要求输出能解码。
		want.Width, want.Height = -1, -1
	}

	got, err := jpeg.DecodeConfig(bytes.NewReader(muxed))
	if err != nil {
		return fmt.Errorf("%w：%v", ErrVerify, err)
	}

	if want.Width >= 0 && (got.Width != want.Width || got.Height != want.Height) {
		return fmt.Errorf("%w：尺寸变化 %dx%d -> %dx%d", ErrVerify, want.Width, want.Height, got.Width, got.Height)
	}
	return nil
}
