//go:build unix

package fsx

import (
	"errors"
	"syscall"
)

// isEXDEV 识别 rename 跨文件系统失败；*os.LinkError 实现了 Unwrap，errors.Is 会穿透它。
func isEXDEV(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
