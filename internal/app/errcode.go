package app

import (
	"context"
	"errors"
	"os"

	"github.com/John-Robertt/mpmux/internal/domain"
	"github.com/John-Robertt/mpmux/internal/infra/fsx"
	"github.com/John-Robertt/mpmux/internal/infra/imgx"
	"github.com/John-Robertt/mpmux/internal/motion"
)

// ErrorCode 把合成链路上的错误映射为报告里的 error_code。
func ErrorCode(err error) string {
	var ie *InputError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ie):
		return ie.Code
	case errors.Is(err, motion.ErrInvalidContainer):
		return domain.ErrCodeInvalidContainer
	case errors.Is(err, motion.ErrPayloadTooLarge):
		return domain.ErrCodePayloadTooLarge
	case errors.Is(err, motion.ErrAlreadyTagged):
		return domain.ErrCodeAlreadyTagged
	case errors.Is(err, imgx.ErrVerify):
		return domain.ErrCodeVerifyFailed
	case fsx.IsPathTypeConflict(err):
		return domain.ErrCodeTargetConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.ErrCodeCanceled
	case errors.Is(err, os.ErrNotExist):
		return domain.ErrCodeMissingInput
	default:
		return domain.ErrCodeIOFailed
	}
}
