package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/John-Robertt/mpmux/internal/domain"
	"github.com/John-Robertt/mpmux/internal/scan"
)

// InputError 表示输入在进入合成前就不合法（文件缺失/扩展名不对）。
type InputError struct {
	Code string // domain.ErrCodeMissingInput | domain.ErrCodeUnsupportedExtension
	Path string
	Err  error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Path)
}

func (e *InputError) Unwrap() error { return e.Err }

// ValidatePair 校验单对输入：两个文件必须存在且是普通文件，扩展名必须匹配各自角色。
func ValidatePair(imagePath, videoPath string) error {
	if err := validateOne(imagePath, domain.KindImage); err != nil {
		return err
	}
	return validateOne(videoPath, domain.KindVideo)
}

func validateOne(path string, want domain.MediaKind) error {
	st, err := os.Stat(path)
	if err != nil {
		// 不存在与无权限 stat 都按缺失处理：调用方无法读取它。
		return &InputError{Code: domain.ErrCodeMissingInput, Path: path, Err: err}
	}
	if !st.Mode().IsRegular() {
		return &InputError{Code: domain.ErrCodeMissingInput, Path: path, Err: errors.New("不是普通文件")}
	}
	if scan.KindOf(filepath.Ext(path)) != want {
		return &InputError{Code: domain.ErrCodeUnsupportedExtension, Path: path}
	}
	return nil
}
