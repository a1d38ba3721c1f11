package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 mpmux.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	// FileName 是配置文件名（固定）。
	FileName = "mpmux.json"
	// DefaultConcurrency 是并发的内置默认值（当配置未指定时）。
	DefaultConcurrency = 4
	// DefaultOutDirName 是 out 未指定时在 path 下使用的输出目录名。
	DefaultOutDirName = "out"
	// DefaultLogLevel 是日志级别的内置默认值。
	DefaultLogLevel = "info"
)

// CLIArgs 是 run 子命令暴露的入口参数，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --recursive=false 必须能覆盖 config.recursive=true。
type CLIArgs struct {
	Path string

	Out    string
	OutSet bool

	Recursive    bool
	RecursiveSet bool

	CopyUnpaired    bool
	CopyUnpairedSet bool

	Strict    bool
	StrictSet bool

	Overwrite    bool
	OverwriteSet bool

	Verify    bool
	VerifySet bool

	// DryRun 只由 CLI 控制（配置文件里不提供，避免“忘了改回来”）。
	DryRun bool
	// Verbose=true 时日志级别强制为 debug。
	Verbose bool
}

// FileConfig 对应 mpmux.json 的解析结构。布尔字段用指针区分“未写”与“写了 false”。
type FileConfig struct {
	Path         string   `json:"path"`
	Out          string   `json:"out"`
	Recursive    *bool    `json:"recursive"`
	CopyUnpaired *bool    `json:"copy_unpaired"`
	Strict       *bool    `json:"strict"`
	Overwrite    *bool    `json:"overwrite"`
	Verify       *bool    `json:"verify"`
	Concurrency  int      `json:"concurrency"`
	ExcludeDirs  []string `json:"exclude_dirs"`
	LogLevel     string   `json:"log_level"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path string
	Out  string

	Recursive    bool
	CopyUnpaired bool
	Strict       bool
	Overwrite    bool
	Verify       bool
	DryRun       bool

	Concurrency int
	ExcludeDirs []string
	LogLevel    string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/mpmux.json（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/mpmux.json（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：
// - 各布尔开关与 out：CLI 显式指定 > config > 默认
// - concurrency/exclude_dirs/log_level：仅由 config 控制（--verbose 例外，强制 debug）
//
// 相对路径：CLI 给出的相对 cwd；配置文件里的相对配置文件所在目录。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		// CLI 给了 path：配置文件可选，位置固定在 <path>/mpmux.json。
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath := filepath.Join(absPath, FileName)

		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(cwdAbs, absPath, cli, fc, cfgPath)
	}

	// CLI 没给 path：必须读取 <cwd>/mpmux.json，且其中必须包含 path。
	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	absPath := absCleanFrom(cwdAbs, fc.Path)
	return merge(cwdAbs, absPath, cli, fc, cfgPath)
}

func merge(cwdAbs, absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	cfgDir := filepath.Dir(cfgPath)

	// out：CLI > config > <path>/out
	out := filepath.Join(absPath, DefaultOutDirName)
	if cli.OutSet && strings.TrimSpace(cli.Out) != "" {
		out = absCleanFrom(cwdAbs, cli.Out)
	} else if strings.TrimSpace(fc.Out) != "" {
		out = absCleanFrom(cfgDir, fc.Out)
	}
	if out == absPath {
		// 输出会与输入同名，合成结果将覆盖原图。
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("out 不能与 path 相同：%q", out)}
	}

	concurrency := fc.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 范围 [1, 32]；超出截断。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 32 {
		concurrency = 32
	}

	level := strings.ToLower(strings.TrimSpace(fc.LogLevel))
	if level == "" {
		level = DefaultLogLevel
	}
	if err := validateLogLevel(level); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if cli.Verbose {
		level = "debug"
	}

	return EffectiveConfig{
		Path:         absPath,
		Out:          out,
		Recursive:    pick(cli.Recursive, cli.RecursiveSet, fc.Recursive, false),
		CopyUnpaired: pick(cli.CopyUnpaired, cli.CopyUnpairedSet, fc.CopyUnpaired, false),
		Strict:       pick(cli.Strict, cli.StrictSet, fc.Strict, false),
		Overwrite:    pick(cli.Overwrite, cli.OverwriteSet, fc.Overwrite, false),
		Verify:       pick(cli.Verify, cli.VerifySet, fc.Verify, false),
		DryRun:       cli.DryRun,
		Concurrency:  concurrency,
		ExcludeDirs:  append([]string(nil), fc.ExcludeDirs...),
		LogLevel:     level,
	}, nil
}

// pick 实现 CLI > config > 默认 的布尔合并。
func pick(cliVal, cliSet bool, fileVal *bool, def bool) bool {
	if cliSet {
		return cliVal
	}
	if fileVal != nil {
		return *fileVal
	}
	return def
}

func validateLogLevel(l string) error {
	switch l {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("log_level 只能是 debug/info/warn/error，实际是 %q", l)
	}
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

const (
	DefaultAddr        = ":8080"
	DefaultMaxUploadMB = 64
)

// ServeArgs 是 serve 子命令的入口参数。
type ServeArgs struct {
	Addr    string
	AddrSet bool

	MaxUploadMB    int
	MaxUploadMBSet bool

	CORSOrigins []string
	Verbose     bool
}

// ServeConfig 是 HTTP 服务的最终配置。
type ServeConfig struct {
	Addr           string
	MaxUploadBytes int64
	CORSOrigins    []string
	LogLevel       string
}

// ResolveServe 合并 serve 参数：--addr > 环境变量 PORT > :8080。
func ResolveServe(args ServeArgs, getenv func(string) string) (ServeConfig, error) {
	addr := DefaultAddr
	if args.AddrSet && strings.TrimSpace(args.Addr) != "" {
		addr = strings.TrimSpace(args.Addr)
	} else if port := strings.TrimSpace(getenv("PORT")); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return ServeConfig{}, &Error{Code: ErrCodeInvalid, Path: "PORT", Err: fmt.Errorf("PORT 不是数字：%q", port)}
		}
		addr = ":" + port
	}

	mb := DefaultMaxUploadMB
	if args.MaxUploadMBSet {
		mb = args.MaxUploadMB
	}
	if mb < 1 {
		return ServeConfig{}, &Error{Code: ErrCodeInvalid, Path: "--max-upload-mb", Err: fmt.Errorf("必须 >= 1，实际 %d", mb)}
	}

	level := DefaultLogLevel
	if args.Verbose {
		level = "debug"
	}

	return ServeConfig{
		Addr:           addr,
		MaxUploadBytes: int64(mb) << 20,
		CORSOrigins:    append([]string(nil), args.CORSOrigins...),
		LogLevel:       level,
	}, nil
}
