package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/John-Robertt/mpmux/internal/app"
	"github.com/John-Robertt/mpmux/internal/app/run"
	"github.com/John-Robertt/mpmux/internal/config"
	"github.com/John-Robertt/mpmux/internal/domain"
	"github.com/John-Robertt/mpmux/internal/infra/fsx"
	"github.com/John-Robertt/mpmux/internal/logger"
	"github.com/John-Robertt/mpmux/internal/motion"
	"github.com/John-Robertt/mpmux/internal/server"
	"github.com/mattn/go-isatty"
)

// version 在发布构建时通过 -ldflags "-X main.version=..." 注入。
var version = "dev"

// reportFileName 是批量运行写入 out 目录的报告文件（以 '.' 开头，扫描时会被忽略）。
const reportFileName = ".mpmux-report.json"

func main() {
	os.Exit(dispatch(os.Args[1:]))
}

func dispatch(args []string) int {
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return 0
	}

	switch args[0] {
	case "pair":
		return pairCmd(args[1:])
	case "run":
		return runCmd(args[1:])
	case "inspect":
		return inspectCmd(args[1:])
	case "serve":
		return serveCmd(args[1:])
	case "version":
		fmt.Fprintln(os.Stdout, version)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		return 2
	}
}

// ---- pair ----

type pairArgs struct {
	Image, Video, Out string
	Strict, Verify    bool
	Verbose           bool
}

func parsePairArgs(args []string) (pairArgs, error) {
	pa := pairArgs{}
	pos := make([]string, 0, 3)
	for _, a := range args {
		switch {
		case a == "--strict":
			pa.Strict = true
		case a == "--verify":
			pa.Verify = true
		case a == "--verbose" || a == "-v":
			pa.Verbose = true
		case strings.HasPrefix(a, "-"):
			return pairArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			pos = append(pos, a)
		}
	}
	if len(pos) != 3 {
		return pairArgs{}, fmt.Errorf("需要 3 个位置参数 <image> <video> <outdir>，实际 %d 个", len(pos))
	}
	pa.Image, pa.Video, pa.Out = pos[0], pos[1], pos[2]
	return pa, nil
}

func pairCmd(args []string) int {
	if hasHelp(args) {
		printPairUsage()
		return 0
	}
	pa, err := parsePairArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printPairUsage()
		return 2
	}

	level := config.DefaultLogLevel
	if pa.Verbose {
		level = "debug"
	}
	log := logger.NewLogger(level)

	res, err := run.MuxPair(pa.Image, pa.Video, pa.Out, run.PairOptions{Strict: pa.Strict, Verify: pa.Verify}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", pa.Image, app.ErrorCode(err), err.Error())
		return 1
	}
	fmt.Fprintf(os.Stdout, "%s\n", res.Dst)
	return 0
}

// ---- run ----

type runArgs struct {
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

	DryRun  bool
	Verbose bool
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]

		if v, ok, err := boolFlag(a, "--recursive"); ok {
			if err != nil {
				return runArgs{}, err
			}
			ra.Recursive, ra.RecursiveSet = v, true
			continue
		}
		if v, ok, err := boolFlag(a, "--copy-unpaired"); ok {
			if err != nil {
				return runArgs{}, err
			}
			ra.CopyUnpaired, ra.CopyUnpairedSet = v, true
			continue
		}
		if v, ok, err := boolFlag(a, "--strict"); ok {
			if err != nil {
				return runArgs{}, err
			}
			ra.Strict, ra.StrictSet = v, true
			continue
		}
		if v, ok, err := boolFlag(a, "--overwrite"); ok {
			if err != nil {
				return runArgs{}, err
			}
			ra.Overwrite, ra.OverwriteSet = v, true
			continue
		}
		if v, ok, err := boolFlag(a, "--verify"); ok {
			if err != nil {
				return runArgs{}, err
			}
			ra.Verify, ra.VerifySet = v, true
			continue
		}

		switch {
		case a == "--out":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--out 需要一个值")
			}
			i++
			ra.Out = args[i]
			ra.OutSet = true
		case strings.HasPrefix(a, "--out="):
			ra.Out = strings.TrimPrefix(a, "--out=")
			ra.OutSet = true
		case a == "--dry-run":
			ra.DryRun = true
		case a == "--verbose" || a == "-v":
			ra.Verbose = true
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.Path != "" {
				return runArgs{}, fmt.Errorf("重复的 path：%q 与 %q", ra.Path, a)
			}
			ra.Path = a
		}
	}

	if ra.OutSet && strings.TrimSpace(ra.Out) == "" {
		return runArgs{}, fmt.Errorf("--out 不能为空")
	}
	return ra, nil
}

// boolFlag 解析 --name 与 --name=true|false 两种写法。ok 表示 a 是否就是这个参数。
func boolFlag(a, name string) (v bool, ok bool, err error) {
	if a == name {
		return true, true, nil
	}
	if !strings.HasPrefix(a, name+"=") {
		return false, false, nil
	}
	raw := strings.TrimPrefix(a, name+"=")
	switch raw {
	case "true":
		return true, true, nil
	case "false":
		return false, true, nil
	default:
		return false, true, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, raw)
	}
}

func runCmd(args []string) int {
	if hasHelp(args) {
		printRunUsage()
		return 0
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:            ra.Path,
		Out:             ra.Out,
		OutSet:          ra.OutSet,
		Recursive:       ra.Recursive,
		RecursiveSet:    ra.RecursiveSet,
		CopyUnpaired:    ra.CopyUnpaired,
		CopyUnpairedSet: ra.CopyUnpairedSet,
		Strict:          ra.Strict,
		StrictSet:       ra.StrictSet,
		Overwrite:       ra.Overwrite,
		OverwriteSet:    ra.OverwriteSet,
		Verify:          ra.Verify,
		VerifySet:       ra.VerifySet,
		DryRun:          ra.DryRun,
		Verbose:         ra.Verbose,
	})
	if err != nil {
		rr := reportForConfigError(cwdAbs, ra, err)
		emitReport(rr)
		return 1
	}

	st, err := os.Stat(eff.Path)
	if err != nil || !st.IsDir() {
		fmt.Fprintf(os.Stderr, "%s: 输入目录不存在或不是目录：%s\n", domain.ErrCodeMissingInput, eff.Path)
		return 1
	}

	log := logger.NewLogger(eff.LogLevel)

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	// Ctrl-C：尚未开始的条目记为 canceled，已经在写的条目照常完成。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rr := run.ExecuteWithObserver(ctx, eff, log, obs)

	// dry-run 禁止落盘。
	if !eff.DryRun {
		if err := writeReportFile(eff.Out, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 %s 失败：%v\n", reportFileName, err)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	// 未配对文件只是提示信息，不影响退出码。
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

// ---- inspect ----

func inspectCmd(args []string) int {
	if hasHelp(args) {
		printInspectUsage()
		return 0
	}
	if len(args) != 1 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintf(os.Stderr, "参数错误：需要且只需要一个文件路径\n\n")
		printInspectUsage()
		return 2
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", domain.ErrCodeMissingInput, err)
		return 1
	}
	info, err := motion.Inspect(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", app.ErrorCode(err), err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(info)
	return 0
}

// ---- serve ----

func parseServeArgs(args []string) (config.ServeArgs, error) {
	sa := config.ServeArgs{}
	value := func(i *int, a, name string) (string, bool, error) {
		if a == name {
			if *i+1 >= len(args) {
				return "", true, fmt.Errorf("%s 需要一个值", name)
			}
			*i++
			return args[*i], true, nil
		}
		if strings.HasPrefix(a, name+"=") {
			return strings.TrimPrefix(a, name+"="), true, nil
		}
		return "", false, nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		if v, ok, err := value(&i, a, "--addr"); ok {
			if err != nil {
				return config.ServeArgs{}, err
			}
			sa.Addr, sa.AddrSet = v, true
			continue
		}
		if v, ok, err := value(&i, a, "--max-upload-mb"); ok {
			if err != nil {
				return config.ServeArgs{}, err
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return config.ServeArgs{}, fmt.Errorf("--max-upload-mb 必须是整数，实际是 %q", v)
			}
			sa.MaxUploadMB, sa.MaxUploadMBSet = n, true
			continue
		}
		if v, ok, err := value(&i, a, "--cors-origin"); ok {
			if err != nil {
				return config.ServeArgs{}, err
			}
			sa.CORSOrigins = append(sa.CORSOrigins, v)
			continue
		}
		switch a {
		case "--verbose", "-v":
			sa.Verbose = true
		default:
			return config.ServeArgs{}, fmt.Errorf("未知参数 %q", a)
		}
	}
	return sa, nil
}

func serveCmd(args []string) int {
	if hasHelp(args) {
		printServeUsage()
		return 0
	}
	sa, err := parseServeArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printServeUsage()
		return 2
	}
	sc, err := config.ResolveServe(sa, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	log := logger.NewLogger(sc.LogLevel)
	router := server.New(log, server.Options{
		MaxUploadBytes: sc.MaxUploadBytes,
		CORSOrigins:    sc.CORSOrigins,
		Version:        version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, sc.Addr, router, log); err != nil {
		log.Errorf("服务异常退出：%v", err)
		return 1
	}
	return 0
}

// ---- 公共 ----

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func hasHelp(args []string) bool {
	for _, a := range args {
		if isHelp(a) {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  mpmux pair <image> <video> <outdir> [--strict] [--verify] [--verbose]
  mpmux run [path] [--out DIR] [--recursive[=bool]] [--copy-unpaired[=bool]] [--dry-run] ...
  mpmux inspect <file>
  mpmux serve [--addr ADDR] [--max-upload-mb N] [--cors-origin ORIGIN]

命令：
  pair     合成一对图片 + 视频
  run      批量合成目录下按文件名配对的图片与视频
  inspect  查看 JPEG 的段结构与动态照片描述
  serve    启动 HTTP 合成服务
  version  打印版本

使用 "mpmux <命令> --help" 查看详细说明。
`)
}

func printPairUsage() {
	fmt.Fprint(os.Stdout, `用法：
  mpmux pair <image> <video> <outdir> [--strict] [--verify] [--verbose]

参数：
  --strict    图片已带动态照片描述时失败（默认剥离旧描述后重新合成）
  --verify    写出前校验结果仍可作为 JPEG 解析
  -v, --verbose  输出 debug 日志
  -h, --help  显示帮助

输出文件为 <outdir>/<图片文件名>；已存在则覆盖。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  mpmux run [path] [--out DIR] [--recursive[=true|false]] [--copy-unpaired[=true|false]]
            [--strict[=bool]] [--overwrite[=bool]] [--verify[=bool]] [--dry-run] [--verbose]

参数：
  --out            输出目录（默认 <path>/out；不能与 path 相同）
  --recursive      递归扫描子目录，并在输出目录下保留相对子目录
  --copy-unpaired  把未配对的文件原样拷贝到输出目录
  --strict         拒绝已带动态照片描述的图片
  --overwrite      覆盖已存在的输出（默认跳过）
  --verify         写出前校验结果仍可作为 JPEG 解析
  --dry-run        只规划与内存合成，不写任何文件
  -v, --verbose    输出 debug 日志
  -h, --help       显示帮助

未给 path 时读取 ./mpmux.json（必须包含 path）。
`)
}

func printInspectUsage() {
	fmt.Fprint(os.Stdout, `用法：
  mpmux inspect <file>

以 JSON 输出文件的 APPn 段列表、动态照片描述与视频偏移。
`)
}

func printServeUsage() {
	fmt.Fprint(os.Stdout, `用法：
  mpmux serve [--addr ADDR] [--max-upload-mb N] [--cors-origin ORIGIN]...

参数：
  --addr           监听地址（默认 :8080；未指定时读取环境变量 PORT）
  --max-upload-mb  单个请求体上限（默认 64）
  --cors-origin    允许的跨域来源，可重复；不指定则允许任意来源
  -v, --verbose    输出 debug 日志
`)
}

func summaryLine(rr domain.RunReport) string {
	s := rr.Summary
	return fmt.Sprintf("完成：processed=%d copied=%d planned=%d skipped=%d failed=%d unpaired=%d",
		s.Processed, s.Copied, s.Planned, s.Skipped, s.Failed, s.Unpaired,
	)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summaryLine(rr))
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := it.Key
				if key == "" {
					key = "<config>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(os.Stderr, summaryLine(rr))
}

func reportForConfigError(cwdAbs string, ra runArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.RunReport{
		Path:       cwdAbs,
		DryRun:     ra.DryRun,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(out string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(out, reportFileName, b)
}

func isTTY(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "out: %s\n", eff.Out)
	if !eff.DryRun {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Out, reportFileName))
	}
}
