package main

import (
	"errors"
	"testing"

	"github.com/John-Robertt/mpmux/internal/config"
	"github.com/John-Robertt/mpmux/internal/domain"
)

func TestParseRunArgs(t *testing.T) {
	ra, err := parseRunArgs([]string{"/photos", "--out", "/dst", "--recursive=false", "--copy-unpaired", "--strict", "--dry-run", "-v"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ra.Path != "/photos" || ra.Out != "/dst" || !ra.OutSet {
		t.Fatalf("path/out 解析不正确：%+v", ra)
	}
	if ra.Recursive || !ra.RecursiveSet {
		t.Fatalf("--recursive=false 应显式关闭：%+v", ra)
	}
	if !ra.CopyUnpaired || !ra.CopyUnpairedSet || !ra.Strict || !ra.StrictSet {
		t.Fatalf("布尔参数解析不正确：%+v", ra)
	}
	if ra.OverwriteSet || ra.VerifySet {
		t.Fatalf("未出现的参数不应标记为已设置：%+v", ra)
	}
	if !ra.DryRun || !ra.Verbose {
		t.Fatalf("dry-run/verbose 解析不正确：%+v", ra)
	}

	ra, err = parseRunArgs([]string{"--out=rel/out", "--overwrite=true"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ra.Path != "" || ra.Out != "rel/out" || !ra.Overwrite {
		t.Fatalf("--out= 形式解析不正确：%+v", ra)
	}
}

func TestParseRunArgs_Errors(t *testing.T) {
	cases := [][]string{
		{"a", "b"},
		{"--out"},
		{"--out="},
		{"--recursive=yes"},
		{"--apply"},
	}
	for _, args := range cases {
		if _, err := parseRunArgs(args); err == nil {
			t.Fatalf("期望错误：%q", args)
		}
	}
}

func TestParsePairArgs(t *testing.T) {
	pa, err := parsePairArgs([]string{"IMG_1.jpg", "--strict", "IMG_1.mov", "out", "--verify"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if pa.Image != "IMG_1.jpg" || pa.Video != "IMG_1.mov" || pa.Out != "out" {
		t.Fatalf("位置参数解析不正确：%+v", pa)
	}
	if !pa.Strict || !pa.Verify || pa.Verbose {
		t.Fatalf("布尔参数解析不正确：%+v", pa)
	}

	if _, err := parsePairArgs([]string{"IMG_1.jpg", "IMG_1.mov"}); err == nil {
		t.Fatalf("缺少 outdir 应报错")
	}
	if _, err := parsePairArgs([]string{"a", "b", "c", "--force"}); err == nil {
		t.Fatalf("未知参数应报错")
	}
}

func TestParseServeArgs(t *testing.T) {
	sa, err := parseServeArgs([]string{"--addr", ":9000", "--max-upload-mb=16", "--cors-origin", "https://a.example", "--cors-origin=https://b.example"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if sa.Addr != ":9000" || !sa.AddrSet {
		t.Fatalf("addr 解析不正确：%+v", sa)
	}
	if sa.MaxUploadMB != 16 || !sa.MaxUploadMBSet {
		t.Fatalf("max-upload-mb 解析不正确：%+v", sa)
	}
	if len(sa.CORSOrigins) != 2 || sa.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors-origin 解析不正确：%+v", sa.CORSOrigins)
	}

	for _, args := range [][]string{{"--max-upload-mb", "x"}, {"--addr"}, {"--port", "1"}} {
		if _, err := parseServeArgs(args); err == nil {
			t.Fatalf("期望错误：%q", args)
		}
	}
}

func TestDispatch_UsageErrors(t *testing.T) {
	if got := dispatch([]string{"bogus"}); got != 2 {
		t.Fatalf("未知命令应返回 2，实际 %d", got)
	}
	if got := dispatch([]string{"pair", "only-one"}); got != 2 {
		t.Fatalf("pair 参数不足应返回 2，实际 %d", got)
	}
	if got := dispatch([]string{"inspect"}); got != 2 {
		t.Fatalf("inspect 缺少文件应返回 2，实际 %d", got)
	}
}

func TestReportForConfigError(t *testing.T) {
	err := &config.Error{Code: config.ErrCodeMissingPath, Path: "/cwd/mpmux.json"}
	rr := reportForConfigError("/cwd", runArgs{DryRun: true}, err)
	if !rr.DryRun || rr.Path != "/cwd" {
		t.Fatalf("report 头部不正确：%+v", rr)
	}
	if rr.Summary.Failed != 1 || len(rr.Items) != 1 {
		t.Fatalf("应只有一个失败条目：%+v", rr)
	}
	if rr.Items[0].ErrorCode != config.ErrCodeMissingPath || rr.Items[0].Key != "" {
		t.Fatalf("失败条目不正确：%+v", rr.Items[0])
	}

	rr = reportForConfigError("/cwd", runArgs{}, errors.New("boom"))
	if rr.Items[0].ErrorCode != domain.ErrCodeConfigInvalid {
		t.Fatalf("非 config.Error 应归为 config_invalid：%+v", rr.Items[0])
	}
}
