package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusCopied    = "copied"
	StatusPlanned   = "planned"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusUnpaired  = "unpaired"
)

const (
	ErrCodeInvalidContainer     = "invalid_container"
	ErrCodePayloadTooLarge      = "payload_too_large"
	ErrCodeAlreadyTagged        = "already_tagged"
	ErrCodeMissingInput         = "missing_input"
	ErrCodeUnsupportedExtension = "unsupported_extension"
	ErrCodeVerifyFailed         = "verify_failed"
	ErrCodeTargetConflict       = "target_conflict"
	ErrCodeIOFailed             = "io_failed"
	ErrCodeCanceled             = "canceled"
	ErrCodeUnpaired             = "unpaired"
	ErrCodeConfigNotFound       = "config_not_found"
	ErrCodeConfigInvalid        = "config_invalid"
	ErrCodeConfigMissingPath    = "config_missing_path"
)

// RunReport 是对外稳定输出（stdout JSON）的结构。
type RunReport struct {
	Path   string `json:"path"`
	Out    string `json:"out"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Copied    int `json:"copied"`
	Planned   int `json:"planned"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Unpaired  int `json:"unpaired"`
}

type ItemResult struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`

	Image string `json:"image"`
	Video string `json:"video"`
	Dst   string `json:"dst"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	VideoOffset int64 `json:"video_offset"`
	// Removed 是从原图剥离的旧 XMP 段数量（>0 说明是重复合成或原图自带 XMP）。
	Removed int `json:"removed"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 key 字典序；key=="" 的条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Key
		b := r.Items[j].Key
		if a == "" && b == "" {
			return false
		}
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusCopied:
			s.Copied++
		case StatusPlanned:
			s.Planned++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusUnpaired:
			s.Unpaired++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
