package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/mpmux/internal/app"
	"github.com/John-Robertt/mpmux/internal/app/planner"
	"github.com/John-Robertt/mpmux/internal/config"
	"github.com/John-Robertt/mpmux/internal/domain"
	"github.com/John-Robertt/mpmux/internal/infra/fsx"
	"github.com/John-Robertt/mpmux/internal/infra/imgx"
	"github.com/John-Robertt/mpmux/internal/logger"
	"github.com/John-Robertt/mpmux/internal/motion"
	"github.com/John-Robertt/mpmux/internal/scan"
)

// Execute 执行一次批量合成（含 dry-run），并返回对外稳定的 RunReport。
// 错误尽量“降级”为 item 级失败：单对失败不影响其他对，也不自动重试。
func Execute(ctx context.Context, eff config.EffectiveConfig, log logger.Logger) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, log, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, log logger.Logger, obs Observer) domain.RunReport {
	if log == nil {
		log = logger.Nop()
	}
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		Path:      eff.Path,
		Out:       eff.Out,
		DryRun:    eff.DryRun,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 128),
	}

	if eff.Out == "" {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, "未指定输出目录"))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	// 输出目录位于输入树内时必须排除，否则下一次运行会把结果当作输入。
	exclude := append(append([]string(nil), eff.ExcludeDirs...), eff.Out)

	scanStarted := time.Now()
	files, err := scan.ScanMedia(eff.Path, eff.Recursive, exclude)
	if err != nil {
		log.Errorf("扫描失败：%v", err)
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err)))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	scanDur := time.Since(scanStarted)
	log.Debugf("扫描完成：files=%d path=%s", len(files), eff.Path)

	pairStarted := time.Now()
	pairs, unpaired := app.PairFiles(files)
	pairDur := time.Since(pairStarted)

	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{
			"files": len(files),
		}, scanDur)
		obs.OnPhaseDone("pair", map[string]any{
			"pairs":    len(pairs),
			"unpaired": len(unpaired),
		}, pairDur)
	}

	planStarted := time.Now()
	pl := planner.New(eff.Out, planner.Options{Recursive: eff.Recursive, Overwrite: eff.Overwrite})
	plans := make([]domain.ItemPlan, 0, len(pairs)+len(unpaired))
	for _, pr := range pairs {
		p, e := pl.PlanPair(pr)
		if e != nil {
			rr.Items = append(rr.Items, failedPlanItem(domain.PlanMux, pr.Image, pr.Video.RelPath, e))
			continue
		}
		plans = append(plans, p)
	}

	// 未配对文件：开启 copy_unpaired 时原样拷贝；否则每个文件单独形成一条 unpaired 记录。
	for _, u := range unpaired {
		if !eff.CopyUnpaired {
			rr.Items = append(rr.Items, unpairedItem(u))
			continue
		}
		p, e := pl.PlanCopy(u.File)
		if e != nil {
			rr.Items = append(rr.Items, failedPlanItem(domain.PlanCopy, u.File, "", e))
			continue
		}
		plans = append(plans, p)
	}
	planner.SortPlans(plans)
	planDur := time.Since(planStarted)

	if obs != nil {
		var mux, cp, skip int
		for i := range plans {
			switch {
			case plans[i].Skip:
				skip++
			case plans[i].Kind == domain.PlanMux:
				mux++
			default:
				cp++
			}
		}
		obs.OnPhaseDone("plan", map[string]any{
			"items": len(plans),
			"mux":   mux,
			"copy":  cp,
			"skip":  skip,
		}, planDur)
	}

	// 执行阶段：按条目并发（worker pool）。条目之间没有顺序要求。
	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}

	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":     workers,
			"total_items": len(plans),
		}, 0)
	}

	type execResult struct {
		key string
		res domain.ItemResult
		dur time.Duration
	}

	jobs := make(chan domain.ItemPlan)
	results := make(chan execResult, len(plans))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				oneStarted := time.Now()
				r := execOne(ctx, eff, p, log)
				results <- execResult{
					key: p.Key,
					res: r,
					dur: time.Since(oneStarted),
				}
			}
		}()
	}

	go func() {
		for _, p := range plans {
			jobs <- p
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for it := range results {
		done++
		rr.Items = append(rr.Items, it.res)
		if obs != nil {
			obs.OnItemDone(done, len(plans), it.key, it.res, it.dur)
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	log.Infof("运行结束：processed=%d copied=%d skipped=%d failed=%d unpaired=%d",
		rr.Summary.Processed, rr.Summary.Copied, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Unpaired)
	return rr
}

func execOne(ctx context.Context, eff config.EffectiveConfig, p domain.ItemPlan, log logger.Logger) domain.ItemResult {
	item := domain.ItemResult{
		Key:    p.Key,
		Kind:   p.Kind,
		Image:  relOrAbs(eff.Path, p.SrcImage),
		Video:  relOrAbs(eff.Path, p.SrcVideo),
		Dst:    relOrAbs(eff.Out, p.DstAbs),
		Status: domain.StatusProcessed,
	}
	if p.Kind == domain.PlanCopy {
		item.Status = domain.StatusCopied
	}

	// 取消后不再开始新条目；已经在写的条目照常完成（写入本身是原子的）。
	if err := ctx.Err(); err != nil {
		return failItem(item, err)
	}

	if p.Skip {
		item.Status = domain.StatusSkipped
		return item
	}

	if p.Kind == domain.PlanCopy {
		if eff.DryRun {
			item.Status = domain.StatusPlanned
			return item
		}
		if err := fsx.CopyFileAtomic(p.SrcImage, filepath.Dir(p.DstAbs), filepath.Base(p.DstAbs), eff.Overwrite); err != nil {
			if errors.Is(err, os.ErrExist) {
				item.Status = domain.StatusSkipped
				return item
			}
			log.Warnf("拷贝失败 %s：%v", p.Key, err)
			return failItem(item, err)
		}
		log.Debugf("已拷贝 %s -> %s", p.Key, p.DstAbs)
		return item
	}

	// dry-run 也完整合成一次（只在内存中），这样报告里能提前看到会失败的条目与视频偏移。
	res, orig, err := muxFiles(p.SrcImage, p.SrcVideo, motion.Options{Strict: eff.Strict})
	if err != nil {
		log.Warnf("合成失败 %s：%v", p.Key, err)
		return failItem(item, err)
	}
	item.VideoOffset = res.VideoOffset
	item.Removed = res.Removed

	if eff.Verify {
		if err := imgx.VerifyMuxed(orig, res.Data); err != nil {
			log.Warnf("校验失败 %s：%v", p.Key, err)
			return failItem(item, err)
		}
	}

	if eff.DryRun {
		item.Status = domain.StatusPlanned
		return item
	}

	dir, name := filepath.Dir(p.DstAbs), filepath.Base(p.DstAbs)
	if eff.Overwrite {
		err = fsx.WriteFileAtomicReplace(dir, name, res.Data)
	} else {
		err = fsx.WriteFileAtomicNoOverwrite(dir, name, res.Data)
	}
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			// 计划之后才出现的目标：与计划阶段的判断保持一致，按 skip 处理。
			item.Status = domain.StatusSkipped
			return item
		}
		log.Warnf("写入失败 %s：%v", p.Key, err)
		return failItem(item, err)
	}
	log.Debugf("已合成 %s -> %s（video_offset=%d removed=%d）", p.Key, p.DstAbs, res.VideoOffset, res.Removed)
	return item
}

// muxFiles 读取一对输入并合成，同时返回原图字节（校验时需要）。
func muxFiles(imagePath, videoPath string, opts motion.Options) (motion.Result, []byte, error) {
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return motion.Result{}, nil, fmt.Errorf("读取图片失败：%w", err)
	}
	video, err := os.ReadFile(videoPath)
	if err != nil {
		return motion.Result{}, nil, fmt.Errorf("读取视频失败：%w", err)
	}
	res, err := motion.MuxWithOptions(image, video, opts)
	if err != nil {
		return motion.Result{}, nil, err
	}
	return res, image, nil
}

// PairOptions 是单对模式的开关。
type PairOptions struct {
	Strict bool
	Verify bool
}

// MuxPair 是单对模式：校验输入、合成，并把结果原子写入 outDir/<图片文件名>（已存在则覆盖）。
// 任何失败都不会留下输出文件。
func MuxPair(imagePath, videoPath, outDir string, opts PairOptions, log logger.Logger) (domain.ItemResult, error) {
	if log == nil {
		log = logger.Nop()
	}
	dst := filepath.Join(outDir, filepath.Base(imagePath))
	item := domain.ItemResult{
		Key:    filepath.Base(imagePath),
		Kind:   domain.PlanMux,
		Image:  imagePath,
		Video:  videoPath,
		Dst:    dst,
		Status: domain.StatusProcessed,
	}

	if err := app.ValidatePair(imagePath, videoPath); err != nil {
		return failItem(item, err), err
	}

	res, orig, err := muxFiles(imagePath, videoPath, motion.Options{Strict: opts.Strict})
	if err != nil {
		return failItem(item, err), err
	}
	item.VideoOffset = res.VideoOffset
	item.Removed = res.Removed

	if opts.Verify {
		if err := imgx.VerifyMuxed(orig, res.Data); err != nil {
			return failItem(item, err), err
		}
	}

	if err := fsx.WriteFileAtomicReplace(outDir, filepath.Base(imagePath), res.Data); err != nil {
		return failItem(item, err), err
	}
	log.Infof("已写出 %s（video_offset=%d removed=%d）", dst, res.VideoOffset, res.Removed)
	return item, nil
}

func failItem(item domain.ItemResult, err error) domain.ItemResult {
	item.Status = domain.StatusFailed
	item.ErrorCode = app.ErrorCode(err)
	item.ErrorMsg = err.Error()
	return item
}

func unpairedItem(u domain.Unpaired) domain.ItemResult {
	item := domain.ItemResult{
		Key:       filepathToKey(u.File.RelPath),
		Status:    domain.StatusUnpaired,
		ErrorCode: domain.ErrCodeUnpaired,
	}
	switch u.Reason {
	case domain.UnpairedNoVideo:
		item.Image = u.File.RelPath
		item.ErrorMsg = "找不到同名视频（.mov/.mp4）；请确认视频与图片位于同一目录且文件名一致"
	case domain.UnpairedNoImage:
		item.Video = u.File.RelPath
		item.ErrorMsg = "找不到同名图片（.jpg/.jpeg）"
	default:
		item.ErrorMsg = "既不是图片也不是视频；如需原样输出请开启 copy_unpaired"
	}
	return item
}

func failedPlanItem(kind string, f domain.MediaFile, video string, err error) domain.ItemResult {
	return domain.ItemResult{
		Key:       filepathToKey(f.RelPath),
		Kind:      kind,
		Image:     f.RelPath,
		Video:     video,
		Status:    domain.StatusFailed,
		ErrorCode: app.ErrorCode(err),
		ErrorMsg:  fmt.Sprintf("规划失败：%v", err),
	}
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

func filepathToKey(rel string) string { return filepath.ToSlash(rel) }

// relOrAbs 尽量输出相对 base 的路径；不在 base 之下则输出原始绝对路径（至少可追溯）。
func relOrAbs(base, p string) string {
	if p == "" {
		return ""
	}
	rel, err := filepath.Rel(base, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return rel
}
