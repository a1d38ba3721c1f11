package planner

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/John-Robertt/mpmux/internal/domain"
)

type Options struct {
	// Recursive=true 时在输出目录下镜像输入的相对子目录，避免不同目录的同名图片互相覆盖。
	Recursive bool
	// Overwrite=false 时目标已存在的条目标记为 Skip。
	Overwrite bool
}

// Planner 为一次运行生成执行计划。
// 它按目录缓存输出目录的现状（只做 ReadDir，不读文件内容）。
type Planner struct {
	outDir string
	opts   Options

	existing map[string]map[string]struct{}
}

func New(outDir string, opts Options) *Planner {
	return &Planner{
		outDir:   filepath.Clean(outDir),
		opts:     opts,
		existing: map[string]map[string]struct{}{},
	}
}

// PlanPair 生成一对图片+视频的合成计划。输出沿用图片文件名（含扩展名大小写）。
func (p *Planner) PlanPair(pair domain.MediaPair) (domain.ItemPlan, error) {
	dst := p.dstFor(pair.Image)
	skip, err := p.shouldSkip(dst)
	if err != nil {
		return domain.ItemPlan{}, err
	}
	return domain.ItemPlan{
		Kind:     domain.PlanMux,
		Key:      filepath.ToSlash(pair.Image.RelPath),
		SrcImage: pair.Image.AbsPath,
		SrcVideo: pair.Video.AbsPath,
		DstAbs:   dst,
		Skip:     skip,
	}, nil
}

// PlanCopy 生成未配对文件的原样拷贝计划。
func (p *Planner) PlanCopy(f domain.MediaFile) (domain.ItemPlan, error) {
	dst := p.dstFor(f)
	skip, err := p.shouldSkip(dst)
	if err != nil {
		return domain.ItemPlan{}, err
	}
	return domain.ItemPlan{
		Kind:     domain.PlanCopy,
		Key:      filepath.ToSlash(f.RelPath),
		SrcImage: f.AbsPath,
		DstAbs:   dst,
		Skip:     skip,
	}, nil
}

func (p *Planner) dstFor(f domain.MediaFile) string {
	name := filepath.Base(f.AbsPath)
	if !p.opts.Recursive {
		return filepath.Join(p.outDir, name)
	}
	return filepath.Join(p.outDir, filepath.Dir(f.RelPath), name)
}

func (p *Planner) shouldSkip(dst string) (bool, error) {
	if p.opts.Overwrite {
		return false, nil
	}
	names, err := p.readDir(filepath.Dir(dst))
	if err != nil {
		return false, err
	}
	_, ok := names[filepath.Base(dst)]
	return ok, nil
}

// readDir 读取目标目录现有文件名；目录不存在时返回空集合且不报错。
func (p *Planner) readDir(dir string) (map[string]struct{}, error) {
	if names, ok := p.existing[dir]; ok {
		return names, nil
	}

	names := map[string]struct{}{}
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, e := range entries {
		names[e.Name()] = struct{}{}
	}
	p.existing[dir] = names
	return names, nil
}

// SortPlans 让上层在需要时可显式保证稳定顺序（而不是依赖 map 遍历顺序）。
func SortPlans(plans []domain.ItemPlan) {
	sort.Slice(plans, func(i, j int) bool { return plans[i].Key < plans[j].Key })
}
