package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/mpmux/internal/domain"
)

// ScanMedia 扫描 root 下的文件，并按扩展名分类为 image/video/other。
//
// 规则（硬约束）：
// - recursive=false 时只看 root 这一层
// - excludeDirs 均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）；输出目录由上层放进来
// - 以 '.' 开头的文件（例如原子写入的临时文件）不参与扫描
//
// 注意：扫描阶段只做 stat（DirEntry.Info），不读文件内容。
func ScanMedia(root string, recursive bool, excludeDirs []string) ([]domain.MediaFile, error) {
	root = filepath.Clean(root)
	excluded := buildExcluded(root, excludeDirs)

	files := make([]domain.MediaFile, 0, 128)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if !recursive || isExcluded(path, excluded) {
				return filepath.SkipDir
			}
			return nil
		}
		if isExcluded(path, excluded) {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		ext := filepath.Ext(name)
		files = append(files, domain.MediaFile{
			AbsPath: path,
			RelPath: rel,
			Stem:    strings.TrimSuffix(rel, ext),
			Ext:     ext,
			Kind:    KindOf(ext),
			Size:    info.Size(),
			ModUnix: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// KindOf 按扩展名（不区分大小写）判定文件角色。
func KindOf(ext string) domain.MediaKind {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return domain.KindImage
	case ".mov", ".mp4":
		return domain.KindVideo
	default:
		return domain.KindOther
	}
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
