package app

import (
	"sort"

	"github.com/John-Robertt/mpmux/internal/domain"
	"github.com/John-Robertt/mpmux/internal/scan"
)

// videoExtOrder 是同名视频的优先顺序；不在表中的大小写变体按字典序排在其后。
var videoExtOrder = []string{".mov", ".MOV", ".mp4", ".MP4"}

// PairFiles 把扫描结果按 stem（去扩展名的相对路径，逐字节比较）配成 图片+视频。
//
// - pairs 稳定排序：按图片 RelPath 字典序
// - 同一个视频可以被多张同 stem 的图片（例如 a.jpg 与 a.JPG）共同使用
// - 没有被任何图片使用的视频、找不到视频的图片、其他文件都进入 unpaired
func PairFiles(files []domain.MediaFile) (pairs []domain.MediaPair, unpaired []domain.Unpaired) {
	videos := make(map[string][]int, len(files))
	for i := range files {
		if files[i].Kind == domain.KindVideo {
			videos[files[i].Stem] = append(videos[files[i].Stem], i)
		}
	}

	claimed := make(map[int]bool, len(videos))
	pairs = make([]domain.MediaPair, 0, len(files)/2)
	unpaired = make([]domain.Unpaired, 0, 16)

	for i := range files {
		f := files[i]
		switch f.Kind {
		case domain.KindImage:
			idx, ok := pickVideo(files, videos[f.Stem])
			if !ok {
				unpaired = append(unpaired, domain.Unpaired{File: f, Reason: domain.UnpairedNoVideo})
				continue
			}
			claimed[idx] = true
			pairs = append(pairs, domain.MediaPair{Image: f, Video: files[idx]})
		case domain.KindVideo:
			// 在下面统一处理（需要等所有图片认领完）。
		default:
			unpaired = append(unpaired, domain.Unpaired{File: f, Reason: domain.UnpairedOther})
		}
	}
	for i := range files {
		if files[i].Kind == domain.KindVideo && !claimed[i] {
			unpaired = append(unpaired, domain.Unpaired{File: files[i], Reason: domain.UnpairedNoImage})
		}
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Image.RelPath < pairs[j].Image.RelPath })
	sort.SliceStable(unpaired, func(i, j int) bool { return unpaired[i].File.RelPath < unpaired[j].File.RelPath })
	return pairs, unpaired
}

func pickVideo(files []domain.MediaFile, candidates []int) (int, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	for _, ext := range videoExtOrder {
		for _, idx := range candidates {
			if files[idx].Ext == ext {
				return idx, true
			}
		}
	}
	best := -1
	for _, idx := range candidates {
		if best < 0 || files[idx].Ext < files[best].Ext {
			best = idx
		}
	}
	return best, true
}

// FindPairs 扫描 root 并返回配对结果（不含未配对文件）。
func FindPairs(root string, recursive bool) ([]domain.MediaPair, error) {
	files, err := scan.ScanMedia(root, recursive, nil)
	if err != nil {
		return nil, err
	}
	pairs, _ := PairFiles(files)
	return pairs, nil
}
