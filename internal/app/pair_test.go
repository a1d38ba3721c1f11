package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/mpmux/internal/domain"
)

func mf(rel string, kind domain.MediaKind) domain.MediaFile {
	ext := filepath.Ext(rel)
	return domain.MediaFile{
		AbsPath: filepath.Join(string(filepath.Separator), "tmp", "x", rel),
		RelPath: rel,
		Stem:    rel[:len(rel)-len(ext)],
		Ext:     ext,
		Kind:    kind,
	}
}

func TestPairFiles_ExtensionPreference(t *testing.T) {
	files := []domain.MediaFile{
		mf("IMG_1.MP4", domain.KindVideo),
		mf("IMG_1.jpg", domain.KindImage),
		mf("IMG_1.mov", domain.KindVideo),
		mf("IMG_2.Mov", domain.KindVideo),
		mf("IMG_2.jpg", domain.KindImage),
		mf("IMG_2.mP4", domain.KindVideo),
	}

	pairs, unpaired := PairFiles(files)
	if len(pairs) != 2 {
		t.Fatalf("期望 2 对，实际 %d：%+v", len(pairs), pairs)
	}
	if pairs[0].Video.RelPath != "IMG_1.mov" {
		t.Fatalf(".mov 应优先于 .MP4，实际 %q", pairs[0].Video.RelPath)
	}
	// 不在优先表里的大小写变体按字典序："Mov" < "mP4"。
	if pairs[1].Video.RelPath != "IMG_2.Mov" {
		t.Fatalf("期望 IMG_2.Mov，实际 %q", pairs[1].Video.RelPath)
	}
	if len(unpaired) != 2 {
		t.Fatalf("期望 2 个未被使用的视频，实际 %+v", unpaired)
	}
	for _, u := range unpaired {
		if u.Reason != domain.UnpairedNoImage {
			t.Fatalf("reason 不符合预期：%+v", u)
		}
	}
}

func TestPairFiles_StemIsCaseSensitive(t *testing.T) {
	files := []domain.MediaFile{
		mf("img_1.jpg", domain.KindImage),
		mf("IMG_1.mov", domain.KindVideo),
		mf("notes.txt", domain.KindOther),
	}

	pairs, unpaired := PairFiles(files)
	if len(pairs) != 0 {
		t.Fatalf("stem 大小写不同不应配对：%+v", pairs)
	}
	reasons := map[string]string{}
	for _, u := range unpaired {
		reasons[u.File.RelPath] = u.Reason
	}
	if reasons["img_1.jpg"] != domain.UnpairedNoVideo ||
		reasons["IMG_1.mov"] != domain.UnpairedNoImage ||
		reasons["notes.txt"] != domain.UnpairedOther {
		t.Fatalf("unpaired 分类不符合预期：%v", reasons)
	}
}

func TestPairFiles_SubdirectoryStemsDoNotMix(t *testing.T) {
	files := []domain.MediaFile{
		mf(filepath.Join("a", "IMG_1.jpg"), domain.KindImage),
		mf(filepath.Join("b", "IMG_1.mov"), domain.KindVideo),
	}
	pairs, _ := PairFiles(files)
	if len(pairs) != 0 {
		t.Fatalf("不同目录的同名文件不应配对：%+v", pairs)
	}
}

func TestFindPairs_FromDisk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "IMG_1.jpg"))
	writeFile(t, filepath.Join(root, "IMG_1.MOV"))
	writeFile(t, filepath.Join(root, "sub", "IMG_2.jpg"))
	writeFile(t, filepath.Join(root, "sub", "IMG_2.mp4"))

	flat, err := FindPairs(root, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(flat) != 1 {
		t.Fatalf("非递归期望 1 对，实际 %d", len(flat))
	}

	deep, err := FindPairs(root, true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(deep) != 2 {
		t.Fatalf("递归期望 2 对，实际 %d", len(deep))
	}
	if deep[1].Video.AbsPath != filepath.Join(root, "sub", "IMG_2.mp4") {
		t.Fatalf("配对路径不符合预期：%+v", deep[1])
	}
}

func TestValidatePair(t *testing.T) {
	root := t.TempDir()
	img := filepath.Join(root, "a.jpg")
	vid := filepath.Join(root, "a.mov")
	txt := filepath.Join(root, "a.txt")
	writeFile(t, img)
	writeFile(t, vid)
	writeFile(t, txt)

	if err := ValidatePair(img, vid); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	cases := []struct {
		name  string
		image string
		video string
		code  string
	}{
		{"图片缺失", filepath.Join(root, "none.jpg"), vid, domain.ErrCodeMissingInput},
		{"视频缺失", img, filepath.Join(root, "none.mov"), domain.ErrCodeMissingInput},
		{"图片是目录", root, vid, domain.ErrCodeMissingInput},
		{"图片扩展名不对", txt, vid, domain.ErrCodeUnsupportedExtension},
		{"视频扩展名不对", img, txt, domain.ErrCodeUnsupportedExtension},
		{"角色颠倒", vid, img, domain.ErrCodeUnsupportedExtension},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePair(tc.image, tc.video)
			var ie *InputError
			if !errors.As(err, &ie) {
				t.Fatalf("期望 *InputError，实际 %T %v", err, err)
			}
			if ie.Code != tc.code {
				t.Fatalf("期望 %s，实际 %s", tc.code, ie.Code)
			}
		})
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
