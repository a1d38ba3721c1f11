package run

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/mpmux/internal/app"
	"github.com/John-Robertt/mpmux/internal/config"
	"github.com/John-Robertt/mpmux/internal/domain"
	"github.com/John-Robertt/mpmux/internal/infra/imgx"
	"github.com/John-Robertt/mpmux/internal/motion"
)

func TestExecute_DryRun_NoWrites(t *testing.T) {
	root := t.TempDir()
	video := fakeVideo()
	writeBytes(t, filepath.Join(root, "IMG_1.jpg"), mustJPEG(t, 16, 8))
	writeBytes(t, filepath.Join(root, "IMG_1.MOV"), video)

	rr := Execute(context.Background(), config.EffectiveConfig{
		Path:        root,
		Out:         filepath.Join(root, "out"),
		DryRun:      true,
		Concurrency: 1,
	}, nil)

	if _, err := os.Stat(filepath.Join(root, "out")); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应创建 out/，但 Stat err=%v", err)
	}
	if !rr.DryRun || rr.Summary.Planned != 1 || rr.Summary.Failed != 0 {
		t.Fatalf("summary 不符合预期：%+v items=%+v", rr.Summary, rr.Items)
	}
	it := rr.Items[0]
	if it.Key != "IMG_1.jpg" || it.Video != "IMG_1.MOV" || it.Dst != "IMG_1.jpg" {
		t.Fatalf("item 不符合预期：%+v", it)
	}
	if it.VideoOffset != int64(len(video)) {
		t.Fatalf("dry-run 也应给出 video_offset：%d", it.VideoOffset)
	}
}

func TestExecute_Apply_WritesMotionPhoto(t *testing.T) {
	root := t.TempDir()
	img := mustJPEG(t, 32, 16)
	video := fakeVideo()
	writeBytes(t, filepath.Join(root, "IMG_1.jpg"), img)
	writeBytes(t, filepath.Join(root, "IMG_1.MOV"), video)

	out := filepath.Join(root, "out")
	rr := Execute(context.Background(), config.EffectiveConfig{
		Path:        root,
		Out:         out,
		Verify:      true,
		Concurrency: 1,
	}, nil)

	if rr.Summary.Processed != 1 || rr.Summary.Failed != 0 {
		t.Fatalf("不期望失败：summary=%+v items=%+v", rr.Summary, rr.Items)
	}

	b, err := os.ReadFile(filepath.Join(out, "IMG_1.jpg"))
	if err != nil {
		t.Fatalf("期望写出合成文件：%v", err)
	}
	if !bytes.HasSuffix(b, video) {
		t.Fatalf("视频必须原样追加在文件末尾")
	}
	info, err := motion.Inspect(b)
	if err != nil {
		t.Fatalf("Inspect 失败：%v", err)
	}
	if !info.MotionPhoto || info.VideoOffset != int64(len(video)) || info.Descriptors != 1 {
		t.Fatalf("描述不符合预期：%+v", info)
	}
	if err := imgx.VerifyMuxed(img, b); err != nil {
		t.Fatalf("合成结果应仍可解码：%v", err)
	}

	// 源文件不应被修改。
	src, _ := os.ReadFile(filepath.Join(root, "IMG_1.jpg"))
	if !bytes.Equal(src, img) {
		t.Fatalf("源图片被修改")
	}
}

func TestExecute_UnpairedAndCopyThrough(t *testing.T) {
	root := t.TempDir()
	writeBytes(t, filepath.Join(root, "IMG_2.jpg"), mustJPEG(t, 8, 8))
	writeBytes(t, filepath.Join(root, "notes.txt"), []byte("notes"))
	writeBytes(t, filepath.Join(root, "CLIP.mp4"), fakeVideo())

	out := filepath.Join(root, "out")
	rr := Execute(context.Background(), config.EffectiveConfig{
		Path:        root,
		Out:         out,
		Concurrency: 2,
	}, nil)
	if rr.Summary.Unpaired != 3 || rr.Summary.Copied != 0 {
		t.Fatalf("期望 3 个 unpaired：%+v", rr.Summary)
	}
	for _, it := range rr.Items {
		if it.ErrorCode != domain.ErrCodeUnpaired || it.ErrorMsg == "" {
			t.Fatalf("unpaired 条目应带 error_code/error_msg：%+v", it)
		}
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("未开启 copy_unpaired 时不应写出任何文件：%v", err)
	}

	rr = Execute(context.Background(), config.EffectiveConfig{
		Path:         root,
		Out:          out,
		CopyUnpaired: true,
		Concurrency:  2,
	}, nil)
	if rr.Summary.Copied != 3 || rr.Summary.Failed != 0 {
		t.Fatalf("期望 3 个 copied：%+v items=%+v", rr.Summary, rr.Items)
	}
	b, err := os.ReadFile(filepath.Join(out, "notes.txt"))
	if err != nil || string(b) != "notes" {
		t.Fatalf("拷贝结果不正确：%q %v", string(b), err)
	}
}

func TestExecute_ExistingTargetSkippedThenOverwritten(t *testing.T) {
	root := t.TempDir()
	writeBytes(t, filepath.Join(root, "IMG_1.jpg"), mustJPEG(t, 8, 8))
	writeBytes(t, filepath.Join(root, "IMG_1.mov"), fakeVideo())
	out := filepath.Join(root, "out")
	writeBytes(t, filepath.Join(out, "IMG_1.jpg"), []byte("old"))

	cfg := config.EffectiveConfig{Path: root, Out: out, Concurrency: 1}
	rr := Execute(context.Background(), cfg, nil)
	if rr.Summary.Skipped != 1 {
		t.Fatalf("目标已存在应跳过：%+v", rr.Items)
	}
	b, _ := os.ReadFile(filepath.Join(out, "IMG_1.jpg"))
	if string(b) != "old" {
		t.Fatalf("跳过时不应修改目标")
	}

	cfg.Overwrite = true
	rr = Execute(context.Background(), cfg, nil)
	if rr.Summary.Processed != 1 {
		t.Fatalf("overwrite=true 应重新合成：%+v", rr.Items)
	}
	b, _ = os.ReadFile(filepath.Join(out, "IMG_1.jpg"))
	if !motion.IsTagged(b) {
		t.Fatalf("覆盖后的文件应带动态照片描述")
	}
}

func TestExecute_FailureIsolatedPerPair(t *testing.T) {
	root := t.TempDir()
	writeBytes(t, filepath.Join(root, "A.jpg"), []byte("not a jpeg"))
	writeBytes(t, filepath.Join(root, "A.mov"), fakeVideo())
	writeBytes(t, filepath.Join(root, "B.jpg"), mustJPEG(t, 8, 8))
	writeBytes(t, filepath.Join(root, "B.mov"), fakeVideo())

	out := filepath.Join(root, "out")
	rr := Execute(context.Background(), config.EffectiveConfig{Path: root, Out: out, Concurrency: 2}, nil)

	if rr.Summary.Failed != 1 || rr.Summary.Processed != 1 {
		t.Fatalf("期望 1 失败 1 成功：%+v", rr.Items)
	}
	a := rr.Items[0]
	if a.Key != "A.jpg" || a.ErrorCode != domain.ErrCodeInvalidContainer {
		t.Fatalf("失败条目不符合预期：%+v", a)
	}
	if _, err := os.Stat(filepath.Join(out, "A.jpg")); !os.IsNotExist(err) {
		t.Fatalf("失败条目不应留下输出：%v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "B.jpg")); err != nil {
		t.Fatalf("成功条目应写出：%v", err)
	}
}

func TestExecute_StrictRejectsTaggedImage(t *testing.T) {
	root := t.TempDir()
	tagged, err := motion.Mux(mustJPEG(t, 8, 8), fakeVideo())
	if err != nil {
		t.Fatalf("Mux 失败：%v", err)
	}
	writeBytes(t, filepath.Join(root, "A.jpg"), tagged)
	writeBytes(t, filepath.Join(root, "A.mp4"), fakeVideo())

	cfg := config.EffectiveConfig{Path: root, Out: filepath.Join(root, "out"), Strict: true, Concurrency: 1}
	rr := Execute(context.Background(), cfg, nil)
	if rr.Summary.Failed != 1 || rr.Items[0].ErrorCode != domain.ErrCodeAlreadyTagged {
		t.Fatalf("strict 模式应拒绝已合成的图片：%+v", rr.Items)
	}

	// 非 strict：重新合成并剥离旧描述。
	cfg.Strict = false
	rr = Execute(context.Background(), cfg, nil)
	if rr.Summary.Processed != 1 || rr.Items[0].Removed != 1 {
		t.Fatalf("非 strict 应重新合成并剥离旧描述：%+v", rr.Items)
	}
}

func TestExecute_RecursiveMirrorsSubdirs(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"a", "b"} {
		writeBytes(t, filepath.Join(root, d, "IMG_1.jpg"), mustJPEG(t, 8, 8))
		writeBytes(t, filepath.Join(root, d, "IMG_1.mov"), fakeVideo())
	}
	out := filepath.Join(root, "out")

	rr := Execute(context.Background(), config.EffectiveConfig{Path: root, Out: out, Recursive: true, Concurrency: 4}, nil)
	if rr.Summary.Processed != 2 {
		t.Fatalf("期望 2 个 processed：%+v", rr.Items)
	}
	for _, d := range []string{"a", "b"} {
		if _, err := os.Stat(filepath.Join(out, d, "IMG_1.jpg")); err != nil {
			t.Fatalf("期望镜像子目录 %s：%v", d, err)
		}
	}

	// 再跑一次：out/ 在输入树内，必须被排除，且已存在的目标全部跳过。
	rr = Execute(context.Background(), config.EffectiveConfig{Path: root, Out: out, Recursive: true, Concurrency: 4}, nil)
	if rr.Summary.Skipped != 2 || len(rr.Items) != 2 {
		t.Fatalf("第二次运行应只有 2 个 skipped：%+v", rr.Items)
	}
}

func TestExecute_CanceledContext(t *testing.T) {
	root := t.TempDir()
	writeBytes(t, filepath.Join(root, "IMG_1.jpg"), mustJPEG(t, 8, 8))
	writeBytes(t, filepath.Join(root, "IMG_1.mov"), fakeVideo())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rr := Execute(ctx, config.EffectiveConfig{Path: root, Out: filepath.Join(root, "out"), Concurrency: 1}, nil)
	if rr.Summary.Failed != 1 || rr.Items[0].ErrorCode != domain.ErrCodeCanceled {
		t.Fatalf("取消后的条目应为 canceled：%+v", rr.Items)
	}
}

func TestExecute_MissingOut(t *testing.T) {
	rr := Execute(context.Background(), config.EffectiveConfig{Path: t.TempDir()}, nil)
	if rr.Summary.Failed != 1 || rr.Items[0].ErrorCode != domain.ErrCodeConfigInvalid {
		t.Fatalf("未指定 out 应失败：%+v", rr.Items)
	}
}

func TestMuxPair(t *testing.T) {
	root := t.TempDir()
	img := filepath.Join(root, "in", "IMG_9.JPG")
	vid := filepath.Join(root, "in", "IMG_9.mp4")
	writeBytes(t, img, mustJPEG(t, 8, 8))
	writeBytes(t, vid, fakeVideo())
	out := filepath.Join(root, "dest")

	res, err := MuxPair(img, vid, out, PairOptions{Verify: true}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Status != domain.StatusProcessed || res.Dst != filepath.Join(out, "IMG_9.JPG") {
		t.Fatalf("结果不符合预期：%+v", res)
	}
	b, err := os.ReadFile(res.Dst)
	if err != nil || !motion.IsTagged(b) {
		t.Fatalf("期望写出已合成文件：%v", err)
	}

	// 单对模式覆盖已存在的输出。
	if _, err := MuxPair(img, vid, out, PairOptions{}, nil); err != nil {
		t.Fatalf("重复执行不期望错误：%v", err)
	}
}

func TestMuxPair_Errors(t *testing.T) {
	root := t.TempDir()
	bad := filepath.Join(root, "bad.jpg")
	vid := filepath.Join(root, "bad.mov")
	writeBytes(t, bad, []byte{0x00, 0x01})
	writeBytes(t, vid, fakeVideo())
	out := filepath.Join(root, "out")

	res, err := MuxPair(filepath.Join(root, "none.jpg"), vid, out, PairOptions{}, nil)
	var ie *app.InputError
	if !errors.As(err, &ie) || res.ErrorCode != domain.ErrCodeMissingInput {
		t.Fatalf("期望 missing_input，实际 %v %+v", err, res)
	}

	res, err = MuxPair(bad, vid, out, PairOptions{}, nil)
	if !errors.Is(err, motion.ErrInvalidContainer) || res.ErrorCode != domain.ErrCodeInvalidContainer {
		t.Fatalf("期望 invalid_container，实际 %v %+v", err, res)
	}
	if _, err := os.Stat(filepath.Join(out, "bad.jpg")); !os.IsNotExist(err) {
		t.Fatalf("失败时不应留下输出：%v", err)
	}
}

func mustJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 64, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg 失败：%v", err)
	}
	return buf.Bytes()
}

func fakeVideo() []byte {
	b := []byte{0x00, 0x00, 0x00, 0x14}
	b = append(b, "ftypqt  "...)
	b = append(b, 0x00, 0x00, 0x02, 0x00)
	b = append(b, "qt  "...)
	return append(b, bytes.Repeat([]byte{0xAB}, 64)...)
}

func writeBytes(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
