package preview

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/John-Robertt/infobar/internal/domain"
)

func TestBuild_Unprocessed(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "sub01", "rest.feat")
	writePNG(t, filepath.Join(in, "mc", "trans.png"), 10, 5)
	writePNG(t, filepath.Join(in, "mc", "rot.png"), 10, 5)

	m := Build(domain.Dataset{Index: 1, Input: in, Output: filepath.Join(root, "sub01", "rest_ICA_AROMA"), RelPath: "sub01/rest.feat"})

	if m.State != domain.StateUnprocessed {
		t.Fatalf("状态不符合预期：%s", m.State)
	}
	if len(m.Images) != 3 {
		t.Fatalf("未处理数据集只应列出 3 张运动图，实际 %d", len(m.Images))
	}
	if !m.Images[0].Exists || m.Images[0].Width != 10 || m.Images[0].Height != 5 {
		t.Fatalf("trans.png 信息不符合预期：%+v", m.Images[0])
	}
	if m.Images[2].Exists {
		t.Fatalf("disp.png 不存在，不应标记为存在：%+v", m.Images[2])
	}
	if m.MotionICs != nil {
		t.Fatalf("未处理数据集不应有 IC 列表：%v", m.MotionICs)
	}
}

func TestBuild_PostProcessed(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "rest.feat")
	out := filepath.Join(root, "rest_ICA_AROMA")
	writeFile(t, filepath.Join(out, MotionICsFile), "3,7\n")
	writePNG(t, filepath.Join(out, "melodic.ica", "report", "IC_3_thresh.png"), 4, 4)
	post := filepath.Join(out, "stats.feat")
	writePNG(t, filepath.Join(post, "rendered_thresh_zstat1.png"), 8, 8)
	writePNG(t, filepath.Join(post, "tsplot", "tsplot_zstat1.png"), 8, 2)

	m := Build(domain.Dataset{Index: 2, Input: in, Output: out, Processed: true, PostProcessed: true})

	if !reflect.DeepEqual(m.MotionICs, []int{3, 7}) {
		t.Fatalf("IC 列表不符合预期：%v", m.MotionICs)
	}
	// 3 运动图 + 2 IC 图 + 2 后处理图
	if len(m.Images) != 7 {
		t.Fatalf("期望 7 张图，实际 %d：%+v", len(m.Images), m.Images)
	}
	if m.Images[3].Group != GroupComponents || !m.Images[3].Exists {
		t.Fatalf("IC 3 图片不符合预期：%+v", m.Images[3])
	}
	if m.Images[4].Exists {
		t.Fatalf("IC 7 图片不存在：%+v", m.Images[4])
	}
	last := m.Images[6]
	if last.Group != GroupPostProcessed || last.Width != 8 || last.Height != 2 {
		t.Fatalf("tsplot 信息不符合预期：%+v", last)
	}
}

func TestBuild_ProcessedMissingICFile(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "rest_ICA_AROMA")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	m := Build(domain.Dataset{Index: 1, Input: filepath.Join(root, "rest.feat"), Output: out, Processed: true})
	if m.Warning == "" {
		t.Fatalf("缺少 IC 列表文件时应给出 warning")
	}
	if len(m.Images) != 3 {
		t.Fatalf("期望只列出运动图，实际 %d", len(m.Images))
	}
}

func TestReadMotionICs(t *testing.T) {
	dir := t.TempDir()

	p := filepath.Join(dir, "a.txt")
	writeFile(t, p, "1, 2,5\n\n")
	got, err := ReadMotionICs(p)
	if err != nil || !reflect.DeepEqual(got, []int{1, 2, 5}) {
		t.Fatalf("got=%v err=%v", got, err)
	}

	empty := filepath.Join(dir, "empty.txt")
	writeFile(t, empty, "")
	got, err = ReadMotionICs(empty)
	if err != nil || len(got) != 0 || got == nil {
		t.Fatalf("空文件应返回空列表：got=%v err=%v", got, err)
	}

	bad := filepath.Join(dir, "bad.txt")
	writeFile(t, bad, "1,x")
	if _, err := ReadMotionICs(bad); err == nil {
		t.Fatalf("期望非法 IC 编号返回错误")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写文件失败：%v", err)
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png 失败：%v", err)
	}
	writeFile(t, path, buf.String())
}
