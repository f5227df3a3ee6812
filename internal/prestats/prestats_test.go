package prestats

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/infobar/internal/domain"
)

// reportHTML 模拟 FSL prestats 报告的段落结构：头动统计位于倒数第 4 个 <p>。
func reportHTML(motion string) string {
	return `<html><head><title>FEAT Report</title></head><body>
<p>Prestats</p>
<p>Analysis methods</p>
<p><b>Motion correction</b><br>` + motion + `</p>
<p><img src="mc/rot.png"></p>
<p><img src="mc/trans.png"></p>
<p><img src="mc/disp.png"></p>
</body></html>`
}

func TestParse_WellFormed(t *testing.T) {
	abs, rel, err := Parse(strings.NewReader(reportHTML("MCFLIRT estimated mean displacements: absolute=0.23mm, relative=0.07mm")))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if abs != "0.23" || rel != "0.07" {
		t.Fatalf("期望 0.23/0.07，实际 %q/%q", abs, rel)
	}
}

func TestParse_CommentTextIsJoined(t *testing.T) {
	abs, rel, err := Parse(strings.NewReader(reportHTML("absolute=0.2<!--5-->mm, relative=0.1mm")))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if abs != "0.25" || rel != "0.1" {
		t.Fatalf("注释文本应参与拼接：期望 0.25/0.1，实际 %q/%q", abs, rel)
	}

	if _, _, err := Parse(strings.NewReader(reportHTML("absolute=0.2<!-- n/a -->mm, relative=0.1mm"))); err == nil {
		t.Fatalf("注释拼接后不是数值时应返回错误")
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]string{
		"too_few_paragraphs": `<p>a</p><p>b</p>`,
		"no_br":              strings.Replace(reportHTML("absolute=1mm, relative=2mm"), "<br>", " ", 1),
		"element_after_br":   reportHTML("absolute=<b>1</b>mm, relative=2mm"),
		"no_mm":              reportHTML("absolute=1, relative=2"),
		"no_eq":              reportHTML("absolute 1mm, relative 2mm"),
		"not_numeric":        reportHTML("absolute=abcmm, relative=2mm"),
		"negative":           reportHTML("absolute=-1mm, relative=2mm"),
	}
	for name, doc := range cases {
		_, _, err := Parse(strings.NewReader(doc))
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("%s：期望 *ParseError，实际 %T %v", name, err, err)
		}
	}
}

func TestScrape_NeverFailsAndFallsBackToZero(t *testing.T) {
	dir := t.TempDir()

	// 报告缺失。
	m := Scrape(dir)
	assertZeroZero(t, m)

	// 报告内容异常。
	if err := os.WriteFile(filepath.Join(dir, ReportFile), []byte("<html>garbage"), 0o644); err != nil {
		t.Fatalf("写入报告失败：%v", err)
	}
	m = Scrape(dir)
	assertZeroZero(t, m)
	if !strings.Contains(m.Failure, "stage=") {
		t.Fatalf("失败原因应包含解析阶段：%q", m.Failure)
	}
}

func TestScrape_WellFormed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ReportFile), []byte(reportHTML("absolute=0.5mm, relative=0.25mm")), 0o644); err != nil {
		t.Fatalf("写入报告失败：%v", err)
	}

	m := Scrape(dir)
	if !m.OK() {
		t.Fatalf("不期望失败：%q", m.Failure)
	}
	if m.Absolute != 0.5 || m.Relative != 0.25 {
		t.Fatalf("数值不正确：%+v", m)
	}
	if v := m.Values(); v[0] != "0.5" || v[1] != "0.25" {
		t.Fatalf("文本不正确：%v", v)
	}
}

func TestSummarize(t *testing.T) {
	ms := []domain.Motion{
		{AbsoluteText: "1", RelativeText: "0.1", Absolute: 1, Relative: 0.1},
		{AbsoluteText: "3", RelativeText: "0.3", Absolute: 3, Relative: 0.3},
		domain.MotionFailed("x"),
	}
	s := Summarize(ms)
	if s.Count != 2 || s.Failed != 1 {
		t.Fatalf("计数不正确：%+v", s)
	}
	if !near(s.AbsoluteMean, 2) || !near(s.AbsoluteSD, math.Sqrt2) {
		t.Fatalf("absolute 统计不正确：%+v", s)
	}
	if !near(s.RelativeMean, 0.2) || !near(s.RelativeSD, math.Sqrt2/10) {
		t.Fatalf("relative 统计不正确：%+v", s)
	}

	one := Summarize(ms[:1])
	if one.AbsoluteMean != 1 || one.AbsoluteSD != 0 {
		t.Fatalf("单个样本标准差应为 0：%+v", one)
	}
	if empty := Summarize(nil); empty != (domain.MotionSummary{}) {
		t.Fatalf("空输入应为零值：%+v", empty)
	}
}

func assertZeroZero(t *testing.T, m domain.Motion) {
	t.Helper()
	if m.OK() {
		t.Fatalf("期望失败结果")
	}
	v := m.Values()
	if len(v) != 2 || v[0] != "0" || v[1] != "0" || m.Absolute != 0 || m.Relative != 0 {
		t.Fatalf("失败时必须为 [0 0]，实际 %+v", m)
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
