package prestats

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/John-Robertt/infobar/internal/domain"
)

// ReportFile 是 FEAT prestats 阶段生成的 HTML 报告。
const ReportFile = "report_prestats.html"

// 头动统计所在段落：倒数第 4 个 <p>。
const motionParagraphFromEnd = 4

// ParseError 说明解析失败的阶段，供日志/报告使用。
type ParseError struct {
	Stage string // "html" / "paragraph" / "br" / "text" / "value"
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("prestats stage=%s: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse 从 prestats 报告中提取 (absolute, relative) 两个数值字符串。
//
// 报告结构（FSL 固定模板）：倒数第 4 个 <p> 内，第一个 <br> 之后是形如
// "absolute=0.23mm, relative=0.07mm" 的纯文本。这个结构很脆弱：
// 任何偏差都返回 *ParseError，由 Scrape 降级为 0/0。
func Parse(r io.Reader) (abs, rel string, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", &ParseError{Stage: "html", Err: err}
	}

	ps := doc.Find("p")
	if ps.Length() < motionParagraphFromEnd {
		return "", "", &ParseError{Stage: "paragraph", Err: fmt.Errorf("只有 %d 个段落", ps.Length())}
	}
	p := ps.Eq(ps.Length() - motionParagraphFromEnd)

	br := p.Find("br").First()
	if br.Length() == 0 {
		return "", "", &ParseError{Stage: "br", Err: errors.New("段落内没有 <br>")}
	}

	text, err := textAfter(br.Nodes[0])
	if err != nil {
		return "", "", &ParseError{Stage: "text", Err: err}
	}

	parts := strings.Split(text, "mm")
	if len(parts) < 2 {
		return "", "", &ParseError{Stage: "text", Err: fmt.Errorf("未找到 mm 分隔：%q", text)}
	}
	abs, err = valueAfterEq(parts[0])
	if err != nil {
		return "", "", &ParseError{Stage: "value", Err: fmt.Errorf("absolute：%w", err)}
	}
	rel, err = valueAfterEq(parts[1])
	if err != nil {
		return "", "", &ParseError{Stage: "value", Err: fmt.Errorf("relative：%w", err)}
	}
	return abs, rel, nil
}

// textAfter 拼接 n 之后的所有兄弟文本/注释节点；遇到元素节点视为结构漂移。
func textAfter(n *html.Node) (string, error) {
	var sb strings.Builder
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		switch s.Type {
		case html.TextNode, html.CommentNode:
			// 注释内容按文本拼接（与常见 HTML 抓取库的 next_siblings 文本拼接一致）
			sb.WriteString(s.Data)
		default:
			return "", fmt.Errorf("<br> 之后出现非文本节点 <%s>", s.Data)
		}
	}
	return sb.String(), nil
}

func valueAfterEq(s string) (string, error) {
	fields := strings.Split(s, "=")
	if len(fields) < 2 {
		return "", fmt.Errorf("缺少 '='：%q", s)
	}
	v := strings.TrimSpace(fields[1])
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return "", fmt.Errorf("不是数值：%q", v)
	}
	if f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return "", fmt.Errorf("数值不合法：%q", v)
	}
	return v, nil
}

// Scrape 读取 dir/report_prestats.html 并提取头动统计。
//
// 约束：Scrape 永远不返回 error，也不 panic；任何失败都以
// domain.MotionFailed(reason) 的形式返回（数值为 0/0，Failure 记录原因）。
func Scrape(dir string) domain.Motion {
	b, err := os.ReadFile(filepath.Join(dir, ReportFile))
	if err != nil {
		return domain.MotionFailed(fmt.Sprintf("读取报告失败：%v", err))
	}
	return FromBytes(b)
}

// FromBytes 与 Scrape 相同，但输入是报告内容。
func FromBytes(b []byte) domain.Motion {
	abs, rel, err := Parse(bytes.NewReader(b))
	if err != nil {
		return domain.MotionFailed(err.Error())
	}
	// Parse 已校验过数值，这里的错误不可能发生。
	a, _ := strconv.ParseFloat(abs, 64)
	r, _ := strconv.ParseFloat(rel, 64)
	return domain.Motion{
		AbsoluteText: abs,
		RelativeText: rel,
		Absolute:     a,
		Relative:     r,
	}
}

// Summarize 计算成功抓取的数据集的均值与样本标准差（n<=1 时标准差为 0）。
func Summarize(ms []domain.Motion) domain.MotionSummary {
	var abs, rel []float64
	s := domain.MotionSummary{}
	for _, m := range ms {
		if !m.OK() {
			s.Failed++
			continue
		}
		abs = append(abs, m.Absolute)
		rel = append(rel, m.Relative)
	}
	s.Count = len(abs)
	s.AbsoluteMean, s.AbsoluteSD = meanSD(abs)
	s.RelativeMean, s.RelativeSD = meanSD(rel)
	return s
}

func meanSD(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) == 1 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}
