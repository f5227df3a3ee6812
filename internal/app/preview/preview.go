package preview

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/John-Robertt/infobar/internal/app/classify"
	"github.com/John-Robertt/infobar/internal/domain"
	"github.com/John-Robertt/infobar/internal/infra/imgx"
)

// MotionICsFile 是 ICA-AROMA 写出的运动成分列表（逗号分隔的 IC 编号）。
const MotionICsFile = "classified_motion_ICs.txt"

// Group 标识图片来源。
type Group string

const (
	GroupMotion        Group = "motion"
	GroupComponents    Group = "components"
	GroupPostProcessed Group = "post_processed"
)

// Image 是清单中的一项。
type Image struct {
	Group  Group  `json:"group"`
	Label  string `json:"label"`
	Path   string `json:"path"`
	Exists bool   `json:"exists"`

	Format string `json:"format,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Manifest 是某个数据集可查看的全部图片。
type Manifest struct {
	Index  int          `json:"index"`
	Name   string       `json:"name"`
	State  domain.State `json:"state"`
	Images []Image      `json:"images"`

	// MotionICs 为 nil 表示未处理或列表文件缺失。
	MotionICs []int  `json:"motion_ics"`
	Warning   string `json:"warning,omitempty"`
}

// Build 按数据集状态组装图片清单。
//
// 运动参数图总是列出；processed 追加各运动成分的阈值图；
// post-processed 再追加最后一个 *.feat 的 zstat 渲染图与时间序列图。
func Build(d domain.Dataset) Manifest {
	m := Manifest{
		Index: d.Index,
		Name:  d.DisplayName(),
		State: d.State(),
	}

	mc := filepath.Join(d.Input, "mc")
	m.Images = append(m.Images,
		describe(GroupMotion, "Translation", filepath.Join(mc, "trans.png")),
		describe(GroupMotion, "Rotation", filepath.Join(mc, "rot.png")),
		describe(GroupMotion, "Displacement", filepath.Join(mc, "disp.png")),
	)

	if !d.Processed {
		return m
	}

	ics, err := ReadMotionICs(filepath.Join(d.Output, MotionICsFile))
	if err != nil {
		m.Warning = err.Error()
	} else {
		m.MotionICs = ics
		report := filepath.Join(d.Output, classify.MelodicDir, "report")
		for _, ic := range ics {
			name := fmt.Sprintf("IC_%d_thresh.png", ic)
			m.Images = append(m.Images, describe(GroupComponents, fmt.Sprintf("IC %d", ic), filepath.Join(report, name)))
		}
	}

	if !d.PostProcessed {
		return m
	}
	post, err := classify.PostProcessedDir(d.Output)
	if err != nil || post == "" {
		if err != nil && m.Warning == "" {
			m.Warning = err.Error()
		}
		return m
	}
	m.Images = append(m.Images,
		describe(GroupPostProcessed, "Thresholded zstat1", filepath.Join(post, "rendered_thresh_zstat1.png")),
		describe(GroupPostProcessed, "Time series zstat1", filepath.Join(post, "tsplot", "tsplot_zstat1.png")),
	)
	return m
}

// ReadMotionICs 解析 classified_motion_ICs.txt。
// 文件通常只有一行；多行时以最后一个非空行为准。空文件表示没有运动成分。
func ReadMotionICs(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	last := ""
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out := []int{}
	if last == "" {
		return out, nil
	}
	for _, tok := range strings.Split(last, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("%s: IC 编号非法：%q", filepath.Base(path), tok)
		}
		out = append(out, n)
	}
	return out, nil
}

func describe(g Group, label, path string) Image {
	img := Image{Group: g, Label: label, Path: path}
	info, err := imgx.Inspect(path)
	switch {
	case err == nil:
		img.Exists = true
		img.Format = info.Format
		img.Width = info.Width
		img.Height = info.Height
	case os.IsNotExist(err):
	default:
		// 文件存在但无法解析
		img.Exists = true
		img.Error = err.Error()
	}
	return img
}
