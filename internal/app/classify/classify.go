package classify

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/infobar/internal/domain"
	"github.com/John-Robertt/infobar/internal/infra/fsx"
)

// MelodicDir 是 ICA-AROMA 输出目录内的 MELODIC 结果目录名。
const MelodicDir = "melodic.ica"

// OutputPath 由输入目录派生 ICA-AROMA 输出目录：
// parent(in) / (stem(in) 去掉所有 prefix + suffix)。
//
// 只做字符串运算，与目录深度无关，也不访问文件系统。
func OutputPath(in, prefix, suffix string) string {
	in = filepath.Clean(in)
	name := filepath.Base(in)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if prefix != "" {
		stem = strings.ReplaceAll(stem, prefix, "")
	}
	return filepath.Join(filepath.Dir(in), stem+suffix)
}

// IsDerivedOutput 判断 in 是否是 ICA-AROMA 输出目录内部的产物（兄弟目录里有 melodic.ica）。
// 这类候选来自上一次处理的结果，不应再作为输入。
func IsDerivedOutput(in string) (bool, error) {
	return fsx.IsDir(filepath.Join(filepath.Dir(filepath.Clean(in)), MelodicDir))
}

// State 描述输出目录的现状（只做 stat/ReadDir，不读内容）。
type State struct {
	Processed     bool
	PostProcessed bool
}

// Classify 判定输出目录状态：
// - 输出目录存在 => processed
// - 输出目录内还有 *.feat 子目录 => post-processed
//
// 除“不存在”之外的 I/O 错误原样返回，由上层转为数据集级错误状态。
func Classify(out string) (State, error) {
	isDir, err := fsx.IsDir(out)
	if err != nil {
		return State{}, err
	}
	if !isDir {
		return State{}, nil
	}

	feats, err := featDirs(out)
	if err != nil {
		return State{}, err
	}
	return State{Processed: true, PostProcessed: len(feats) > 0}, nil
}

// PostProcessedDir 返回 out 内最后一个 *.feat 子目录（按名称排序）；没有则返回空串。
func PostProcessedDir(out string) (string, error) {
	feats, err := featDirs(out)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	if len(feats) == 0 {
		return "", nil
	}
	return feats[len(feats)-1], nil
}

func featDirs(out string) ([]string, error) {
	entries, err := os.ReadDir(out)
	if err != nil {
		return nil, err
	}
	dirs := make([]string, 0, 2)
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".feat") {
			continue
		}
		p := filepath.Join(out, e.Name())
		// DirEntry 对符号链接不解析类型：统一用 stat 判定。
		ok, err := fsx.IsDir(p)
		if err != nil {
			return nil, err
		}
		if ok {
			dirs = append(dirs, p)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Apply 把判定结果写入数据集；错误转为数据集级错误状态（不 panic、不中断）。
func Apply(d *domain.Dataset) {
	st, err := Classify(d.Output)
	if err != nil {
		d.ErrorCode = domain.ErrCodeIOFailed
		d.ErrorMsg = fmt.Sprintf("读取输出目录状态失败：%v", err)
		return
	}
	d.Processed = st.Processed
	d.PostProcessed = st.PostProcessed
}
