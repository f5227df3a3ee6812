package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/infobar/internal/domain"
	"github.com/John-Robertt/infobar/internal/infra/fsx"
)

const (
	// FeatExt 是 FEAT 输出目录的后缀。
	FeatExt = ".feat"
	// MarkerFile 存在表示该目录是一次完成的预处理（prestats）。
	MarkerFile = "report_prestats.html"
	// FinalizedFile 存在表示该目录已是统计分析结果（不是待处理的数据集）。
	FinalizedFile = "cluster_zstat1.html"
)

// FindCandidates 递归扫描 root 下名称匹配 *<task>*.feat 的目录，并应用标记文件规则。
//
// 规则（硬约束）：
// - task 为空时匹配所有 *.feat
// - 候选目录必须包含 MarkerFile，且不包含 FinalizedFile
// - 匹配到的目录仍继续向下扫描（嵌套 .feat 由标记文件规则区分）
// - root 自身不参与匹配；指向目录的符号链接参与匹配但不向下展开
// - 子目录不可读：记录为 Issue 并跳过，不中断扫描；只有 root 不可读才返回 error
//
// 注意：扫描阶段只做 stat，不读文件内容。
func FindCandidates(root, task string) ([]string, []domain.Issue, error) {
	root = filepath.Clean(root)

	var (
		found  = make([]string, 0, 64)
		issues = make([]domain.Issue, 0)
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			issues = append(issues, domain.Issue{
				Path:      path,
				ErrorCode: domain.ErrCodeIOFailed,
				ErrorMsg:  fmt.Sprintf("读取目录失败：%v", walkErr),
			})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// root 本身不算候选（只列出后代）
		if path == root {
			return nil
		}
		if !MatchFeat(d.Name(), task) {
			return nil
		}

		isDir := d.IsDir()
		if d.Type()&fs.ModeSymlink != 0 {
			// 指向目录的符号链接也算数据集，但不穿过链接继续向下扫描（避免环）。
			ok, err := fsx.IsDir(path)
			if err != nil {
				issues = append(issues, domain.Issue{
					Path:      path,
					ErrorCode: domain.ErrCodeIOFailed,
					ErrorMsg:  fmt.Sprintf("解析符号链接失败：%v", err),
				})
				return nil
			}
			isDir = ok
		}
		if !isDir {
			return nil
		}

		ok, err := Verify(path)
		if err != nil {
			issues = append(issues, domain.Issue{
				Path:      path,
				ErrorCode: domain.ErrCodeIOFailed,
				ErrorMsg:  fmt.Sprintf("检查标记文件失败：%v", err),
			})
			return nil
		}
		if ok {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统的遍历顺序差异。
	sort.Strings(found)
	return found, issues, nil
}

// MatchFeat 等价于 glob *<task>*.feat（task 按字面量匹配，不解释通配符）。
func MatchFeat(name, task string) bool {
	if !strings.HasSuffix(name, FeatExt) {
		return false
	}
	if task == "" {
		return true
	}
	return strings.Contains(strings.TrimSuffix(name, FeatExt), task)
}

// Verify 判断 dir 是否是一个待处理的预处理数据集。
func Verify(dir string) (bool, error) {
	hasMarker, err := fsx.Exists(filepath.Join(dir, MarkerFile))
	if err != nil || !hasMarker {
		return false, err
	}
	finalized, err := fsx.Exists(filepath.Join(dir, FinalizedFile))
	if err != nil {
		return false, err
	}
	return !finalized, nil
}

// ApplyFilters 保留任一过滤子串出现在完整路径中的条目；filters 为空时全部保留。
func ApplyFilters(paths, filters []string) []string {
	if len(filters) == 0 {
		return paths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		for _, f := range filters {
			if strings.Contains(p, f) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
