package survey

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/John-Robertt/infobar/internal/app/classify"
	"github.com/John-Robertt/infobar/internal/domain"
	"github.com/John-Robertt/infobar/internal/prestats"
	"github.com/John-Robertt/infobar/internal/scan"
)

// Options 是一次 survey 的显式输入（不读取任何全局设置）。
type Options struct {
	Root     string
	Task     string
	Filters  []string
	PrefixID string
	SuffixID string
}

// Run 执行 scan → classify → scrape，得到按路径排序、带 1-based 序号的数据集列表。
//
// 错误降级规则：
// - root 不可读：返回 error（整个扫描无意义）
// - 子目录不可读/标记文件 stat 失败：记录为 Issue
// - 输出目录 stat 失败：该数据集进入 error 状态
// - 报告抓取失败：Motion 为 0/0 且 Failure 记录原因
func Run(ctx context.Context, opts Options, log *slog.Logger) (domain.Survey, error) {
	if log == nil {
		log = slog.Default()
	}
	root := filepath.Clean(opts.Root)

	sv := domain.Survey{
		Root:     root,
		Task:     opts.Task,
		Filters:  append([]string{}, opts.Filters...),
		Datasets: make([]domain.Dataset, 0, 64),
	}

	candidates, issues, err := scan.FindCandidates(root, opts.Task)
	if err != nil {
		return domain.Survey{}, fmt.Errorf("扫描 %q 失败：%w", root, err)
	}
	for _, is := range issues {
		log.Warn("scan issue", "path", is.Path, "error_code", is.ErrorCode, "error", is.ErrorMsg)
	}
	sv.Issues = issues

	candidates = scan.ApplyFilters(candidates, opts.Filters)
	log.Debug("candidates", "root", root, "count", len(candidates))

	motions := make([]domain.Motion, 0, len(candidates))
	for _, in := range candidates {
		if err := ctx.Err(); err != nil {
			return domain.Survey{}, err
		}

		derived, err := classify.IsDerivedOutput(in)
		if err != nil {
			sv.Issues = append(sv.Issues, domain.Issue{
				Path:      in,
				ErrorCode: domain.ErrCodeIOFailed,
				ErrorMsg:  fmt.Sprintf("检查 melodic.ica 失败：%v", err),
			})
			continue
		}
		if derived {
			log.Debug("skip derived output", "path", in)
			continue
		}

		d := domain.Dataset{
			Index:  len(sv.Datasets) + 1,
			Input:  in,
			Output: classify.OutputPath(in, opts.PrefixID, opts.SuffixID),
		}
		if rel, err := filepath.Rel(root, in); err == nil {
			d.RelPath = rel
		}

		classify.Apply(&d)
		if d.ErrorCode != "" {
			log.Warn("classify failed", "dataset", d.RelPath, "error", d.ErrorMsg)
		}

		d.Motion = prestats.Scrape(in)
		if !d.Motion.OK() {
			log.Debug("motion stats unavailable", "dataset", d.RelPath, "reason", d.Motion.Failure)
		}
		motions = append(motions, d.Motion)

		sv.Datasets = append(sv.Datasets, d)
	}

	sv.Motion = prestats.Summarize(motions)
	return sv, nil
}
