package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/infobar/internal/config"
	"github.com/John-Robertt/infobar/internal/domain"
	"github.com/John-Robertt/infobar/internal/infra/execx"
)

// Runner 抽象外部进程调用（测试中用假实现替换）。
type Runner interface {
	Run(ctx context.Context, argv []string) (execx.Result, error)
}

// BuildArgs 构造一次 ICA-AROMA 调用的完整 argv（顺序固定）：
//
//	[python] tool -feat <in> -out <out> -dim <dim> -den <den> [-tr <tr>] [-overwrite]
//
// python 为空时直接执行 tool。
func BuildArgs(python, tool, in, out string, p config.Params, overwrite bool) []string {
	argv := make([]string, 0, 12)
	if python = strings.TrimSpace(python); python != "" {
		argv = append(argv, python)
	}
	argv = append(argv, tool, "-feat", in, "-out", out)
	argv = append(argv, ExtraArgs(p, overwrite)...)
	return argv
}

// ExtraArgs 是所有数据集共享的参数部分。
func ExtraArgs(p config.Params, overwrite bool) []string {
	args := []string{"-dim", p.Dim, "-den", p.Den}
	if p.TR != "" {
		args = append(args, "-tr", p.TR)
	}
	if overwrite {
		args = append(args, "-overwrite")
	}
	return args
}

// Execute 对选中的数据集并发调用外部工具，并返回对外稳定的 RunReport。
//
// 约束：
// - N 个数据集 => 恰好 N 次调用（dry-run 为 0 次，状态 planned）
// - 完成顺序不确定；报告按 index 排序
// - 单个失败不影响其它任务；只有退出码为 0 才把数据集标记为 processed
// - error 状态的数据集直接 skipped，不调用外部工具
func Execute(ctx context.Context, eff config.EffectiveConfig, datasets []*domain.Dataset, runner Runner, obs Observer) domain.RunReport {
	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Root:      eff.Root,
		DryRun:    eff.DryRun,
		StartedAt: time.Now().UTC(),
		Tasks:     make([]domain.TaskResult, 0, len(datasets)),
	}

	workers := eff.Workers
	if workers < 1 {
		workers = 1
	}
	if obs != nil {
		obs.OnStart(eff, len(datasets), workers)
	}

	pending := make([]*domain.Dataset, 0, len(datasets))
	done := 0
	finish := func(res domain.TaskResult, dur time.Duration) {
		done++
		rr.Tasks = append(rr.Tasks, res)
		if obs != nil {
			obs.OnTaskDone(done, len(datasets), res, dur)
		}
	}

	for _, d := range datasets {
		res := baseResult(eff, d)
		switch {
		case d.ErrorCode != "":
			res.Status = domain.StatusSkipped
			res.ErrorCode = domain.ErrCodeDatasetInvalid
			res.ErrorMsg = d.ErrorMsg
			finish(res, 0)
		case eff.DryRun:
			res.Status = domain.StatusPlanned
			finish(res, 0)
		default:
			pending = append(pending, d)
		}
	}

	type execResult struct {
		res domain.TaskResult
		dur time.Duration
	}

	jobs := make(chan *domain.Dataset)
	results := make(chan execResult, len(pending))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range jobs {
				// 已取消的任务不会启动进程，也就不发 started 事件。
				if obs != nil && ctx.Err() == nil {
					obs.OnTaskStarted(d.Index, d)
				}
				started := time.Now()
				r := execOne(ctx, eff, d, runner)
				results <- execResult{res: r, dur: time.Since(started)}
			}
		}()
	}

	go func() {
		for _, d := range pending {
			jobs <- d
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for it := range results {
		finish(it.res, it.dur)
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

func baseResult(eff config.EffectiveConfig, d *domain.Dataset) domain.TaskResult {
	return domain.TaskResult{
		Index:  d.Index,
		Input:  d.Input,
		Output: d.Output,
		Args:   BuildArgs(eff.Python, eff.ToolPath, d.Input, d.Output, eff.Params, eff.Overwrite),
	}
}

// execOne 只触碰传入的数据集（每个数据集同一时刻只属于一个 worker）。
func execOne(ctx context.Context, eff config.EffectiveConfig, d *domain.Dataset, runner Runner) domain.TaskResult {
	res := baseResult(eff, d)

	// ctx 已取消：不再启动新进程。
	if err := ctx.Err(); err != nil {
		res.Status = domain.StatusFailed
		res.ExitCode = -1
		res.ErrorCode = domain.ErrCodeCanceled
		res.ErrorMsg = err.Error()
		return res
	}

	out, err := runner.Run(ctx, res.Args)
	res.ExitCode = out.ExitCode
	res.DurationMS = out.Duration.Milliseconds()
	res.OutputTail = out.Tail

	switch {
	case err != nil:
		res.Status = domain.StatusFailed
		var se *execx.StartError
		switch {
		case errors.As(err, &se):
			res.ErrorCode = domain.ErrCodeSpawnFailed
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			res.ErrorCode = domain.ErrCodeCanceled
		default:
			res.ErrorCode = domain.ErrCodeSpawnFailed
		}
		res.ErrorMsg = err.Error()
	case out.ExitCode != 0:
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeExitNonZero
		res.ErrorMsg = fmt.Sprintf("ICA-AROMA 退出码 %d", out.ExitCode)
	default:
		res.Status = domain.StatusProcessed
		d.Processed = true
	}
	return res
}
