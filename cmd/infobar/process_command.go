package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/infobar/internal/app/run"
	"github.com/John-Robertt/infobar/internal/config"
	"github.com/John-Robertt/infobar/internal/domain"
	"github.com/John-Robertt/infobar/internal/infra/execx"
)

// errTasksFailed 让进程以非零退出码结束（报告本身已经输出）。
var errTasksFailed = errors.New("部分数据集处理失败")

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		sf        scanFlags
		format    string
		selection string
		overwrite bool
		dryRun    bool
		noHistory bool
		echo      bool
		workers   int
		tool      string
		python    string
	)
	cmd := &cobra.Command{
		Use:   "process <root>",
		Short: "对选中的数据集并发调用 ICA-AROMA",
		Long: `process 先执行与 scan 相同的扫描，再对 --select 选中的数据集（默认全部）调用 ICA-AROMA。

每个数据集恰好调用一次；退出码非 0 记为 failed。任一数据集失败时命令以退出码 1 结束。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := resolveFormat(cmd, format)
			if err != nil {
				return err
			}

			// abort 在 dispatch 开始前失败：非表格输出时仍给出一个报告（error_code 可供脚本判断）。
			abort := func(root, code string, err error) error {
				if format != formatTable {
					_ = emit(cmd, format, failureReport(root, dryRun, code, err), nil)
				}
				return err
			}
			rootArg, _ := filepath.Abs(args[0])

			cli := sf.cliArgs(args[0])
			cli.Overwrite = overwrite
			cli.DryRun = dryRun
			cli.Workers = workers
			if cmd.Flags().Changed("tool") {
				cli.ToolPath, cli.ToolSet = tool, true
			}
			if cmd.Flags().Changed("python") {
				cli.Python, cli.PythonSet = python, true
			}

			eff, err := ctx.effective(cli)
			if err != nil {
				code := domain.ErrCodeScanFailed
				if config.Code(err) != "" {
					code = domain.ErrCodeSettingsInvalid
				}
				return abort(rootArg, code, err)
			}
			if err := eff.RequireTool(); err != nil {
				return abort(eff.Root, domain.ErrCodeSettingsInvalid, err)
			}

			if !eff.DryRun {
				release, err := run.AcquireRootLock(eff.Root)
				if err != nil {
					code := domain.ErrCodeIOFailed
					var le *run.ErrLocked
					if errors.As(err, &le) {
						code = domain.ErrCodeLocked
					}
					return abort(eff.Root, code, err)
				}
				defer release()
			}

			sv, err := ctx.survey(cmd.Context(), eff)
			if err != nil {
				return abort(eff.Root, domain.ErrCodeScanFailed, err)
			}
			picked, err := pickDatasets(&sv, selection)
			if err != nil {
				return err
			}

			var obs run.Observer
			if w, ok := progressWriter(cmd); ok {
				obs = newProgressUI(w)
			}
			runner := execx.Runner{TailBytes: execx.DefaultTailBytes}
			if echo {
				runner.Echo = cmd.ErrOrStderr()
			}

			log := ctx.log()
			log.Info("dispatch start", "root", eff.Root, "datasets", len(picked), "workers", eff.Workers, "dry_run", eff.DryRun)
			rr := run.Execute(cmd.Context(), eff, picked, runner, obs)
			log.Info("dispatch done", "run_id", rr.RunID,
				"processed", rr.Summary.Processed, "failed", rr.Summary.Failed,
				"skipped", rr.Summary.Skipped, "planned", rr.Summary.Planned)

			if !noHistory && !rr.DryRun {
				recordHistory(cmd, ctx, rr)
			}

			if err := emit(cmd, format, rr, func(w io.Writer) {
				printRunReport(w, rr)
			}); err != nil {
				return err
			}
			if rr.Summary.Failed > 0 {
				return errTasksFailed
			}
			return nil
		},
	}
	sf.register(cmd)
	addFormatFlag(cmd, &format)
	cmd.Flags().StringVar(&selection, "select", "", "要处理的序号，例如 1,3-5（默认全部）")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "向 ICA-AROMA 传 -overwrite")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只输出将要执行的命令，不启动进程")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "不写入运行历史")
	cmd.Flags().BoolVar(&echo, "echo", false, "把 ICA-AROMA 的输出实时转发到 stderr")
	cmd.Flags().IntVar(&workers, "workers", 0, "并发进程数（默认取设置，设置为 0 时自动）")
	cmd.Flags().StringVar(&tool, "tool", "", "ICA-AROMA 脚本路径（覆盖设置）")
	cmd.Flags().StringVar(&python, "python", "", "解释器（覆盖设置；传空串表示直接执行脚本）")
	return cmd
}

// pickDatasets 按 --select 从扫描结果中取出数据集（指针指向 sv 内部，dispatch 成功后会更新其 processed 标记）。
func pickDatasets(sv *domain.Survey, selection string) ([]*domain.Dataset, error) {
	idx, err := parseSelection(selection, len(sv.Datasets))
	if err != nil {
		return nil, err
	}
	if idx == nil {
		out := make([]*domain.Dataset, 0, len(sv.Datasets))
		for i := range sv.Datasets {
			out = append(out, &sv.Datasets[i])
		}
		return out, nil
	}
	out := make([]*domain.Dataset, 0, len(idx))
	for _, i := range idx {
		d, ok := sv.Lookup(i)
		if !ok {
			return nil, fmt.Errorf("序号 %d 不存在", i)
		}
		out = append(out, d)
	}
	return out, nil
}

// recordHistory 写入失败只记日志：历史是附加信息，不影响本次运行结果。
func recordHistory(cmd *cobra.Command, ctx *commandContext, rr domain.RunReport) {
	log := ctx.log()
	store, err := ctx.openHistory()
	if err != nil {
		log.Warn("open history failed", "error", err)
		return
	}
	defer store.Close()
	if err := store.Record(cmd.Context(), rr); err != nil {
		log.Warn("record history failed", "run_id", rr.RunID, "path", store.Path(), "error", err)
		return
	}
	log.Debug("history recorded", "run_id", rr.RunID, "path", store.Path())
}

// failureReport 构造只含一条失败记录的报告（用于 dispatch 之前的配置/锁/扫描错误）。
func failureReport(root string, dryRun bool, code string, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Root:       root,
		DryRun:     dryRun,
		StartedAt:  now,
		FinishedAt: now,
		Tasks: []domain.TaskResult{{
			Input:     root,
			Args:      []string{},
			Status:    domain.StatusFailed,
			ExitCode:  -1,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func printRunReport(w io.Writer, rr domain.RunReport) {
	if len(rr.Tasks) > 0 {
		rows := make([][]string, 0, len(rr.Tasks))
		for _, t := range rr.Tasks {
			detail := t.ErrorCode
			if t.ErrorMsg != "" {
				detail += ": " + truncate(t.ErrorMsg, 80)
			}
			rows = append(rows, []string{
				strconv.Itoa(t.Index),
				t.Input,
				t.Status,
				strconv.Itoa(t.ExitCode),
				formatShortDuration(msDuration(t.DurationMS)),
				detail,
			})
		}
		fmt.Fprintln(w, renderTable(
			[]string{"#", "Input", "Status", "Exit", "Time", "Detail"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
	}
	mode := ""
	if rr.DryRun {
		mode = " (dry-run)"
	}
	fmt.Fprintf(w, "完成%s：processed=%d failed=%d skipped=%d planned=%d run_id=%s\n", mode,
		rr.Summary.Processed, rr.Summary.Failed, rr.Summary.Skipped, rr.Summary.Planned, rr.RunID)
	if rr.DryRun {
		for _, t := range rr.Tasks {
			if t.Status == domain.StatusPlanned {
				fmt.Fprintf(w, "  %s\n", quoteArgs(t.Args))
			}
		}
	}
}

// quoteArgs 把 argv 拼成可复制到 shell 的一行（仅在含空白或引号时加单引号）。
func quoteArgs(argv []string) string {
	parts := make([]string, 0, len(argv))
	for _, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t'\"") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
