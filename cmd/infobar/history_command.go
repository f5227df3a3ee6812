package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/infobar/internal/domain"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "列出最近的 dispatch 记录",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := resolveFormat(cmd, format)
			if err != nil {
				return err
			}
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return emit(cmd, format, runs, func(w io.Writer) {
				printRuns(w, runs)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "最多显示多少条")
	addFormatFlag(cmd, &format)
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "显示某次 dispatch 的逐任务结果",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := resolveFormat(cmd, format)
			if err != nil {
				return err
			}
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			rr, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(cmd, format, rr, func(w io.Writer) {
				printRunReport(w, rr)
			})
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func printRuns(w io.Writer, runs []domain.RunReport) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "没有运行记录")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			formatElapsed(r.FinishedAt.Sub(r.StartedAt)),
			r.Root,
			strconv.Itoa(r.Summary.Total),
			strconv.Itoa(r.Summary.Processed),
			strconv.Itoa(r.Summary.Failed),
			strconv.Itoa(r.Summary.Skipped),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Run", "Started", "Elapsed", "Root", "Total", "OK", "Fail", "Skip"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
}
