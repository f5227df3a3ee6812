package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/infobar/internal/domain"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var (
		sf     scanFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "scan <root>",
		Short: "列出数据集、处理状态与头动统计",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := resolveFormat(cmd, format)
			if err != nil {
				return err
			}
			eff, err := ctx.effective(sf.cliArgs(args[0]))
			if err != nil {
				return err
			}
			sv, err := ctx.survey(cmd.Context(), eff)
			if err != nil {
				return err
			}
			return emit(cmd, format, sv, func(w io.Writer) {
				printSurvey(w, sv)
			})
		},
	}
	sf.register(cmd)
	addFormatFlag(cmd, &format)
	return cmd
}

func printSurvey(w io.Writer, sv domain.Survey) {
	if len(sv.Datasets) == 0 {
		fmt.Fprintf(w, "%s 下没有找到数据集\n", sv.Root)
	} else {
		rows := make([][]string, 0, len(sv.Datasets))
		for _, d := range sv.Datasets {
			rows = append(rows, []string{
				strconv.Itoa(d.Index),
				d.DisplayName(),
				d.State().Label(),
				d.Motion.String(),
			})
		}
		fmt.Fprintln(w, renderTable(
			[]string{"#", "Name", "Status", "Motion"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
		))
	}
	fmt.Fprintln(w, statusLine(sv))
	for _, is := range sv.Issues {
		fmt.Fprintf(w, "! %s %s: %s\n", is.Path, is.ErrorCode, is.ErrorMsg)
	}
}

// statusLine 汇总匹配数与头动均值 ± 标准差。
func statusLine(sv domain.Survey) string {
	m := sv.Motion
	return fmt.Sprintf("Matches Found: %d | Absolute Motion = %.2f ± %.2f mm | Relative Motion = %.2f ± %.2f mm | Stats Unavailable: %d",
		len(sv.Datasets), m.AbsoluteMean, m.AbsoluteSD, m.RelativeMean, m.RelativeSD, m.Failed)
}
