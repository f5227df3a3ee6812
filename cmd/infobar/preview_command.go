package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/infobar/internal/app/preview"
)

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var (
		sf     scanFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "preview <root> <index>",
		Short: "列出某个数据集可查看的 QC 图片",
		Long: `preview 按数据集状态列出图片：
  未处理：mc/ 下的平移、旋转、位移曲线
  已处理：另加每个运动成分的 IC_<n>_thresh.png
  已后处理：另加 rendered_thresh_zstat1.png 与 tsplot_zstat1.png`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := resolveFormat(cmd, format)
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("序号非法：%q", args[1])
			}
			eff, err := ctx.effective(sf.cliArgs(args[0]))
			if err != nil {
				return err
			}
			sv, err := ctx.survey(cmd.Context(), eff)
			if err != nil {
				return err
			}
			d, ok := sv.Lookup(index)
			if !ok {
				return fmt.Errorf("序号 %d 不存在（共 %d 个数据集）", index, len(sv.Datasets))
			}

			m := preview.Build(*d)
			return emit(cmd, format, m, func(w io.Writer) {
				printManifest(w, m)
			})
		},
	}
	sf.register(cmd)
	addFormatFlag(cmd, &format)
	return cmd
}

func printManifest(w io.Writer, m preview.Manifest) {
	fmt.Fprintf(w, "#%d %s [%s]\n", m.Index, m.Name, m.State.Label())
	rows := make([][]string, 0, len(m.Images))
	for _, img := range m.Images {
		size := "-"
		switch {
		case img.Error != "":
			size = truncate(img.Error, 60)
		case img.Exists:
			size = fmt.Sprintf("%dx%d", img.Width, img.Height)
		}
		exists := "no"
		if img.Exists {
			exists = "yes"
		}
		rows = append(rows, []string{string(img.Group), img.Label, exists, size, img.Path})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Group", "Label", "Exists", "Size", "Path"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	if m.Warning != "" {
		fmt.Fprintf(w, "! %s\n", m.Warning)
	}
}
