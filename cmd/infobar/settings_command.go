package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/infobar/internal/app/run"
	"github.com/John-Robertt/infobar/internal/config"
)

// settingsView 是 settings show 的输出结构。
type settingsView struct {
	Path        string     `json:"path"`
	Exists      bool       `json:"exists"`
	ToolPath    string     `json:"tool_path"`
	Python      string     `json:"python"`
	PrefixID    string     `json:"prefix_id"`
	SuffixID    string     `json:"suffix_id"`
	User        paramsView `json:"user"`
	Defaults    paramsView `json:"defaults"`
	Concurrency int        `json:"concurrency"`
	Workers     int        `json:"effective_workers"`
}

type paramsView struct {
	TR  string `json:"tr"`
	Dim string `json:"dim"`
	Den string `json:"den"`
}

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "查看或修改设置",
	}
	cmd.AddCommand(newSettingsShowCommand(ctx))
	cmd.AddCommand(newSettingsPathCommand(ctx))
	cmd.AddCommand(newSettingsSetCommand(ctx))
	cmd.AddCommand(newSettingsDefaultsCommand(ctx))
	return cmd
}

func newSettingsShowCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "显示当前设置",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := resolveFormat(cmd, format)
			if err != nil {
				return err
			}
			path, s, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			v := newSettingsView(path, ctx.settingsSeen, s)
			return emit(cmd, format, v, func(w io.Writer) {
				printSettings(w, v)
			})
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func newSettingsPathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "输出设置文件路径",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ResolvePath(deref(ctx.settingsFlag))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	var (
		tool, python, prefix, suffix string
		tr, dim, den                 string
		workers                      int
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "修改设置并写回设置文件",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, s, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			f := cmd.Flags()
			changed := false
			for _, name := range []string{"tool", "python", "prefix", "suffix", "tr", "dim", "den", "workers"} {
				changed = changed || f.Changed(name)
			}
			if !changed {
				return fmt.Errorf("没有指定要修改的设置")
			}
			if f.Changed("tool") {
				s.ToolPath = strings.TrimSpace(tool)
			}
			if f.Changed("python") {
				s.Python = strings.TrimSpace(python)
			}
			if f.Changed("prefix") {
				s.PrefixID = prefix
			}
			if f.Changed("suffix") {
				s.SuffixID = suffix
			}
			if f.Changed("tr") {
				s.User.TR = strings.TrimSpace(tr)
			}
			if f.Changed("dim") {
				s.User.Dim = strings.TrimSpace(dim)
			}
			if f.Changed("den") {
				s.User.Den = strings.TrimSpace(den)
			}
			if f.Changed("workers") {
				s.Concurrency = workers
			}
			if err := config.Save(path, s); err != nil {
				return err
			}
			ctx.settings = s
			ctx.log().Info("settings saved", "path", path)
			fmt.Fprintf(cmd.OutOrStdout(), "已保存：%s\n", path)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&tool, "tool", "", "ICA-AROMA 脚本路径")
	f.StringVar(&python, "python", "", "解释器（空串表示直接执行脚本）")
	f.StringVar(&prefix, "prefix", "", "生成输出目录名时从输入名中去除的子串")
	f.StringVar(&suffix, "suffix", "", "输出目录名后缀")
	f.StringVar(&tr, "tr", "", "TR（秒，空表示由工具读取）")
	f.StringVar(&dim, "dim", "", "MELODIC 维度（0 表示自动）")
	f.StringVar(&den, "den", "", "去噪方式：nonaggr|aggr|both|no")
	f.IntVar(&workers, "workers", 0, "并发进程数（0 表示自动）")
	return cmd
}

func newSettingsDefaultsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "把参数恢复为默认参数并写回",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, s, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			s.ResetToDefaults()
			if err := config.Save(path, s); err != nil {
				return err
			}
			ctx.settings = s
			fmt.Fprintf(cmd.OutOrStdout(), "已恢复默认参数：%s\n", strings.Join(run.ExtraArgs(s.User, false), " "))
			return nil
		},
	}
}

func newSettingsView(path string, exists bool, s config.Settings) settingsView {
	return settingsView{
		Path:        path,
		Exists:      exists,
		ToolPath:    s.ToolPath,
		Python:      s.Python,
		PrefixID:    s.PrefixID,
		SuffixID:    s.SuffixID,
		User:        paramsView{TR: s.User.TR, Dim: s.User.Dim, Den: s.User.Den},
		Defaults:    paramsView{TR: s.Defaults.TR, Dim: s.Defaults.Dim, Den: s.Defaults.Den},
		Concurrency: s.Concurrency,
		Workers:     s.Workers(),
	}
}

func printSettings(w io.Writer, v settingsView) {
	state := "已存在"
	if !v.Exists {
		state = "不存在，使用内置默认值"
	}
	fmt.Fprintf(w, "设置文件: %s（%s）\n", v.Path, state)
	rows := [][]string{
		{"icaPath", orDash(v.ToolPath)},
		{"python", orDash(v.Python)},
		{"prefeat_identifier", orDash(v.PrefixID)},
		{"output_identifier", orDash(v.SuffixID)},
		{"tr", orDash(v.User.TR) + "  (default " + orDash(v.Defaults.TR) + ")"},
		{"dim", v.User.Dim + "  (default " + v.Defaults.Dim + ")"},
		{"den", v.User.Den + "  (default " + v.Defaults.Den + ")"},
		{"concurrency", fmt.Sprintf("%d (workers=%d)", v.Concurrency, v.Workers)},
	}
	fmt.Fprintln(w, renderTable([]string{"Key", "Value"}, rows, nil))
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
