package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var (
		settingsFlag string
		logLevel     string
		logFormat    string
	)

	ctx := newCommandContext(&settingsFlag, &logLevel, &logFormat)

	rootCmd := &cobra.Command{
		Use:   "infobar",
		Short: "批量调度 ICA-AROMA 处理 FEAT 预处理数据集",
		Long: `infobar 扫描一个数据库目录，找出 FEAT 预处理数据集（*.feat），
判定每个数据集是否已被 ICA-AROMA 处理，抓取头动统计，并并发调用 ICA-AROMA。

stdout 是交互终端时输出表格；否则 stdout 只输出一个 JSON 文档（进度与日志走 stderr）。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env 可选
			_ = godotenv.Load()
			return ctx.initLogger(cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&settingsFlag, "settings", "", "设置文件路径（默认 $INFOBAR_SETTINGS 或用户配置目录）")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "日志级别：debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "日志格式：console|json")

	rootCmd.AddCommand(newScanCommand(ctx))
	rootCmd.AddCommand(newProcessCommand(ctx))
	rootCmd.AddCommand(newPreviewCommand(ctx))
	rootCmd.AddCommand(newSettingsCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))

	return rootCmd
}
