package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/infobar/internal/app/survey"
	"github.com/John-Robertt/infobar/internal/config"
	"github.com/John-Robertt/infobar/internal/domain"
	"github.com/John-Robertt/infobar/internal/history"
	"github.com/John-Robertt/infobar/internal/logging"
)

type commandContext struct {
	settingsFlag *string
	logLevel     *string
	logFormat    *string

	logger *slog.Logger

	settingsOnce sync.Once
	settingsPath string
	settings     config.Settings
	settingsSeen bool
	settingsErr  error
}

func newCommandContext(settingsFlag, logLevel, logFormat *string) *commandContext {
	return &commandContext{
		settingsFlag: settingsFlag,
		logLevel:     logLevel,
		logFormat:    logFormat,
	}
}

func (c *commandContext) initLogger(w io.Writer) error {
	logger, err := logging.New(w, logging.Options{
		Level:   deref(c.logLevel),
		Format:  deref(c.logFormat),
		NoColor: !isTerminal(w),
	})
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

func (c *commandContext) log() *slog.Logger {
	if c.logger == nil {
		return logging.Discard()
	}
	return c.logger
}

// ensureSettings 只加载一次设置文件；文件不存在时使用内置默认值。
func (c *commandContext) ensureSettings() (string, config.Settings, error) {
	c.settingsOnce.Do(func() {
		path, err := config.ResolvePath(deref(c.settingsFlag))
		if err != nil {
			c.settingsErr = err
			return
		}
		c.settingsPath = path
		s, exists, err := config.Load(path)
		if err != nil {
			c.settingsErr = err
			return
		}
		if !exists {
			c.log().Debug("settings file not found, using defaults", "path", path)
		}
		c.settings = s
		c.settingsSeen = exists
	})
	return c.settingsPath, c.settings, c.settingsErr
}

// historyPath 与设置文件放在同一目录。
func (c *commandContext) historyPath() (string, error) {
	path, _, err := c.ensureSettings()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(path), history.FileName), nil
}

func (c *commandContext) openHistory() (*history.Store, error) {
	path, err := c.historyPath()
	if err != nil {
		return nil, err
	}
	return history.Open(path)
}

// effective 把设置与命令行参数合并为一次运行的显式配置。
func (c *commandContext) effective(cli config.CLIArgs) (config.EffectiveConfig, error) {
	_, s, err := c.ensureSettings()
	if err != nil {
		return config.EffectiveConfig{}, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return config.EffectiveConfig{}, fmt.Errorf("读取当前目录失败：%w", err)
	}
	return config.Merge(cwd, s, cli)
}

func (c *commandContext) survey(ctx context.Context, eff config.EffectiveConfig) (domain.Survey, error) {
	return survey.Run(ctx, survey.Options{
		Root:     eff.Root,
		Task:     eff.Task,
		Filters:  eff.Filters,
		PrefixID: eff.PrefixID,
		SuffixID: eff.SuffixID,
	}, c.log())
}

// scanFlags 是 scan/process/preview 共享的数据集定位参数。
type scanFlags struct {
	task   string
	filter string
}

func (f *scanFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.task, "task", "", "只匹配名称包含该子串的 *.feat 目录")
	cmd.Flags().StringVar(&f.filter, "filter", "", "路径过滤，多个子串用 ; 分隔（任一命中即保留）")
}

func (f scanFlags) cliArgs(root string) config.CLIArgs {
	return config.CLIArgs{Root: root, Task: f.task, Filters: f.filter}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
