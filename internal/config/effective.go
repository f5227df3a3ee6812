package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CLIArgs 是命令行可覆盖的字段，保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --python="" 必须能覆盖设置文件里的解释器。
type CLIArgs struct {
	Root    string
	Task    string
	Filters string

	ToolPath string
	ToolSet  bool

	Python    string
	PythonSet bool

	Workers int // 0 表示沿用设置文件

	Overwrite bool
	DryRun    bool
}

// EffectiveConfig 是合并后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Root    string
	Task    string
	Filters []string

	ToolPath string
	Python   string
	PrefixID string
	SuffixID string

	Params    Params
	Overwrite bool
	Workers   int
	DryRun    bool
}

// Merge 把设置值与 CLI 参数合并为 EffectiveConfig。
//
// 覆盖优先级（固定）：
// - tool/python/workers：CLI > 设置文件 > 内置默认
// - prefix/suffix/params：仅由设置文件控制（通过 settings set 修改）
func Merge(cwd string, s Settings, cli CLIArgs) (EffectiveConfig, error) {
	root := strings.TrimSpace(cli.Root)
	if root == "" {
		return EffectiveConfig{}, fmt.Errorf("缺少数据库根目录")
	}
	if !filepath.IsAbs(root) {
		root = filepath.Join(cwd, root)
	}
	root = filepath.Clean(root)

	fi, err := os.Stat(root)
	if err != nil {
		return EffectiveConfig{}, fmt.Errorf("读取根目录失败：%w", err)
	}
	if !fi.IsDir() {
		return EffectiveConfig{}, fmt.Errorf("根目录不是目录：%q", root)
	}

	tool := s.ToolPath
	if cli.ToolSet {
		tool = strings.TrimSpace(cli.ToolPath)
	}
	python := s.Python
	if cli.PythonSet {
		python = strings.TrimSpace(cli.Python)
	}

	workers := s.Concurrency
	if cli.Workers != 0 {
		if cli.Workers < 0 {
			return EffectiveConfig{}, fmt.Errorf("--workers 不能为负数：%d", cli.Workers)
		}
		workers = cli.Workers
	}

	if err := s.User.Validate(); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: err}
	}

	return EffectiveConfig{
		Root:      root,
		Task:      strings.TrimSpace(cli.Task),
		Filters:   ParseFilters(cli.Filters),
		ToolPath:  tool,
		Python:    python,
		PrefixID:  s.PrefixID,
		SuffixID:  s.SuffixID,
		Params:    s.User,
		Overwrite: cli.Overwrite,
		Workers:   ResolveWorkers(workers),
		DryRun:    cli.DryRun,
	}, nil
}

// RequireTool 在真正 dispatch 前校验工具路径。
func (e EffectiveConfig) RequireTool() error {
	if strings.TrimSpace(e.ToolPath) == "" {
		return fmt.Errorf("未配置 ICA-AROMA 路径（使用 settings set --tool 或 --tool）")
	}
	return nil
}
