package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"

	"github.com/John-Robertt/infobar/internal/infra/fsx"
)

const (
	// ErrCodeInvalid 表示设置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "settings_invalid"
	// ErrCodeWriteFailed 表示设置文件写回失败。
	ErrCodeWriteFailed = "settings_write_failed"
)

const (
	// EnvSettings 指定设置文件路径（优先级低于 --settings）。
	EnvSettings = "INFOBAR_SETTINGS"

	DefaultPython   = "python2.7"
	DefaultSuffixID = "_ICA_AROMA"
	MaxConcurrency  = 64
)

// Params 是 ICA-AROMA 的参数三元组。
// 持久化为有序数组 [tr, dim, den]，与旧版 settings.json 兼容。
type Params struct {
	TR  string
	Dim string
	Den string
}

// DefaultParams 是内置默认参数：tr 留空（由工具从数据头读取），dim=0（自动估计）。
func DefaultParams() Params {
	return Params{TR: "", Dim: "0", Den: "nonaggr"}
}

func (p Params) slice() []string { return []string{p.TR, p.Dim, p.Den} }

func paramsFromSlice(xs []string, fallback Params) (Params, error) {
	if xs == nil {
		return fallback, nil
	}
	if len(xs) != 3 {
		return Params{}, fmt.Errorf("参数必须是 [tr, dim, den] 三元组，实际 %d 项", len(xs))
	}
	return Params{
		TR:  strings.TrimSpace(xs[0]),
		Dim: strings.TrimSpace(xs[1]),
		Den: strings.TrimSpace(xs[2]),
	}, nil
}

// Validate 校验参数是否能安全地传给外部工具。
func (p Params) Validate() error {
	if p.TR != "" {
		v, err := strconv.ParseFloat(p.TR, 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("tr 必须为空或正数，实际 %q", p.TR)
		}
	}
	d, err := strconv.Atoi(p.Dim)
	if err != nil || d < 0 {
		return fmt.Errorf("dim 必须是非负整数，实际 %q", p.Dim)
	}
	switch p.Den {
	case "nonaggr", "aggr", "both", "no":
	default:
		return fmt.Errorf("den 只能是 nonaggr|aggr|both|no，实际 %q", p.Den)
	}
	return nil
}

// FileSettings 对应设置文件（JSON 或 TOML）的解析结构。
type FileSettings struct {
	ToolPath    string   `json:"icaPath" toml:"icaPath"`
	Python      *string  `json:"python,omitempty" toml:"python,omitempty"`
	PrefixID    string   `json:"prefeat_identifier" toml:"prefeat_identifier"`
	SuffixID    *string  `json:"output_identifier,omitempty" toml:"output_identifier,omitempty"`
	User        []string `json:"user" toml:"user"`
	Defaults    []string `json:"defaults" toml:"defaults"`
	Concurrency int      `json:"concurrency,omitempty" toml:"concurrency,omitempty"`
}

// Settings 是加载并规范化后的设置值。
// 启动时加载一次，作为显式参数传给各组件；只在显式 Save 时写回。
type Settings struct {
	ToolPath string
	// Python 是运行 ICA-AROMA 脚本的解释器；为空表示直接执行 ToolPath。
	Python   string
	PrefixID string
	SuffixID string

	User     Params
	Defaults Params

	// Concurrency 为 0 表示自动：min(32, NumCPU+4)。
	Concurrency int
}

// Defaults 返回内置默认设置（设置文件不存在时使用）。
func Defaults() Settings {
	return Settings{
		Python:   DefaultPython,
		SuffixID: DefaultSuffixID,
		User:     DefaultParams(),
		Defaults: DefaultParams(),
	}
}

// ResetToDefaults 把当前参数恢复为默认参数。
func (s *Settings) ResetToDefaults() {
	s.User = s.Defaults
}

// Workers 返回 dispatch 的 worker 数。
func (s Settings) Workers() int {
	return ResolveWorkers(s.Concurrency)
}

// ResolveWorkers 把 0 解释为自动并发，并截断到 [1, MaxConcurrency]。
func ResolveWorkers(n int) int {
	if n <= 0 {
		n = runtime.NumCPU() + 4
		if n > 32 {
			n = 32
		}
	}
	if n > MaxConcurrency {
		n = MaxConcurrency
	}
	return n
}

// Validate 校验整份设置。
func (s Settings) Validate() error {
	if err := s.User.Validate(); err != nil {
		return err
	}
	if err := s.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	if s.Concurrency < 0 || s.Concurrency > MaxConcurrency {
		return fmt.Errorf("concurrency 必须在 [0, %d] 内，实际 %d", MaxConcurrency, s.Concurrency)
	}
	return nil
}

// Error 是设置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s：设置文件 %q：%v", e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("%s：设置文件 %q", e.Code, e.Path)
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ResolvePath 决定设置文件位置：flag > $INFOBAR_SETTINGS > <UserConfigDir>/infobar/settings.json。
func ResolvePath(flagValue string) (string, error) {
	if p := strings.TrimSpace(flagValue); p != "" {
		return filepath.Abs(p)
	}
	if p := strings.TrimSpace(os.Getenv(EnvSettings)); p != "" {
		return filepath.Abs(p)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("定位用户配置目录失败：%w", err)
	}
	return filepath.Join(dir, "infobar", "settings.json"), nil
}

// Load 读取设置文件。文件不存在时返回内置默认值且 exists=false（不算错误）。
func Load(path string) (s Settings, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), false, nil
		}
		return Settings{}, false, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}

	var fs FileSettings
	if isTOML(path) {
		err = toml.Unmarshal(b, &fs)
	} else {
		err = json.Unmarshal(b, &fs)
	}
	if err != nil {
		return Settings{}, true, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}

	s, err = fromFile(fs)
	if err != nil {
		return Settings{}, true, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	if err := s.Validate(); err != nil {
		return Settings{}, true, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	return s, true, nil
}

func fromFile(fs FileSettings) (Settings, error) {
	s := Defaults()
	s.ToolPath = strings.TrimSpace(fs.ToolPath)
	if fs.Python != nil {
		s.Python = strings.TrimSpace(*fs.Python)
	}
	s.PrefixID = fs.PrefixID
	if fs.SuffixID != nil {
		s.SuffixID = *fs.SuffixID
	}
	s.Concurrency = fs.Concurrency

	def, err := paramsFromSlice(fs.Defaults, DefaultParams())
	if err != nil {
		return Settings{}, fmt.Errorf("defaults: %w", err)
	}
	s.Defaults = def

	user, err := paramsFromSlice(fs.User, def)
	if err != nil {
		return Settings{}, fmt.Errorf("user: %w", err)
	}
	s.User = user
	return s, nil
}

func toFile(s Settings) FileSettings {
	python := s.Python
	suffix := s.SuffixID
	return FileSettings{
		ToolPath:    s.ToolPath,
		Python:      &python,
		PrefixID:    s.PrefixID,
		SuffixID:    &suffix,
		User:        s.User.slice(),
		Defaults:    s.Defaults.slice(),
		Concurrency: s.Concurrency,
	}
}

// Save 原子写回设置文件，并用 <path>.lock 防止多个进程同时写。
func Save(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}

	b, err := encode(path, toFile(s))
	if err != nil {
		return &Error{Code: ErrCodeWriteFailed, Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Error{Code: ErrCodeWriteFailed, Path: path, Err: err}
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return &Error{Code: ErrCodeWriteFailed, Path: path, Err: fmt.Errorf("获取设置文件锁失败：%w", err)}
	}
	defer func() { _ = lock.Unlock() }()

	if err := fsx.WriteFileAtomic(dir, filepath.Base(path), b); err != nil {
		return &Error{Code: ErrCodeWriteFailed, Path: path, Err: err}
	}
	return nil
}

func encode(path string, fs FileSettings) ([]byte, error) {
	if isTOML(path) {
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		if err := enc.Encode(fs); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	b, err := json.MarshalIndent(fs, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// ParseFilters 把 "a;b" 形式的过滤串拆成子串列表（去空白、丢弃空项）。
func ParseFilters(raw string) []string {
	out := make([]string, 0, 4)
	for _, f := range strings.Split(raw, ";") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}
