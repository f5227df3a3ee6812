package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s, exists, err := Load(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if exists {
		t.Fatalf("文件不存在时 exists 应为 false")
	}
	if !reflect.DeepEqual(s, Defaults()) {
		t.Fatalf("期望内置默认值，实际 %+v", s)
	}
}

func TestLoad_LegacyJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, []byte(`{
  "icaPath": "/opt/ICA-AROMA/ICA_AROMA.py",
  "prefeat_identifier": "_prefeat",
  "output_identifier": "_AROMA",
  "user": ["2", "20", "aggr"],
  "defaults": ["", "0", "nonaggr"]
}`))

	s, exists, err := Load(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !exists {
		t.Fatalf("期望 exists=true")
	}
	if s.ToolPath != "/opt/ICA-AROMA/ICA_AROMA.py" || s.PrefixID != "_prefeat" || s.SuffixID != "_AROMA" {
		t.Fatalf("字段解析不正确：%+v", s)
	}
	if s.User != (Params{TR: "2", Dim: "20", Den: "aggr"}) {
		t.Fatalf("user 参数不正确：%+v", s.User)
	}
	// 旧版文件没有 python 字段：沿用默认解释器。
	if s.Python != DefaultPython {
		t.Fatalf("期望 python=%q，实际 %q", DefaultPython, s.Python)
	}
}

func TestLoad_InvalidParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, []byte(`{"user": ["", "abc", "nonaggr"]}`))

	_, _, err := Load(path)
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v", ErrCodeInvalid, err)
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, []byte(`{`))

	_, _, err := Load(path)
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v", ErrCodeInvalid, err)
	}
}

func TestSaveLoad_RoundTripJSONAndTOML(t *testing.T) {
	for _, name := range []string{"settings.json", "settings.toml"} {
		path := filepath.Join(t.TempDir(), "nested", name)

		s := Defaults()
		s.ToolPath = "/opt/aroma.py"
		s.PrefixID = "_pre"
		s.SuffixID = "_out"
		s.Python = ""
		s.User = Params{TR: "1.5", Dim: "10", Den: "both"}
		s.Concurrency = 3

		if err := Save(path, s); err != nil {
			t.Fatalf("%s: 保存失败：%v", name, err)
		}
		got, exists, err := Load(path)
		if err != nil || !exists {
			t.Fatalf("%s: 读取失败：exists=%v err=%v", name, exists, err)
		}
		if !reflect.DeepEqual(got, s) {
			t.Fatalf("%s: 往返不一致：\n期望 %+v\n实际 %+v", name, s, got)
		}
	}
}

func TestSave_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := Defaults()
	s.User.Den = "strong"

	if err := Save(path, s); Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v", ErrCodeInvalid, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("非法设置不应落盘，Stat err=%v", err)
	}
}

func TestResetToDefaults(t *testing.T) {
	s := Defaults()
	s.Defaults = Params{TR: "2", Dim: "0", Den: "nonaggr"}
	s.User = Params{TR: "", Dim: "30", Den: "aggr"}

	s.ResetToDefaults()
	if s.User != s.Defaults {
		t.Fatalf("期望 user=defaults，实际 %+v", s.User)
	}
}

func TestParseFilters(t *testing.T) {
	cases := map[string][]string{
		"":             {},
		"sub-01":       {"sub-01"},
		"sub-01;ses-2": {"sub-01", "ses-2"},
		" a ; ;b;":     {"a", "b"},
	}
	for in, want := range cases {
		got := ParseFilters(in)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("ParseFilters(%q)：期望 %v，实际 %v", in, want, got)
		}
	}
}

func TestResolveWorkers(t *testing.T) {
	if got := ResolveWorkers(3); got != 3 {
		t.Fatalf("期望 3，实际 %d", got)
	}
	if got := ResolveWorkers(1000); got != MaxConcurrency {
		t.Fatalf("期望截断为 %d，实际 %d", MaxConcurrency, got)
	}
	if got := ResolveWorkers(0); got < 1 || got > 32 {
		t.Fatalf("自动并发应在 [1, 32]，实际 %d", got)
	}
}

func TestResolvePath_Priority(t *testing.T) {
	t.Setenv(EnvSettings, "/tmp/from-env.json")

	got, err := ResolvePath("/tmp/from-flag.json")
	if err != nil || got != "/tmp/from-flag.json" {
		t.Fatalf("flag 应优先：got=%q err=%v", got, err)
	}
	got, err = ResolvePath("")
	if err != nil || got != "/tmp/from-env.json" {
		t.Fatalf("应使用环境变量：got=%q err=%v", got, err)
	}
}

func TestMerge_CLIOverrides(t *testing.T) {
	cwd := t.TempDir()
	if err := os.MkdirAll(filepath.Join(cwd, "db"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	s := Defaults()
	s.ToolPath = "/opt/a.py"
	s.Concurrency = 2

	eff, err := Merge(cwd, s, CLIArgs{
		Root:      "db",
		Filters:   "x;y",
		Python:    "",
		PythonSet: true,
		Workers:   5,
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Root != filepath.Join(cwd, "db") {
		t.Fatalf("root 未按 cwd 解析：%q", eff.Root)
	}
	if eff.Python != "" {
		t.Fatalf("--python=\"\" 应覆盖设置文件，实际 %q", eff.Python)
	}
	if eff.ToolPath != "/opt/a.py" || eff.Workers != 5 {
		t.Fatalf("合并结果不正确：%+v", eff)
	}
	if !reflect.DeepEqual(eff.Filters, []string{"x", "y"}) {
		t.Fatalf("filters 不正确：%v", eff.Filters)
	}
}

func TestMerge_RootMustBeDir(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "file"), []byte("x"))

	if _, err := Merge(cwd, Defaults(), CLIArgs{Root: "file"}); err == nil {
		t.Fatalf("root 是文件时应报错")
	}
	if _, err := Merge(cwd, Defaults(), CLIArgs{Root: "missing"}); err == nil {
		t.Fatalf("root 不存在时应报错")
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}
