package scan

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

func TestFindCandidates_MarkerRules(t *testing.T) {
	root := t.TempDir()

	// 合格：有 prestats 报告。
	touch(t, filepath.Join(root, "sub-01", "rest.feat", MarkerFile))
	// 不合格：已是统计结果。
	touch(t, filepath.Join(root, "sub-01", "stats.feat", MarkerFile))
	touch(t, filepath.Join(root, "sub-01", "stats.feat", FinalizedFile))
	// 不合格：缺少报告。
	mkdir(t, filepath.Join(root, "sub-02", "rest.feat"))
	// 不合格：后缀不对。
	touch(t, filepath.Join(root, "sub-03", "rest.ica", MarkerFile))

	got, issues, err := FindCandidates(root, "")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("不期望 issues：%+v", issues)
	}
	want := []string{filepath.Join(root, "sub-01", "rest.feat")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("期望 %v，实际 %v", want, got)
	}
}

func TestFindCandidates_TaskSubstringAndNested(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "b", "run1_motor_prefeat.feat", MarkerFile))
	touch(t, filepath.Join(root, "a", "run1_rest_prefeat.feat", MarkerFile))
	// 嵌套在另一个 .feat 内部的数据集也应被发现。
	touch(t, filepath.Join(root, "a", "run1_rest_prefeat.feat", "inner_motor.feat", MarkerFile))

	got, _, err := FindCandidates(root, "motor")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []string{
		filepath.Join(root, "a", "run1_rest_prefeat.feat", "inner_motor.feat"),
		filepath.Join(root, "b", "run1_motor_prefeat.feat"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("期望 %v，实际 %v", want, got)
	}
}

func TestFindCandidates_UnreadableSubdirIsIssue(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("需要非 root 的 unix 权限语义")
	}
	root := t.TempDir()
	touch(t, filepath.Join(root, "ok", "x.feat", MarkerFile))
	locked := filepath.Join(root, "locked")
	mkdir(t, filepath.Join(locked, "y.feat"))
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("chmod 失败：%v", err)
	}
	defer func() { _ = os.Chmod(locked, 0o755) }()

	got, issues, err := FindCandidates(root, "")
	if err != nil {
		t.Fatalf("子目录不可读不应中断扫描：%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("期望 1 个候选，实际 %v", got)
	}
	if len(issues) != 1 || issues[0].Path != locked {
		t.Fatalf("期望 locked 目录记录为 issue，实际 %+v", issues)
	}
}

func TestFindCandidates_SymlinkedDataset(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("需要 unix 符号链接语义")
	}
	base := t.TempDir()
	store := filepath.Join(base, "store", "sub01_rest.feat")
	touch(t, filepath.Join(store, MarkerFile))
	// 链接目标内部的数据集不应通过链接被重复发现
	touch(t, filepath.Join(store, "inner.feat", MarkerFile))

	root := filepath.Join(base, "db")
	mkdir(t, root)
	link := filepath.Join(root, "sub01_rest.feat")
	if err := os.Symlink(store, link); err != nil {
		t.Fatalf("创建符号链接失败：%v", err)
	}
	// 悬空链接直接忽略
	if err := os.Symlink(filepath.Join(base, "gone.feat"), filepath.Join(root, "dangling.feat")); err != nil {
		t.Fatalf("创建符号链接失败：%v", err)
	}

	got, issues, err := FindCandidates(root, "")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("不期望 issues：%+v", issues)
	}
	want := []string{link}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("期望 %v，实际 %v", want, got)
	}
}

func TestFindCandidates_RootIsNotItsOwnCandidate(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sub01_rest.feat")
	touch(t, filepath.Join(root, MarkerFile))
	touch(t, filepath.Join(root, "nested.feat", MarkerFile))

	got, _, err := FindCandidates(root, "")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []string{filepath.Join(root, "nested.feat")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("期望 %v，实际 %v", want, got)
	}
}

func TestFindCandidates_MissingRoot(t *testing.T) {
	if _, _, err := FindCandidates(filepath.Join(t.TempDir(), "nope"), ""); err == nil {
		t.Fatalf("root 不存在应返回错误")
	}
}

func TestMatchFeat(t *testing.T) {
	cases := []struct {
		name, task string
		want       bool
	}{
		{"rest.feat", "", true},
		{"rest.feat", "rest", true},
		{"sub_rest_run1.feat", "rest", true},
		{"rest.feat", "motor", false},
		{"rest.featx", "", false},
		// task 只匹配 .feat 之前的部分。
		{"x.feat", "feat", false},
		{"a[1].feat", "[1]", true},
	}
	for _, c := range cases {
		if got := MatchFeat(c.name, c.task); got != c.want {
			t.Fatalf("MatchFeat(%q,%q)=%v，期望 %v", c.name, c.task, got, c.want)
		}
	}
}

func TestApplyFilters(t *testing.T) {
	paths := []string{"/db/sub-01/rest.feat", "/db/sub-02/rest.feat", "/db/sub-03/motor.feat"}

	if got := ApplyFilters(paths, nil); !reflect.DeepEqual(got, paths) {
		t.Fatalf("空过滤应为 no-op，实际 %v", got)
	}

	got := ApplyFilters(paths, []string{"sub-01", "motor"})
	want := []string{"/db/sub-01/rest.feat", "/db/sub-03/motor.feat"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("期望 %v，实际 %v", want, got)
	}

	if got := ApplyFilters(paths, []string{"nothing"}); len(got) != 0 {
		t.Fatalf("期望空结果，实际 %v", got)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	mkdir(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
}
