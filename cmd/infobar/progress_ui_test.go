package main

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/John-Robertt/infobar/internal/config"
	"github.com/John-Robertt/infobar/internal/domain"
)

func TestProgressUI_Lines(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressUI(&buf)

	eff := config.EffectiveConfig{
		Root:     "/db",
		ToolPath: "/opt/ICA_AROMA.py",
		Python:   "python2.7",
		SuffixID: "_ICA_AROMA",
		Params:   config.DefaultParams(),
		Workers:  2,
	}
	p.OnStart(eff, 2, 2)

	d1 := &domain.Dataset{Index: 1, Input: "/db/s1/rest.feat", RelPath: "s1/rest.feat"}
	p.OnTaskStarted(1, d1)
	p.OnTaskDone(1, 2, domain.TaskResult{Index: 1, Input: d1.Input, Status: domain.StatusProcessed}, 1500*time.Millisecond)

	p.OnTaskDone(2, 2, domain.TaskResult{
		Index: 2, Input: "/db/s2/rest.feat", Status: domain.StatusFailed,
		ErrorCode: domain.ErrCodeExitNonZero, ErrorMsg: "ICA-AROMA 退出码 1",
		OutputTail: "line one\nIOError: no such file\n",
	}, time.Second)

	out := buf.String()
	for _, want := range []string{
		"root: /db",
		"tool: python2.7 /opt/ICA_AROMA.py",
		"params: -dim 0 -den nonaggr",
		"-> #1 s1  >>  rest.feat",
		"[1/2] #1 s1  >>  rest.feat OK (1.5s)",
		"[2/2] #2 /db/s2/rest.feat FAIL exit_nonzero",
		"IOError: no such file",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("输出缺少 %q：\n%s", want, out)
		}
	}
	if p.tickerStarted {
		t.Fatalf("全部完成后 ticker 应已停止")
	}
}

func TestProgressUI_DryRunPlanLine(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressUI(&buf)
	p.OnStart(config.EffectiveConfig{Root: "/db", DryRun: true, Params: config.DefaultParams()}, 1, 1)
	p.OnTaskDone(1, 1, domain.TaskResult{
		Index: 1, Status: domain.StatusPlanned,
		Args: []string{"python2.7", "/opt/a b.py", "-feat", "/db/x.feat"},
	}, 0)

	if !strings.Contains(buf.String(), "PLAN python2.7 '/opt/a b.py' -feat /db/x.feat") {
		t.Fatalf("plan 行不符合预期：\n%s", buf.String())
	}
	if p.tickerStarted {
		t.Fatalf("dry-run 不应启动 ticker")
	}
}

func TestLastLineAndTruncate(t *testing.T) {
	if got := lastLine("a\nb\r\n\n"); got != "b" {
		t.Fatalf("lastLine=%q", got)
	}
	if got := truncate("abcdefgh", 6); got != "abc..." {
		t.Fatalf("truncate=%q", got)
	}
}

func TestTruncate_KeepsRuneBoundary(t *testing.T) {
	// 每个汉字 3 字节：max=8 => 保留 5 字节以内的完整字符
	got := truncate("退出码非零", 8)
	if !utf8.ValidString(got) {
		t.Fatalf("截断结果不是合法 UTF-8：%q", got)
	}
	if got != "退..." {
		t.Fatalf("truncate=%q", got)
	}
	if got := truncate("退出码", 2); got != "" || !utf8.ValidString(got) {
		t.Fatalf("truncate=%q", got)
	}
}
