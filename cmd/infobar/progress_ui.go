package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/John-Robertt/infobar/internal/app/run"
	"github.com/John-Robertt/infobar/internal/config"
	"github.com/John-Robertt/infobar/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的逐行进度输出。
//
// - 所有过程信息写到 stderr，不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：ICA-AROMA 单个数据集常常要跑几十分钟，长时间无完成时定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int
	skip    int

	// active 记录正在运行的数据集（index => 显示名）。
	active map[int]string

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		active:             map[int]string{},
		keepaliveThreshold: 30 * time.Second,
		tickerInterval:     5 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig, total, workers int) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = now
	p.total = total
	p.workers = workers

	mode := "dispatch"
	if eff.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(p.w, "[%s] infobar %s\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  root: %s\n", eff.Root)
	fmt.Fprintf(p.w, "  tool: %s\n", formatTool(eff.Python, eff.ToolPath))
	fmt.Fprintf(p.w, "  params: %s\n", strings.Join(run.ExtraArgs(eff.Params, eff.Overwrite), " "))
	fmt.Fprintf(p.w, "  output: <name>%s（去除前缀 %q）\n", eff.SuffixID, eff.PrefixID)
	fmt.Fprintf(p.w, "  workers: %d\n", workers)
	fmt.Fprintf(p.w, "执行: total=%d\n\n", total)

	p.lastPrinted = time.Now()
	if total > 0 && !eff.DryRun && !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnTaskStarted(index int, d *domain.Dataset) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := d.DisplayName()
	p.active[index] = name
	fmt.Fprintf(p.w, "  -> #%d %s\n", index, name)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnTaskDone(done, total int, res domain.TaskResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = done
	p.total = total

	name, ok := p.active[res.Index]
	if !ok {
		name = res.Input
	}
	delete(p.active, res.Index)

	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] #%d %s OK (%s)\n", done, total, res.Index, name, formatShortDuration(dur))
	case domain.StatusFailed:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] #%d %s FAIL %s: %s (%s)\n",
			done, total, res.Index, name, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur))
		if tail := lastLine(res.OutputTail); tail != "" {
			fmt.Fprintf(p.w, "      %s\n", truncate(tail, 160))
		}
	case domain.StatusSkipped:
		p.skip++
		fmt.Fprintf(p.w, "[%d/%d] #%d %s SKIP %s: %s\n",
			done, total, res.Index, name, res.ErrorCode, truncate(res.ErrorMsg, 160))
	case domain.StatusPlanned:
		fmt.Fprintf(p.w, "[%d/%d] #%d PLAN %s\n", done, total, res.Index, quoteArgs(res.Args))
	default:
		fmt.Fprintf(p.w, "[%d/%d] #%d %s %s\n", done, total, res.Index, name, strings.ToUpper(res.Status))
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免结束后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 30 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if time.Since(p.lastPrinted) > threshold {
					p.printKeepaliveLocked()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) printKeepaliveLocked() {
	fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d skip=%d active=%s elapsed=%s\n",
		p.done, p.total, p.ok, p.fail, p.skip, activeIndexes(p.active), formatElapsed(time.Since(p.startedAt)),
	)
	p.lastPrinted = time.Now()
}

func activeIndexes(active map[int]string) string {
	if len(active) == 0 {
		return "-"
	}
	idx := make([]int, 0, len(active))
	for i := range active {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		parts = append(parts, fmt.Sprintf("#%d", i))
	}
	return strings.Join(parts, ",")
}

func formatTool(python, tool string) string {
	if python == "" {
		return tool
	}
	return python + " " + tool
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n\t ")
	if i := strings.LastIndexAny(s, "\r\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:runeCut(s, max)]
	}
	return s[:runeCut(s, max-3)] + "..."
}

// runeCut 返回不超过 n 的最大 rune 边界。
func runeCut(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
