package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusPlanned   = "planned"
)

const (
	ErrCodeExitNonZero     = "exit_nonzero"
	ErrCodeSpawnFailed     = "spawn_failed"
	ErrCodeCanceled        = "canceled"
	ErrCodeDatasetInvalid  = "dataset_invalid"
	ErrCodeIOFailed        = "io_failed"
	ErrCodeScanFailed      = "scan_failed"
	ErrCodeLocked          = "dispatch_locked"
	ErrCodeSettingsInvalid = "settings_invalid"
)

// RunReport 是一次 dispatch 的对外稳定输出（stdout JSON / history 记录）。
type RunReport struct {
	RunID  string `json:"run_id"`
	Root   string `json:"root"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary RunSummary   `json:"summary"`
	Tasks   []TaskResult `json:"tasks"`
}

type RunSummary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Planned   int `json:"planned"`
}

// TaskResult 是单个外部进程调用的结果。
type TaskResult struct {
	Index  int      `json:"index"`
	Input  string   `json:"input"`
	Output string   `json:"output"`
	Args   []string `json:"args"`

	Status     string `json:"status"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
	ErrorCode  string `json:"error_code"`
	ErrorMsg   string `json:"error_msg"`

	// OutputTail 只保留外部进程输出的末尾（失败时便于定位）。
	OutputTail string `json:"output_tail,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) tasks 按 index 稳定排序（完成顺序不确定，输出顺序必须确定）
// 3) summary 由 tasks 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Tasks, func(i, j int) bool { return r.Tasks[i].Index < r.Tasks[j].Index })

	s := RunSummary{Total: len(r.Tasks)}
	for _, t := range r.Tasks {
		switch t.Status {
		case StatusProcessed:
			s.Processed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusPlanned:
			s.Planned++
		}
	}
	r.Summary = s
}

// MarshalJSON 保证 tasks 为空时输出 [] 而不是 null。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	if r.Tasks == nil {
		r.Tasks = []TaskResult{}
	}
	return json.Marshal(Alias(r))
}
