package domain

import (
	"path/filepath"
	"strings"
)

// State 是数据集的处理状态（只由文件系统存在性判定得出）。
type State string

const (
	StateUnprocessed   State = "not_processed"
	StateProcessed     State = "processed"
	StatePostProcessed State = "post_processed"
	StateError         State = "error"
)

// Label 返回表格里展示的状态文案。
func (s State) Label() string {
	switch s {
	case StateUnprocessed:
		return "Not Processed"
	case StateProcessed:
		return "Processed"
	case StatePostProcessed:
		return "Post-Processed"
	case StateError:
		return "Error"
	default:
		return string(s)
	}
}

// Dataset 描述一次扫描得到的 FEAT 预处理数据集。
//
// 不变量（实现必须遵守）：
// - Input/Output 都是 clean + absolute
// - Output 只由 Input 与 prefix/suffix 派生，不读任何文件内容
// - PostProcessed 为 true 时 Processed 必为 true
type Dataset struct {
	Index int `json:"index"` // 1-based，对应表格的 # 列

	Input   string `json:"input"`
	Output  string `json:"output"`
	RelPath string `json:"rel_path"`

	Motion Motion `json:"motion"`

	Processed     bool `json:"previously_processed"`
	PostProcessed bool `json:"post_processed"`

	// ErrorCode/ErrorMsg 非空表示该数据集在判定阶段遇到了 I/O 错误（不影响其它数据集）。
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// State 由三个存在性标记推导当前状态。
func (d Dataset) State() State {
	switch {
	case d.ErrorCode != "":
		return StateError
	case d.Processed && d.PostProcessed:
		return StatePostProcessed
	case d.Processed:
		return StateProcessed
	default:
		return StateUnprocessed
	}
}

// DisplayName 把相对路径的各级目录用 "  >>  " 连接（与表格 Name 列一致）。
func (d Dataset) DisplayName() string {
	rel := d.RelPath
	if rel == "" {
		rel = filepath.Base(d.Input)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	return strings.Join(parts, "  >>  ")
}

// Issue 记录扫描阶段的非致命问题（例如某个子目录不可读）。
type Issue struct {
	Path      string `json:"path"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Survey 是一次 scan → classify → scrape 的完整结果。
type Survey struct {
	Root     string        `json:"root"`
	Task     string        `json:"task"`
	Filters  []string      `json:"filters"`
	Datasets []Dataset     `json:"datasets"`
	Issues   []Issue       `json:"issues"`
	Motion   MotionSummary `json:"motion_summary"`
}

// Lookup 按 1-based 序号取数据集。
func (s *Survey) Lookup(index int) (*Dataset, bool) {
	for i := range s.Datasets {
		if s.Datasets[i].Index == index {
			return &s.Datasets[i], true
		}
	}
	return nil, false
}
