package domain

import "fmt"

// Motion 是从 report_prestats.html 抓取的头动统计（单位 mm）。
//
// 它是一个带类型的结果：要么成功（Failure 为空），要么失败（Failure 说明原因）。
// 失败时数值固定为 0/0，文本固定为 "0"/"0"。
type Motion struct {
	AbsoluteText string  `json:"absolute_text"`
	RelativeText string  `json:"relative_text"`
	Absolute     float64 `json:"absolute"`
	Relative     float64 `json:"relative"`
	Failure      string  `json:"failure,omitempty"`
}

// MotionFailed 构造失败结果。
func MotionFailed(reason string) Motion {
	return Motion{AbsoluteText: "0", RelativeText: "0", Failure: reason}
}

func (m Motion) OK() bool { return m.Failure == "" }

// Values 返回 [absolute, relative] 两个数值字符串。
func (m Motion) Values() []string {
	return []string{m.AbsoluteText, m.RelativeText}
}

func (m Motion) String() string {
	return fmt.Sprintf("Abs: %s Rel: %s", m.AbsoluteText, m.RelativeText)
}

// MotionSummary 汇总一次扫描的头动统计（只统计抓取成功的数据集）。
type MotionSummary struct {
	Count        int     `json:"count"`
	Failed       int     `json:"failed"`
	AbsoluteMean float64 `json:"absolute_mean"`
	AbsoluteSD   float64 `json:"absolute_sd"`
	RelativeMean float64 `json:"relative_mean"`
	RelativeSD   float64 `json:"relative_sd"`
}
