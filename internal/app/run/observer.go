package run

import (
	"time"

	"github.com/John-Robertt/infobar/internal/config"
	"github.com/John-Robertt/infobar/internal/domain"
)

// Observer 用于把“运行进度/条目状态”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：OnTaskStarted 来自多个 worker goroutine。
type Observer interface {
	// OnStart 在 Execute 开始时调用。
	OnStart(eff config.EffectiveConfig, total, workers int)
	// OnTaskStarted 在某个数据集的外部进程即将启动时调用（按 index 标识）。
	OnTaskStarted(index int, d *domain.Dataset)
	// OnTaskDone 在某个数据集结束（含 skipped/planned）时调用。
	OnTaskDone(done, total int, res domain.TaskResult, dur time.Duration)
}
