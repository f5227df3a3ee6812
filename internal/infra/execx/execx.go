package execx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// DefaultTailBytes 是默认保留的输出尾部长度。
const DefaultTailBytes = 4096

const waitDelay = 5 * time.Second

// Result 是一次外部进程调用的结果（进程已运行结束）。
type Result struct {
	ExitCode int
	Duration time.Duration
	// Tail 是合并后的 stdout/stderr 末尾（最多 TailBytes 字节）。
	Tail string
}

// StartError 表示进程无法启动（可执行文件不存在、无权限等）。
type StartError struct {
	Name string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("启动 %q 失败：%v", e.Name, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Runner 用 exec.CommandContext 运行外部命令。
//
// 约束：
// - 非 0 退出码不是 error：由 Result.ExitCode 表达，调用方决定如何归类
// - 启动失败返回 *StartError；ctx 取消返回 ctx.Err()（进程会被杀掉）
type Runner struct {
	TailBytes int
	// Echo 非空时实时转发进程输出（process --echo 时写到 stderr）。
	Echo io.Writer
}

func (r Runner) Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, &StartError{Err: errors.New("argv 为空")}
	}

	limit := r.TailBytes
	if limit <= 0 {
		limit = DefaultTailBytes
	}
	tail := &tailBuffer{max: limit}

	var out io.Writer = tail
	if r.Echo != nil {
		out = io.MultiWriter(tail, r.Echo)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out
	// 取消后子进程的子进程可能仍持有输出管道：限制 Wait 的等待时间。
	cmd.WaitDelay = waitDelay

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, &StartError{Name: argv[0], Err: err}
	}
	err := cmd.Wait()
	res := Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(started),
		Tail:     tail.String(),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	var ee *exec.ExitError
	if err != nil && !errors.As(err, &ee) {
		return res, err
	}
	return res, nil
}

// tailBuffer 只保留最后 max 字节（外部工具的日志可能非常长）。
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	if len(p) >= t.max {
		t.buf = append(t.buf[:0], p[len(p)-t.max:]...)
		return n, nil
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
