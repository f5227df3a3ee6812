package run

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFile 是根目录下的 dispatch 互斥锁文件。
const LockFile = ".infobar.lock"

// ErrLocked 表示同一根目录已有其它 dispatch 在运行。
type ErrLocked struct {
	Path string
}

func (e *ErrLocked) Error() string {
	return fmt.Sprintf("另一个 infobar 进程正在处理该目录（锁文件 %q）", e.Path)
}

// AcquireRootLock 获取 <root>/.infobar.lock 的排他锁（非阻塞）。
// 返回的 release 必须调用。
func AcquireRootLock(root string) (release func(), err error) {
	path := filepath.Join(root, LockFile)
	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("获取锁 %q 失败：%w", path, err)
	}
	if !ok {
		return nil, &ErrLocked{Path: path}
	}
	return func() { _ = l.Unlock() }, nil
}
