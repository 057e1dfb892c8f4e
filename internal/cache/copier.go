package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const (
	// DefaultAttempts 是单个文件复制的总尝试次数。
	DefaultAttempts = 5
	// DefaultBackoff 是线性退避的步长，第 n 次失败后等待 n*DefaultBackoff。
	DefaultBackoff = 300 * time.Millisecond
)

// Copier 把 src 覆盖复制到 dst。
type Copier interface {
	Copy(ctx context.Context, src, dst string, sink LogSink) error
}

// ResilientCopier 在复制前清理只读属性，并对失败的复制做线性退避重试。
// 最后一次失败的错误原样（包装后）返回给调用方。
type ResilientCopier struct {
	fs       afero.Fs
	attempts int
	backoff  time.Duration
	sleep    func(context.Context, time.Duration) error
}

// CopierOption 调整 ResilientCopier 的重试参数。
type CopierOption func(*ResilientCopier)

// WithAttempts 设置总尝试次数，小于 1 时按 1 处理。
func WithAttempts(n int) CopierOption {
	return func(c *ResilientCopier) {
		if n < 1 {
			n = 1
		}
		c.attempts = n
	}
}

// WithBackoff 设置退避步长。
func WithBackoff(d time.Duration) CopierOption {
	return func(c *ResilientCopier) {
		if d < 0 {
			d = 0
		}
		c.backoff = d
	}
}

// NewResilientCopier 基于 fsys 构造复制器，默认 5 次尝试、300ms 步长。
func NewResilientCopier(fsys afero.Fs, opts ...CopierOption) *ResilientCopier {
	c := &ResilientCopier{
		fs:       fsys,
		attempts: DefaultAttempts,
		backoff:  DefaultBackoff,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Copy 实现 Copier。退避等待期间可被 ctx 取消，正在进行的单次复制总会执行完毕。
func (c *ResilientCopier) Copy(ctx context.Context, src, dst string, sink LogSink) error {
	c.clearReadOnly(dst, sink)
	c.clearReadOnly(src, sink)

	if err := c.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", dst, err)
	}

	for attempt := 1; ; attempt++ {
		err := c.copyOnce(src, dst)
		if err == nil {
			return nil
		}
		if attempt >= c.attempts {
			return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
		}

		wait := c.backoff * time.Duration(attempt)
		sink.emit("Tentativa %d/%d de copiar %s para %s falhou: %v. Nova tentativa em %s.",
			attempt, c.attempts, src, dst, err, wait)
		if err := c.sleep(ctx, wait); err != nil {
			return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
		}
	}
}

// copyOnce 先写入目标目录下的临时文件再 rename 覆盖，并把源文件的权限与修改时间带过去，
// 这样拉取后缓存与源文件时间戳一致，不会被误判为过期。
func (c *ResilientCopier) copyOnce(src, dst string) error {
	in, err := c.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s: %w", src, errIsDirectory)
	}

	tmp, err := afero.TempFile(c.fs, filepath.Dir(dst), ".dbcache-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = io.Copy(tmp, in)
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		c.fs.Remove(tmpName)
		return err
	}

	// TempFile 固定以 0600 创建，覆盖共享目录上的文件前需还原源文件权限
	if err := c.fs.Chmod(tmpName, info.Mode().Perm()); err != nil {
		c.fs.Remove(tmpName)
		return err
	}
	if err := c.fs.Rename(tmpName, dst); err != nil {
		c.fs.Remove(tmpName)
		return err
	}

	modTime := info.ModTime()
	return c.fs.Chtimes(dst, modTime, modTime)
}

// clearReadOnly 尽力为已存在的文件补上属主写权限（Windows 上即清除只读属性），失败只记录。
func (c *ResilientCopier) clearReadOnly(path string, sink LogSink) {
	info, err := c.fs.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			sink.emit("Não foi possível ler os atributos de %s: %v", path, err)
		}
		return
	}
	if info.IsDir() {
		return
	}

	perm := info.Mode().Perm()
	if perm&0o200 != 0 {
		return
	}
	if err := c.fs.Chmod(path, perm|0o200); err != nil {
		sink.emit("Não foi possível remover o atributo somente leitura de %s: %v", path, err)
	}
}

var errIsDirectory = errors.New("is a directory")

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
