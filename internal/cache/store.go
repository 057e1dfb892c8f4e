package cache

import (
	"errors"
	"fmt"
	"time"
)

// LogSink 接收面向用户的进度文本，由调用方决定写到界面、日志还是丢弃。
type LogSink func(string)

func (s LogSink) emit(format string, args ...any) {
	if s == nil {
		return
	}
	s(fmt.Sprintf(format, args...))
}

// HandleReleaser 由持有数据库连接池的一方实现，推送前释放对缓存文件的句柄。
type HandleReleaser interface {
	ReleasePath(path string) error
}

// ReleaseFunc 让普通函数满足 HandleReleaser。
type ReleaseFunc func(path string) error

// ReleasePath 调用 f 本身。
func (f ReleaseFunc) ReleasePath(path string) error {
	return f(path)
}

// Slot 表示一个缓存槽位：主文件与同名不同扩展名的伴随文件。
type Slot struct {
	Primary   string `json:"primary"`
	Companion string `json:"companion"`
}

// Entry 描述某个路径在文件系统中的状态，文件不存在时 Exists 为 false。
type Entry struct {
	Path      string    `json:"path"`
	Exists    bool      `json:"exists"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// Status 汇总一个源文件与其缓存槽位的当前状态，供 status 命令与诊断使用。
type Status struct {
	Origin          Entry `json:"origin"`
	OriginCompanion Entry `json:"origin_companion"`
	Cache           Entry `json:"cache"`
	CacheCompanion  Entry `json:"cache_companion"`
	Network         bool  `json:"network"`
	Stale           bool  `json:"stale"`
}

// SyncOutcome 是 TrySyncBack 的结果分类。
type SyncOutcome string

const (
	SyncPushed  SyncOutcome = "pushed"
	SyncSkipped SyncOutcome = "skipped"
	SyncFailed  SyncOutcome = "failed"
)

// SyncResult 记录一次回写的结果。失败不会以 error 形式返回，而是落在 Outcome/Err 上。
type SyncResult struct {
	Outcome         SyncOutcome `json:"outcome"`
	Origin          string      `json:"origin"`
	Cache           string      `json:"cache"`
	CompanionPushed bool        `json:"companion_pushed"`
	Warnings        []string    `json:"warnings,omitempty"`
	Err             error       `json:"-"`
}

// OK 表示回写没有失败（跳过也算成功）。
func (r SyncResult) OK() bool {
	return r.Outcome != SyncFailed
}

// ErrEmptyOrigin 表示调用方没有提供源文件路径。
var ErrEmptyOrigin = errors.New("origin path required")
