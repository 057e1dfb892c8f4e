package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Options 描述构造 Syncer 所需的依赖，零值字段使用默认实现。
type Options struct {
	// Root 是缓存根目录，必填。
	Root string
	// Fs 默认为 afero.NewOsFs()。
	Fs afero.Fs
	// CompanionExt 默认为 ".ldf"。
	CompanionExt string
	// Copier 默认为基于 Fs 的 ResilientCopier。
	Copier Copier
	// Releaser 在回写前释放连接池中对缓存文件的句柄，可为空。
	Releaser HandleReleaser
	// Classify 默认为 IsNetworkPath。
	Classify func(string) bool
}

// Syncer 负责“源文件 → 本地缓存”的拉取与“本地缓存 → 源文件”的回写。
// 同一个槽位的操作通过 slotLock 串行化；跨进程不做协调。
type Syncer struct {
	root         string
	fs           afero.Fs
	companionExt string
	copier       Copier
	releaser     HandleReleaser
	classify     func(string) bool

	mu    sync.Mutex
	locks map[string]*slotLock
}

type slotLock struct {
	mu   sync.Mutex
	refs int
}

// NewSyncer 校验参数并填充默认依赖，不会创建缓存根目录。
func NewSyncer(opts Options) (*Syncer, error) {
	if strings.TrimSpace(opts.Root) == "" {
		return nil, errors.New("cache root required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	ext := strings.TrimSpace(opts.CompanionExt)
	if ext == "" {
		ext = DefaultCompanionExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	copier := opts.Copier
	if copier == nil {
		copier = NewResilientCopier(fsys)
	}
	classify := opts.Classify
	if classify == nil {
		classify = IsNetworkPath
	}

	return &Syncer{
		root:         root,
		fs:           fsys,
		companionExt: ext,
		copier:       copier,
		releaser:     opts.Releaser,
		classify:     classify,
		locks:        make(map[string]*slotLock),
	}, nil
}

// Root 返回缓存根目录的绝对路径。
func (s *Syncer) Root() string {
	return s.root
}

// GetCachedPath 返回 origin 对应的缓存主文件路径。
func (s *Syncer) GetCachedPath(origin string) string {
	return DeriveCachePath(s.root, origin)
}

// SlotFor 返回 origin 对应的缓存槽位（主文件 + 伴随文件）。
func (s *Syncer) SlotFor(origin string) Slot {
	primary := s.GetCachedPath(origin)
	return Slot{
		Primary:   primary,
		Companion: CompanionPath(primary, s.companionExt),
	}
}

// EnsureCacheReady 保证本地缓存存在且不比源文件旧，返回缓存主文件路径。
// 主文件（或存在的伴随文件）最终复制失败时返回错误，调用方不应打开不完整的缓存。
func (s *Syncer) EnsureCacheReady(ctx context.Context, origin string, sink LogSink) (string, error) {
	if strings.TrimSpace(origin) == "" {
		return "", ErrEmptyOrigin
	}
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("create cache root: %w", err)
	}

	slot := s.SlotFor(origin)
	originCompanion := CompanionPath(origin, s.companionExt)

	unlock := s.lockSlot(slot.Primary)
	defer unlock()

	if !NeedsRefresh(s.fs, origin, slot.Primary) {
		sink.emit("Cache local já está atualizado: %s", slot.Primary)
		return slot.Primary, nil
	}

	sink.emit("Preparando cache local de %s...", origin)
	if err := s.copier.Copy(ctx, origin, slot.Primary, sink); err != nil {
		return "", err
	}

	if s.exists(originCompanion) {
		if err := s.copier.Copy(ctx, originCompanion, slot.Companion, sink); err != nil {
			return "", err
		}
	} else {
		s.dropStaleCompanion(slot.Companion, sink)
		sink.emit("%s não encontrado em %s; ok, o banco criará um novo localmente.",
			s.companionLabel(), originCompanion)
	}

	sink.emit("Cache local pronto: %s", slot.Primary)
	return slot.Primary, nil
}

// TrySyncBack 尽力把缓存推回源文件。任何失败都记录在返回的 SyncResult 中，不会中断调用方。
func (s *Syncer) TrySyncBack(ctx context.Context, origin, cachePath string, sink LogSink) SyncResult {
	result := SyncResult{Origin: origin, Cache: cachePath}
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		result.Warnings = append(result.Warnings, msg)
		sink.emit("%s", msg)
	}
	fail := func(err error) SyncResult {
		result.Outcome = SyncFailed
		result.Err = err
		warn("Falha ao sincronizar %s de volta para %s: %v", cachePath, origin, err)
		return result
	}

	if strings.TrimSpace(origin) == "" || strings.TrimSpace(cachePath) == "" {
		return fail(ErrEmptyOrigin)
	}

	if s.releaser != nil {
		if err := s.releaser.ReleasePath(cachePath); err != nil {
			warn("Não foi possível liberar as conexões de %s: %v", cachePath, err)
		}
	}

	unlock := s.lockSlot(cachePath)
	defer unlock()

	if !s.exists(cachePath) {
		warn("Arquivo de cache não encontrado, nada a sincronizar: %s", cachePath)
		result.Outcome = SyncSkipped
		return result
	}

	originCompanion := CompanionPath(origin, s.companionExt)
	cacheCompanion := CompanionPath(cachePath, s.companionExt)

	if err := s.fs.MkdirAll(filepath.Dir(origin), 0o755); err != nil {
		return fail(fmt.Errorf("create origin directory: %w", err))
	}

	sink.emit("Sincronizando %s de volta para %s...", cachePath, origin)
	if err := s.copier.Copy(ctx, cachePath, origin, sink); err != nil {
		return fail(err)
	}
	if s.exists(cacheCompanion) {
		if err := s.copier.Copy(ctx, cacheCompanion, originCompanion, sink); err != nil {
			return fail(err)
		}
		result.CompanionPushed = true
	}

	sink.emit("Sincronização concluída: %s", origin)
	result.Outcome = SyncPushed
	return result
}

// Inspect 返回 origin 与其缓存槽位的当前状态，不做任何复制。
func (s *Syncer) Inspect(origin string) (Status, error) {
	if strings.TrimSpace(origin) == "" {
		return Status{}, ErrEmptyOrigin
	}
	slot := s.SlotFor(origin)

	return Status{
		Origin:          s.entry(origin),
		OriginCompanion: s.entry(CompanionPath(origin, s.companionExt)),
		Cache:           s.entry(slot.Primary),
		CacheCompanion:  s.entry(slot.Companion),
		Network:         s.classify(origin),
		Stale:           NeedsRefresh(s.fs, origin, slot.Primary),
	}, nil
}

func (s *Syncer) entry(path string) Entry {
	e := Entry{Path: path}
	info, err := s.fs.Stat(path)
	if err != nil || info.IsDir() {
		return e
	}
	e.Exists = true
	e.SizeBytes = info.Size()
	e.ModTime = info.ModTime()
	return e
}

func (s *Syncer) exists(path string) bool {
	info, err := s.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// dropStaleCompanion 删除上次拉取留下的伴随文件，它与刚复制的新主文件不再配套。
func (s *Syncer) dropStaleCompanion(path string, sink LogSink) {
	if !s.exists(path) {
		return
	}
	if err := s.fs.Remove(path); err != nil {
		sink.emit("Não foi possível remover o %s antigo do cache %s: %v", s.companionLabel(), path, err)
		return
	}
	sink.emit("%s antigo removido do cache: %s", s.companionLabel(), path)
}

func (s *Syncer) companionLabel() string {
	return strings.ToUpper(strings.TrimPrefix(s.companionExt, "."))
}

// lockSlot 以绝对路径为键加锁，调用方传入相对缓存路径时也与拉取互斥。
func (s *Syncer) lockSlot(primary string) func() {
	key, err := filepath.Abs(primary)
	if err != nil {
		key = filepath.Clean(primary)
	}
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &slotLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
