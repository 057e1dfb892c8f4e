// Package watch triggers a callback when the files of a cache slot stop
// changing for a debounce interval. The CLI uses it to push a cache back to
// the network share shortly after the database engine finishes writing.
package watch

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/dbcache/internal/cache"
)

// Watcher 监听槽位所在目录，只对主文件与伴随文件的写入/创建/重命名做出反应。
type Watcher struct {
	fsw      *fsnotify.Watcher
	dir      string
	targets  map[string]struct{}
	debounce time.Duration
	onChange func()
	logger   *logrus.Logger

	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New 为 slot 创建监听器；onChange 在最后一次变更后静默 debounce 时长时被调用。
func New(slot cache.Slot, debounce time.Duration, onChange func(), logger *logrus.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("watch: onChange callback required")
	}
	if debounce <= 0 {
		return nil, errors.New("watch: debounce must be positive")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	targets := map[string]struct{}{filepath.Clean(slot.Primary): {}}
	if slot.Companion != "" {
		targets[filepath.Clean(slot.Companion)] = struct{}{}
	}

	return &Watcher{
		fsw:      fsw,
		dir:      filepath.Dir(slot.Primary),
		targets:  targets,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}, nil
}

// Start 开始监听槽位目录。
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("watcher already running")
	}
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop 停止监听并等待事件循环退出；尚未触发的回调会被丢弃。
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	close(w.errors)

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Errors 返回底层 fsnotify 报告的错误，Stop 后关闭。
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.WithFields(logrus.Fields{
				"action": "watch_event",
				"path":   event.Name,
				"op":     event.Op.String(),
			}).Debug("cache slot changed")

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.onChange()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			default:
				w.logger.WithError(err).WithField("action", "watch_error").Warn("dropped watcher error")
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if _, ok := w.targets[filepath.Clean(event.Name)]; !ok {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
