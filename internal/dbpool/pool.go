// Package dbpool keeps one shared *sql.DB per database file so the cache layer
// can release every pooled connection to a file before pushing it back to the
// network share. The default driver is the embedded SQLite build from
// github.com/ncruces/go-sqlite3; any registered database/sql driver that
// accepts a "file:" DSN works.
package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/sirupsen/logrus"
)

// DefaultDriver 是 ncruces/go-sqlite3 注册的驱动名。
const DefaultDriver = "sqlite3"

// ErrClosed 表示连接池已关闭。
var ErrClosed = errors.New("dbpool: pool closed")

// Pool 按规范化路径复用 *sql.DB，并发安全。
type Pool struct {
	driver string
	logger *logrus.Logger

	mu      sync.Mutex
	handles map[string]*sql.DB
	closed  bool
}

// New 创建连接池；driver 为空时使用 DefaultDriver，logger 可为空。
func New(driver string, logger *logrus.Logger) *Pool {
	if driver == "" {
		driver = DefaultDriver
	}
	return &Pool{
		driver:  driver,
		logger:  logger,
		handles: make(map[string]*sql.DB),
	}
}

// Open 返回 path 对应的共享句柄，首次打开时会 Ping 以确认文件可用。
func (p *Pool) Open(ctx context.Context, path string) (*sql.DB, error) {
	key, err := normalize(path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if db, ok := p.handles[key]; ok {
		return db, nil
	}

	db, err := sql.Open(p.driver, "file:"+key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", key, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout on %s: %w", key, err)
	}

	p.handles[key] = db
	p.log(key).Debug("dbpool_open")
	return db, nil
}

// ReleasePath 关闭并移除 path 对应的句柄；没有打开的句柄时直接返回 nil。
func (p *Pool) ReleasePath(path string) error {
	key, err := normalize(path)
	if err != nil {
		return err
	}

	p.mu.Lock()
	db, ok := p.handles[key]
	delete(p.handles, key)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	p.log(key).Debug("dbpool_release")
	return nil
}

// Len 返回当前持有的句柄数量。
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Close 关闭全部句柄，之后的 Open 返回 ErrClosed。
func (p *Pool) Close() error {
	p.mu.Lock()
	handles := p.handles
	p.handles = make(map[string]*sql.DB)
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for key, db := range handles {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) log(key string) *logrus.Entry {
	logger := p.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithFields(logrus.Fields{"path": key, "driver": p.driver})
}

func normalize(path string) (string, error) {
	if path == "" {
		return "", errors.New("dbpool: path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("dbpool: resolve %s: %w", path, err)
	}
	return abs, nil
}
