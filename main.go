package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-hub/dbcache/internal/cache"
	"github.com/any-hub/dbcache/internal/config"
	"github.com/any-hub/dbcache/internal/dbpool"
	"github.com/any-hub/dbcache/internal/logging"
)

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// execute 构建命令树并执行，返回退出码，方便测试。
func execute(ctx context.Context, args []string) int {
	a := &app{}
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdOut)
	root.SetErr(stdErr)

	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		return 1
	}
	return 0
}

// app 持有一次 CLI 调用共享的配置、日志、连接池与缓存同步器。
type app struct {
	configPath string

	cfg    *config.Config
	logger *logrus.Logger
	pool   *dbpool.Pool
	syncer *cache.Syncer
}

// resolveConfigPath 按 flag > DBCACHE_CONFIG 的顺序确定配置文件，均为空时只用默认值。
func (a *app) resolveConfigPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	return os.Getenv("DBCACHE_CONFIG")
}

// init 遵循“配置 → 日志 → 连接池 → 缓存同步器”的顺序构建依赖。
func (a *app) init() error {
	path := a.resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := logging.InitLogger(cfg.Global, stdErr)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	pool := dbpool.New(cfg.Global.SQLDriver, logger)

	fsys := afero.NewOsFs()
	copier := cache.NewResilientCopier(fsys,
		cache.WithAttempts(cfg.Global.CopyAttempts),
		cache.WithBackoff(cfg.Global.RetryBackoff.DurationValue()),
	)
	syncer, err := cache.NewSyncer(cache.Options{
		Root:         cfg.Global.CacheRoot,
		Fs:           fsys,
		CompanionExt: cfg.Global.CompanionExt,
		Copier:       copier,
		Releaser:     pool,
	})
	if err != nil {
		_ = pool.Close()
		return fmt.Errorf("初始化缓存失败: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.pool = pool
	a.syncer = syncer

	fields := logging.BaseFields("startup", path)
	fields["cache_root"] = syncer.Root()
	fields["databases"] = config.DatabaseNames(cfg.Databases)
	logger.WithFields(fields).Debug("配置加载完成")
	return nil
}

func (a *app) close() {
	if a.pool == nil {
		return
	}
	if err := a.pool.Close(); err != nil && a.logger != nil {
		a.logger.WithError(err).WithField("action", "shutdown").Warn("关闭连接池失败")
	}
}

// operation 为某个源文件生成带 op_id 的日志 entry 与进度回调。
func (a *app) operation(action, origin string) (*logrus.Entry, cache.LogSink) {
	entry := a.logger.WithFields(logging.OperationFields(
		action, origin, a.syncer.GetCachedPath(origin), cache.IsNetworkPath(origin),
	))
	return entry, logging.Sink(entry)
}
