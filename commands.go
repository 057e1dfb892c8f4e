package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/any-hub/dbcache/internal/cache"
	"github.com/any-hub/dbcache/internal/logging"
	"github.com/any-hub/dbcache/internal/watch"
)

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "dbcache",
		Short: "Local write-back cache for database files on network shares",
		Long: `dbcache keeps a local replica of a database file pair (primary + log file)
that lives on a slow or unreliable network share, refreshes it when the share
copy is newer, and pushes local changes back on request.

Commands accept either a configured database name or a path to the primary file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "配置文件路径（可被 DBCACHE_CONFIG 提供）")

	root.AddCommand(
		newPullCommand(a),
		newPushCommand(a),
		newStatusCommand(a),
		newOpenCommand(a),
		newWatchCommand(a),
		newClassifyCommand(),
		newCheckConfigCommand(a),
		newVersionCommand(),
	)
	return root
}

// withApp 在执行子命令前完成依赖初始化。
func withApp(a *app, run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.init(); err != nil {
			return err
		}
		return run(cmd, args)
	}
}

func newPullCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pull <database|path>",
		Short: "Make sure the local cache is present and up to date",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(a, func(cmd *cobra.Command, args []string) error {
			origin := a.cfg.ResolveOrigin(args[0])
			entry, sink := a.operation("pull", origin)

			cachePath, err := a.syncer.EnsureCacheReady(cmd.Context(), origin, sink)
			if err != nil {
				entry.WithError(err).Error("cache_pull_failed")
				return fmt.Errorf("拉取缓存失败: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cachePath)
			return nil
		}),
	}
}

func newPushCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push <database|path>",
		Short: "Copy the local cache back to the network share",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(a, func(cmd *cobra.Command, args []string) error {
			origin := a.cfg.ResolveOrigin(args[0])
			_, sink := a.operation("push", origin)

			result := a.syncer.TrySyncBack(cmd.Context(), origin, a.syncer.GetCachedPath(origin), sink)
			fmt.Fprintln(cmd.OutOrStdout(), result.Outcome)
			if !result.OK() {
				return fmt.Errorf("回写失败: %w", result.Err)
			}
			return nil
		}),
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <database|path>",
		Short: "Show origin and cache file state as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(a, func(cmd *cobra.Command, args []string) error {
			status, err := a.syncer.Inspect(a.cfg.ResolveOrigin(args[0]))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}),
	}
}

func newOpenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <database|path>",
		Short: "Pull the cache and verify the engine can open it",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(a, func(cmd *cobra.Command, args []string) error {
			origin := a.cfg.ResolveOrigin(args[0])
			entry, sink := a.operation("open", origin)

			cachePath, err := a.syncer.EnsureCacheReady(cmd.Context(), origin, sink)
			if err != nil {
				return fmt.Errorf("拉取缓存失败: %w", err)
			}
			if _, err := a.pool.Open(cmd.Context(), cachePath); err != nil {
				entry.WithError(err).Error("cache_open_failed")
				return fmt.Errorf("打开缓存失败: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cachePath)
			return nil
		}),
	}
}

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <database|path>",
		Short: "Pull the cache, then push it back whenever it changes",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(a, func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			origin := a.cfg.ResolveOrigin(args[0])
			entry, sink := a.operation("watch", origin)

			cachePath, err := a.syncer.EnsureCacheReady(ctx, origin, sink)
			if err != nil {
				return fmt.Errorf("拉取缓存失败: %w", err)
			}

			push := func() {
				result := a.syncer.TrySyncBack(ctx, origin, cachePath, sink)
				entry.WithField("outcome", result.Outcome).Info("watch_push")
			}
			w, err := watch.New(a.syncer.SlotFor(origin), a.cfg.Global.WatchDebounce.DurationValue(), push, a.logger)
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				return err
			}
			entry.Info("watch_started")

			for {
				select {
				case <-ctx.Done():
					if err := w.Stop(); err != nil {
						entry.WithError(err).Warn("watch_stop_failed")
					}
					return nil
				case werr, ok := <-w.Errors():
					if ok {
						entry.WithError(werr).Warn("watch_error")
					}
				}
			}
		}),
	}
}

func newClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <path>",
		Short: "Report whether a path lives on a network share",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := "local"
			if cache.IsNetworkPath(args[0]) {
				kind = "network"
			}
			fmt.Fprintln(cmd.OutOrStdout(), kind)
			return nil
		},
	}
}

func newCheckConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, args []string) error {
			fields := logging.BaseFields("check_config", a.resolveConfigPath())
			fields["databases"] = len(a.cfg.Databases)
			fields["cache_root"] = a.cfg.Global.CacheRoot
			fields["result"] = "ok"
			a.logger.WithFields(fields).Info("配置校验通过")
			return nil
		}),
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}
