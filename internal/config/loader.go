package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/any-hub/dbcache/internal/cache"
)

// EnvPrefix 是环境变量覆盖的前缀，例如 DBCACHE_CACHEROOT。
const EnvPrefix = "DBCACHE"

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量覆盖与校验逻辑。
// path 为空时仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Databases {
		applyDatabaseDefaults(&cfg.Databases[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(cfg.Global.CacheRoot)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CacheRoot = absRoot

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "json")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheRoot", "")
	v.SetDefault("CompanionExt", cache.DefaultCompanionExt)
	v.SetDefault("CopyAttempts", cache.DefaultAttempts)
	v.SetDefault("RetryBackoff", cache.DefaultBackoff.String())
	v.SetDefault("SQLDriver", "sqlite3")
	v.SetDefault("WatchDebounce", "2s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if strings.TrimSpace(g.CacheRoot) == "" {
		g.CacheRoot = cache.DefaultRoot()
	}
	if ext := strings.TrimSpace(g.CompanionExt); ext != "" && !strings.HasPrefix(ext, ".") {
		g.CompanionExt = "." + ext
	}
	if g.CopyAttempts == 0 {
		g.CopyAttempts = cache.DefaultAttempts
	}
	if g.WatchDebounce.DurationValue() == 0 {
		g.WatchDebounce = Duration(2 * time.Second)
	}
}

func applyDatabaseDefaults(db *DatabaseConfig) {
	db.Name = strings.TrimSpace(db.Name)
	db.Origin = strings.TrimSpace(db.Origin)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
