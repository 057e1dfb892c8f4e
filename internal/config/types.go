package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "300ms"、"2s" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述日志、缓存目录与复制重试等全局参数。
type GlobalConfig struct {
	LogLevel      string   `mapstructure:"LogLevel"`
	LogFormat     string   `mapstructure:"LogFormat"`
	LogFilePath   string   `mapstructure:"LogFilePath"`
	LogMaxSize    int      `mapstructure:"LogMaxSize"`
	LogMaxBackups int      `mapstructure:"LogMaxBackups"`
	LogCompress   bool     `mapstructure:"LogCompress"`
	CacheRoot     string   `mapstructure:"CacheRoot"`
	CompanionExt  string   `mapstructure:"CompanionExt"`
	CopyAttempts  int      `mapstructure:"CopyAttempts"`
	RetryBackoff  Duration `mapstructure:"RetryBackoff"`
	SQLDriver     string   `mapstructure:"SQLDriver"`
	WatchDebounce Duration `mapstructure:"WatchDebounce"`
}

// DatabaseConfig 为一个网络数据库文件起别名，CLI 可以用 Name 代替完整路径。
type DatabaseConfig struct {
	Name   string `mapstructure:"Name"`
	Origin string `mapstructure:"Origin"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global    GlobalConfig     `mapstructure:",squash"`
	Databases []DatabaseConfig `mapstructure:"Database"`
}

// Lookup 按名称（忽略大小写）查找数据库别名。
func (c *Config) Lookup(name string) (DatabaseConfig, bool) {
	if c == nil {
		return DatabaseConfig{}, false
	}
	key := strings.ToLower(strings.TrimSpace(name))
	for _, db := range c.Databases {
		if strings.ToLower(db.Name) == key {
			return db, true
		}
	}
	return DatabaseConfig{}, false
}

// ResolveOrigin 把 CLI 参数解析为源文件路径：匹配别名时返回别名的 Origin，否则原样返回。
func (c *Config) ResolveOrigin(arg string) string {
	if db, ok := c.Lookup(arg); ok {
		return db.Origin
	}
	return arg
}

// DatabaseNames 返回所有别名，供日志字段使用。
func DatabaseNames(dbs []DatabaseConfig) []string {
	if len(dbs) == 0 {
		return nil
	}
	result := make([]string, len(dbs))
	for i, db := range dbs {
		result[i] = db.Name
	}
	return result
}
