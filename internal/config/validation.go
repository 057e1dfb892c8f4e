package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置进入缓存逻辑。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", fmt.Sprintf("无法识别: %s", g.LogLevel))
	}
	switch strings.ToLower(strings.TrimSpace(g.LogFormat)) {
	case "", "json", "text":
	default:
		return newFieldError("Global.LogFormat", "仅支持 json/text")
	}
	if strings.TrimSpace(g.CacheRoot) == "" {
		return newFieldError("Global.CacheRoot", "不能为空")
	}
	if err := validateExt(g.CompanionExt); err != nil {
		return fmt.Errorf("Global.CompanionExt: %w", err)
	}
	if g.CopyAttempts < 1 {
		return newFieldError("Global.CopyAttempts", "必须大于 0")
	}
	if g.RetryBackoff.DurationValue() < 0 {
		return newFieldError("Global.RetryBackoff", "不能为负数")
	}
	if g.WatchDebounce.DurationValue() <= 0 {
		return newFieldError("Global.WatchDebounce", "必须大于 0")
	}
	if strings.TrimSpace(g.SQLDriver) == "" {
		return newFieldError("Global.SQLDriver", "不能为空")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Databases {
		db := &c.Databases[i]
		if db.Name == "" {
			return newFieldError("Database[].Name", "不能为空")
		}
		key := strings.ToLower(db.Name)
		if _, exists := seenNames[key]; exists {
			return newFieldError(databaseField(db.Name, "Name"), "重复")
		}
		seenNames[key] = struct{}{}

		if db.Origin == "" {
			return newFieldError(databaseField(db.Name, "Origin"), "不能为空")
		}
		if ext := extOf(db.Origin); ext != "" && strings.EqualFold(ext, g.CompanionExt) {
			return newFieldError(databaseField(db.Name, "Origin"), "应指向主数据文件而不是伴随日志文件")
		}
	}

	return nil
}

func validateExt(ext string) error {
	if ext == "" {
		return errors.New("不能为空")
	}
	if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
		return fmt.Errorf("必须形如 .ldf: %s", ext)
	}
	if strings.ContainsAny(ext, `/\ `) {
		return fmt.Errorf("不允许包含路径分隔符或空格: %s", ext)
	}
	return nil
}

// extOf 同时按 / 与 \ 切分文件名后取扩展名，UNC 路径在非 Windows 平台也适用。
func extOf(path string) string {
	name := path
	if idx := strings.LastIndexAny(path, `/\`); idx >= 0 {
		name = path[idx+1:]
	}
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx:]
	}
	return ""
}
