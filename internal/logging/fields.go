package logging

import (
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/dbcache/internal/cache"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// OperationFields 为一次拉取/回写生成字段，op_id 用于串联同一次操作的所有日志。
func OperationFields(action, origin, cachePath string, network bool) logrus.Fields {
	return logrus.Fields{
		"action":  action,
		"op_id":   uuid.NewString(),
		"origin":  origin,
		"cache":   cachePath,
		"network": network,
	}
}

// Sink 把缓存层的进度文本转成结构化日志；包含失败/警告关键字的行以 Warn 级别输出。
func Sink(entry *logrus.Entry) cache.LogSink {
	return func(line string) {
		if isWarning(line) {
			entry.Warn(line)
			return
		}
		entry.Info(line)
	}
}

var warningMarkers = []string{"falhou", "Falha", "Não foi possível", "não encontrado, nada"}

func isWarning(line string) bool {
	for _, marker := range warningMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
