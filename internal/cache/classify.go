package cache

import "strings"

// IsNetworkPath 判断路径是否位于网络共享上：UNC 前缀直接判定，其余交给平台查询卷类型。
// 查询失败一律视为本地路径，结果仅用于提示和日志。
func IsNetworkPath(path string) bool {
	if isUNC(path) {
		return true
	}
	if strings.TrimSpace(path) == "" {
		return false
	}
	return volumeIsRemote(path)
}

func isUNC(p string) bool {
	return len(p) >= 2 && isSeparator(p[0]) && isSeparator(p[1])
}

func isSeparator(c byte) bool {
	return c == '\\' || c == '/'
}
