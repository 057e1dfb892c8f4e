package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultCompanionExt 是伴随日志文件的默认扩展名。
	DefaultCompanionExt = ".ldf"

	placeholderStem = "database"
	defaultRootName = "InventarioCache"
	invalidNameRune = `<>:"/\|?*`
)

// DefaultRoot 返回当前用户的缓存根目录（Windows 上为 LocalAppData）。
func DefaultRoot() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, defaultRootName)
}

// DeriveCachePath 计算 origin 在 root 下对应的缓存主文件路径。纯函数，不访问文件系统。
func DeriveCachePath(root, origin string) string {
	canonical := canonicalPath(origin)
	sum := sha1.Sum([]byte(canonical))

	name := baseName(canonical)
	ext := filepath.Ext(name)
	stem := sanitizeStem(strings.TrimSuffix(name, ext))

	return filepath.Join(root, stem+"_"+hex.EncodeToString(sum[:])+sanitizeRunes(ext))
}

// CompanionPath 将 path 的扩展名替换为 ext，得到伴随文件路径。
func CompanionPath(path, ext string) string {
	current := filepath.Ext(baseName(path))
	return path[:len(path)-len(current)] + ext
}

// canonicalPath 把路径规整为绝对形式；UNC 路径在所有平台上都按反斜杠规整，保证键稳定。
func canonicalPath(p string) string {
	if isUNC(p) {
		return `\\` + cleanUNC(p[2:])
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

func cleanUNC(rest string) string {
	parts := strings.FieldsFunc(rest, func(r rune) bool { return r == '\\' || r == '/' })
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	return strings.Join(out, `\`)
}

// baseName 同时按 / 与 \ 切分，Linux 上也能正确处理 UNC 路径。
func baseName(p string) string {
	if idx := strings.LastIndexAny(p, `/\`); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

func sanitizeStem(stem string) string {
	cleaned := sanitizeRunes(stem)
	if strings.TrimSpace(cleaned) == "" {
		return placeholderStem
	}
	return cleaned
}

// sanitizeRunes 把 Windows 文件名中非法的字符与控制字符替换为 _。
func sanitizeRunes(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || strings.ContainsRune(invalidNameRune, r) {
			return '_'
		}
		return r
	}, s)
}
