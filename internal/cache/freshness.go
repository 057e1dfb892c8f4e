package cache

import (
	"errors"
	"io/fs"

	"github.com/spf13/afero"
)

// NeedsRefresh 决定是否需要从源文件重新拉取缓存：缓存缺失，或两边时间戳均可读且源文件严格更新。
// 无法判断时返回 false，避免无谓地复制大文件。
func NeedsRefresh(fsys afero.Fs, origin, cachePath string) bool {
	cacheInfo, err := fsys.Stat(cachePath)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	if cacheInfo.IsDir() {
		return true
	}

	originInfo, err := fsys.Stat(origin)
	if err != nil {
		return false
	}
	if originInfo.ModTime().IsZero() || cacheInfo.ModTime().IsZero() {
		return false
	}
	return originInfo.ModTime().After(cacheInfo.ModTime())
}
