//go:build windows

package cache

import (
	"path/filepath"

	"golang.org/x/sys/windows"
)

// volumeIsRemote 通过 GetDriveType 判断盘符是否为映射的网络驱动器（例如 Z:\）。
func volumeIsRemote(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	volume := filepath.VolumeName(abs)
	if volume == "" {
		return false
	}

	root, err := windows.UTF16PtrFromString(volume + `\`)
	if err != nil {
		return false
	}
	return windows.GetDriveType(root) == windows.DRIVE_REMOTE
}
