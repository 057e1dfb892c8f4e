//go:build linux

package cache

import (
	"errors"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// remoteFilesystems 列出 statfs f_type 中代表网络文件系统的魔数。
var remoteFilesystems = map[uint32]string{
	0x6969:     "nfs",
	0xFF534D42: "cifs",
	0x517B:     "smb",
	0xFE534D42: "smb2",
	0x5346414F: "afs",
	0x73757245: "coda",
	0x564C:     "ncp",
	0x01021997: "9p",
}

// volumeIsRemote 对路径或其最近的已存在祖先目录执行 statfs，按文件系统类型判断。
func volumeIsRemote(path string) bool {
	dir, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	for {
		var st unix.Statfs_t
		err := unix.Statfs(dir, &st)
		if err == nil {
			_, remote := remoteFilesystems[uint32(st.Type)]
			return remote
		}
		if !errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.ENOTDIR) {
			return false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}
