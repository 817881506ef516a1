//go:build unix

package areas

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// freeBytes 通过 Statfs 读取卷的可用字节数（非 root 可用量 Bavail）.
func freeBytes(root string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", root, err)
	}

	return int64(st.Bavail) * int64(st.Bsize), nil
}
