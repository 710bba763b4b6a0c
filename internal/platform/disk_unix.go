//go:build unix

package platform

import "golang.org/x/sys/unix"

// FreeBytes returns the free disk space available to unprivileged users
// on the filesystem containing path.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
