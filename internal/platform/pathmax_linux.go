//go:build linux

package platform

import "golang.org/x/sys/unix"

// PathMax returns the maximum path length for paths under dir, including
// the terminating byte the kernel reserves. Linux has no per-filesystem
// pathconf syscall, so this is the compile-time PATH_MAX.
func PathMax(string) int {
	return unix.PathMax
}
