//go:build !linux

package platform

// pathMaxFallback is the POSIX PATH_MAX on BSD-derived systems.
const pathMaxFallback = 1024

// PathMax returns the maximum path length for paths under dir.
func PathMax(string) int {
	return pathMaxFallback
}
