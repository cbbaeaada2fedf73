// Package platform holds the OS-facing pieces of a copy: the path-length
// limit of a source location, permission-bit conversion, and the fixed-size
// streaming copy loop.
package platform

import "os"

// permBits are the os.FileMode bits that map onto unix permission bits.
const permBits = os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky

// UnixMode converts the permission portion of m to the raw unix mode bits
// expected by chmod(2) and open(2).
func UnixMode(m os.FileMode) uint32 {
	mode := uint32(m.Perm())
	if m&os.ModeSetuid != 0 {
		mode |= 0o4000
	}
	if m&os.ModeSetgid != 0 {
		mode |= 0o2000
	}
	if m&os.ModeSticky != 0 {
		mode |= 0o1000
	}
	return mode
}

// PermOf strips the type bits from m, keeping permission, setuid, setgid
// and sticky bits.
func PermOf(m os.FileMode) os.FileMode {
	return m & permBits
}
