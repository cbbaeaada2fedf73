package engine

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrPathTooLong is returned when a child path would reach the path limit.
var ErrPathTooLong = errors.New("path too long")

// BuildPath joins parent and name with a single separator. It fails when the
// joined length would reach or exceed maxLen, so the result always fits a
// buffer of maxLen bytes including the terminator the kernel reserves.
//
// Unlike filepath.Join, BuildPath does not clean its input: the self-path
// guard compares the result byte for byte.
func BuildPath(parent, name string, maxLen int) (string, error) {
	if name == "" {
		return "", errors.New("empty entry name")
	}

	sep := 1
	if strings.HasSuffix(parent, string(os.PathSeparator)) {
		sep = 0
	}

	n := len(parent) + sep + len(name)
	if n >= maxLen {
		return "", fmt.Errorf("%w: %d bytes under %s (limit %d)", ErrPathTooLong, n, parent, maxLen)
	}

	var b strings.Builder
	b.Grow(n)
	b.WriteString(parent)
	if sep == 1 {
		b.WriteByte(os.PathSeparator)
	}
	b.WriteString(name)
	return b.String(), nil
}
