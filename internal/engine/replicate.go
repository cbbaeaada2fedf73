package engine

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/fanout/internal/event"
	"github.com/bamsammich/fanout/internal/platform"
	"github.com/bamsammich/fanout/internal/retry"
)

// readBatch is how many names are pulled from a directory stream per read.
const readBatch = 128

// replicateDirectory creates d.Dst, then dispatches one task per entry of
// d.Src. It returns once every entry has been dispatched, not copied.
func (rc *runContext) replicateDirectory(d *Descriptor) error {
	if err := rc.makeDir(d); err != nil {
		return err
	}

	dir, err := retry.Do(rc.policy, func() (*os.File, error) {
		return os.Open(d.Src)
	})
	if err != nil {
		return &PhaseError{Phase: PhaseOpenDir, Path: d.Src, Err: err}
	}

	iterErr := rc.dispatchEntries(d, dir)

	if err := rc.policy.Run(dir.Close); err != nil && iterErr == nil {
		return &PhaseError{Phase: PhaseCloseDir, Path: d.Src, Err: err}
	}
	return iterErr
}

// makeDir creates d.Dst with d's permission bits. An existing directory
// counts as success and keeps its own mode.
func (rc *runContext) makeDir(d *Descriptor) error {
	perm := platform.PermOf(d.Mode)
	err := rc.policy.Run(func() error {
		return os.Mkdir(d.Dst, perm)
	})
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrExist):
		info, statErr := os.Lstat(d.Dst)
		if statErr != nil {
			return &PhaseError{Phase: PhaseMkdir, Path: d.Dst, Err: statErr}
		}
		if !info.IsDir() {
			return &PhaseError{Phase: PhaseMkdir, Path: d.Dst, Err: unix.ENOTDIR}
		}
		rc.logger.Debug("directory exists", "dst", d.Dst)
		return nil
	default:
		return &PhaseError{Phase: PhaseMkdir, Path: d.Dst, Err: err}
	}

	// mkdir(2) applies the umask; put the source bits back.
	if err := os.Chmod(d.Dst, perm); err != nil {
		return &PhaseError{Phase: PhaseMkdir, Path: d.Dst, Err: err}
	}

	rc.stats.AddDirsCreated(1)
	event.Emit(rc.events, event.Event{Type: event.DirCreated, Src: d.Src, Dst: d.Dst})
	rc.logger.Debug("directory created", "src", d.Src, "dst", d.Dst, "mode", perm.String())
	return nil
}

// dispatchEntries reads dir sequentially and dispatches a task for every
// directory and regular file in it.
func (rc *runContext) dispatchEntries(d *Descriptor, dir *os.File) error {
	if rc.guardsDir(d.Src) {
		rc.logger.Debug("not descending into destination root", "src", d.Src)
		return nil
	}

	maxLen := rc.pathMax(d.Src)
	for {
		names, err := dir.Readdirnames(readBatch)
		for _, name := range names {
			if name == "." || name == ".." {
				continue
			}
			rc.dispatchEntry(d, name, maxLen)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &PhaseError{Phase: PhaseReadDir, Path: d.Src, Err: err}
		}
		if len(names) == 0 {
			return nil
		}
	}
}

// guardsDir reports whether the directory at src is the destination root,
// in which case its entries are not replicated.
func (rc *runContext) guardsDir(src string) bool {
	if rc.guard == GuardNested {
		return filepath.Clean(src) == rc.cleanDstRoot
	}
	return src == rc.dstRoot
}

// dispatchEntry builds and dispatches the child descriptor for name.
// Failures are reported here and never abort the parent directory.
func (rc *runContext) dispatchEntry(parent *Descriptor, name string, maxLen int) {
	src, err := BuildPath(parent.Src, name, maxLen)
	if err != nil {
		rc.entryFailed(parent, name, &PhaseError{Phase: PhasePath, Path: parent.Src, Err: err})
		return
	}
	dst, err := BuildPath(parent.Dst, name, maxLen)
	if err != nil {
		rc.entryFailed(parent, name, &PhaseError{Phase: PhasePath, Path: parent.Dst, Err: err})
		return
	}

	if rc.guard == GuardNested && filepath.Clean(src) == rc.cleanDstRoot {
		rc.logger.Debug("skipping destination root", "src", src)
		return
	}

	info, err := os.Lstat(src)
	if err != nil {
		rc.entryFailed(parent, name, &PhaseError{Phase: PhaseLstat, Path: src, Err: err})
		return
	}

	child := NewDescriptor(src, dst, info.Mode())
	if child.Kind() == KindOther {
		child.release()
		rc.stats.AddEntriesSkipped(1)
		event.Emit(rc.events, event.Event{Type: event.EntrySkipped, Src: src, Dst: dst})
		rc.logger.Warn("skipping unsupported entry", "src", src, "type", info.Mode().Type().String())
		return
	}

	if err := rc.dispatch(child); err != nil {
		rc.entryFailed(parent, name, err)
	}
}

func (rc *runContext) entryFailed(parent *Descriptor, name string, err error) {
	rc.stats.AddEntriesFailed(1)
	event.Emit(rc.events, event.Event{Type: event.EntryFailed, Src: parent.Src, Dst: parent.Dst, Error: err})
	rc.logger.Error("entry failed",
		"phase", string(PhaseOf(err)),
		"src", parent.Src,
		"dst", parent.Dst,
		"name", name,
		"error", err,
	)
}

// replicateFile streams d.Src into a freshly created d.Dst.
func (rc *runContext) replicateFile(d *Descriptor) error {
	src, err := retry.Do(rc.policy, func() (*os.File, error) {
		return os.Open(d.Src)
	})
	if err != nil {
		return &PhaseError{Phase: PhaseOpen, Path: d.Src, Err: err}
	}
	defer src.Close()

	dst, err := retry.Do(rc.policy, func() (*os.File, error) {
		return os.OpenFile(d.Dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, platform.PermOf(d.Mode))
	})
	if err != nil {
		return &PhaseError{Phase: PhaseCreate, Path: d.Dst, Err: err}
	}

	// open(2) applies the umask; put the source bits back.
	//nolint:gosec // G115: fd values are small non-negative integers
	if err := unix.Fchmod(int(dst.Fd()), platform.UnixMode(d.Mode)); err != nil {
		dst.Close()
		return &PhaseError{Phase: PhaseCreate, Path: d.Dst, Err: fmt.Errorf("fchmod: %w", err)}
	}

	var throttle func(int) error
	if rc.limiter != nil {
		throttle = func(n int) error { return waitN(rc.ctx, rc.limiter, n) }
	}

	n, err := platform.CopyStream(dst, src, throttle)
	if err != nil {
		dst.Close()
		return &PhaseError{Phase: PhaseCopy, Path: d.Src, Err: err}
	}
	if err := dst.Close(); err != nil {
		return &PhaseError{Phase: PhaseClose, Path: d.Dst, Err: err}
	}

	rc.stats.AddFilesCopied(1)
	rc.stats.AddBytesCopied(n)
	event.Emit(rc.events, event.Event{Type: event.FileCompleted, Src: d.Src, Dst: d.Dst, Size: n})
	rc.logger.Debug("file copied", "src", d.Src, "dst", d.Dst, "bytes", n)
	return nil
}
