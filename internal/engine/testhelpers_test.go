package engine_test

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/fanout/internal/event"
)

// createTestTree populates root with a standard test tree:
//
//	root.txt          (17 bytes, 0644)
//	big.bin           (320KB, 0600)
//	shared.txt        (0666, wider than the umask allows)
//	empty.txt         (0 bytes)
//	sub/mid.txt       (19 bytes)
//	sub/deep/leaf.txt (17 bytes)
//	sub/deep/run.sh   (0755)
//	emptydir/         (0700)
//	link.txt          → root.txt (symlink, skipped)
func createTestTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "emptydir"), 0o700))

	writeFile(t, filepath.Join(root, "root.txt"), []byte("root file content"), 0o644)
	writeFile(t, filepath.Join(root, "big.bin"), bytes.Repeat([]byte("ABCDEFGHIJKLMNOP"), 20000), 0o600)
	writeFile(t, filepath.Join(root, "shared.txt"), []byte("everyone writes"), 0o666)
	writeFile(t, filepath.Join(root, "empty.txt"), nil, 0o644)
	writeFile(t, filepath.Join(root, "sub", "mid.txt"), []byte("middle file content"), 0o644)
	writeFile(t, filepath.Join(root, "sub", "deep", "leaf.txt"), []byte("leaf file content"), 0o644)
	writeFile(t, filepath.Join(root, "sub", "deep", "run.sh"), []byte("#!/bin/sh\n"), 0o755)

	require.NoError(t, os.Symlink("root.txt", filepath.Join(root, "link.txt")))
}

// writeFile writes data and forces perm past the umask.
func writeFile(t *testing.T, path string, data []byte, perm os.FileMode) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, perm))
	require.NoError(t, os.Chmod(path, perm))
}

// verifyTreeCopy checks that dstRoot mirrors every directory and regular
// file under srcRoot, content and permission bits included, and that no
// symlink was reproduced.
func verifyTreeCopy(t *testing.T, srcRoot, dstRoot string) {
	t.Helper()

	err := filepath.WalkDir(srcRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcRoot, path)
		require.NoError(t, err)
		dstPath := filepath.Join(dstRoot, rel)

		srcInfo, err := os.Lstat(path)
		require.NoError(t, err)

		if d.Type()&os.ModeSymlink != 0 {
			_, err := os.Lstat(dstPath)
			require.ErrorIs(t, err, os.ErrNotExist, "symlink %s must not be copied", rel)
			return nil
		}

		dstInfo, err := os.Lstat(dstPath)
		require.NoError(t, err, "stat dst %s", rel)
		require.Equal(t, srcInfo.Mode(), dstInfo.Mode(), "mode mismatch: %s", rel)

		if srcInfo.Mode().IsRegular() {
			srcData, err := os.ReadFile(path)
			require.NoError(t, err, "read src %s", rel)
			dstData, err := os.ReadFile(dstPath)
			require.NoError(t, err, "read dst %s", rel)
			require.Equal(t, srcData, dstData, "content mismatch: %s", rel)
		}
		return nil
	})
	require.NoError(t, err)
}

// collectEvents creates a buffered event channel that records all events.
// Returns the channel for engine.Config and a function to retrieve collected
// events. The getter closes the channel and waits for the drain goroutine,
// so it is safe to read the slice. It may be called at most once. If the
// getter is never called, t.Cleanup closes the channel on test exit.
func collectEvents(t *testing.T) (chan<- event.Event, func() []event.Event) {
	t.Helper()
	ch := make(chan event.Event, 4096)
	var collected []event.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			collected = append(collected, ev)
		}
	}()
	var once sync.Once
	drain := func() {
		once.Do(func() { close(ch) })
		<-done
	}
	t.Cleanup(drain)
	return ch, func() []event.Event {
		drain()
		return collected
	}
}

// countTypes tallies events by type.
func countTypes(evs []event.Event) map[event.Type]int {
	counts := make(map[event.Type]int)
	for _, ev := range evs {
		counts[ev.Type]++
	}
	return counts
}
