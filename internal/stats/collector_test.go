package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	const goroutines = 100
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range opsPerGoroutine {
				c.AddDirsCreated(1)
				c.AddFilesCopied(1)
				c.AddFilesFailed(1)
				c.AddEntriesSkipped(1)
				c.AddBytesCopied(256)
				c.AddTasksDispatched(1)
				c.AddRetries(1)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	expected := int64(goroutines * opsPerGoroutine)
	assert.Equal(t, expected, s.DirsCreated)
	assert.Equal(t, expected, s.FilesCopied)
	assert.Equal(t, expected, s.FilesFailed)
	assert.Equal(t, expected, s.EntriesSkipped)
	assert.Equal(t, expected*256, s.BytesCopied)
	assert.Equal(t, expected, s.TasksDispatched)
	assert.Equal(t, expected, s.Retries)
}

func TestSnapshotFailures(t *testing.T) {
	s := Snapshot{DirsFailed: 1, FilesFailed: 2, EntriesFailed: 3, FilesVerifyFailed: 4}
	assert.Equal(t, int64(10), s.Failures())
	assert.Equal(t, int64(0), Snapshot{FilesCopied: 5}.Failures())
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{
		DirsCreated:    3,
		FilesCopied:    8,
		BytesCopied:    4096,
		EntriesSkipped: 1,
		FilesFailed:    1,
		EntriesFailed:  1,
		Retries:        7,
	}
	expected := "dirs=3 files=8 bytes=4096 skipped=1 failed=2 retries=7"
	assert.Equal(t, expected, s.String())
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		expected string
		input    int64
	}{
		{"0 B", 0},
		{"512 B", 512},
		{"1.0 KiB", 1024},
		{"1.5 KiB", 1536},
		{"1.0 MiB", 1048576},
		{"1.0 GiB", 1073741824},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, FormatBytes(tt.input))
		})
	}
}

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.startTime.IsZero())
	assert.InDelta(t, 0, c.Elapsed().Seconds(), 1)
}

func TestSnapshotIncludesElapsed(t *testing.T) {
	c := NewCollector()
	time.Sleep(10 * time.Millisecond)
	s := c.Snapshot()
	assert.Greater(t, s.Elapsed, time.Duration(0))
}
