package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector tracks what a replication run did using lock-free atomic
// counters. Tasks only ever add; readers take a Snapshot.
type Collector struct {
	startTime         time.Time
	dirsCreated       atomic.Int64
	dirsFailed        atomic.Int64
	filesCopied       atomic.Int64
	filesFailed       atomic.Int64
	bytesCopied       atomic.Int64
	entriesSkipped    atomic.Int64
	entriesFailed     atomic.Int64
	tasksDispatched   atomic.Int64
	retries           atomic.Int64
	filesVerified     atomic.Int64
	filesVerifyFailed atomic.Int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	DirsCreated       int64
	DirsFailed        int64
	FilesCopied       int64
	FilesFailed       int64
	BytesCopied       int64
	EntriesSkipped    int64
	EntriesFailed     int64
	TasksDispatched   int64
	Retries           int64
	FilesVerified     int64
	FilesVerifyFailed int64
	Elapsed           time.Duration
}

func (c *Collector) AddDirsCreated(n int64)       { c.dirsCreated.Add(n) }
func (c *Collector) AddDirsFailed(n int64)        { c.dirsFailed.Add(n) }
func (c *Collector) AddFilesCopied(n int64)       { c.filesCopied.Add(n) }
func (c *Collector) AddFilesFailed(n int64)       { c.filesFailed.Add(n) }
func (c *Collector) AddBytesCopied(n int64)       { c.bytesCopied.Add(n) }
func (c *Collector) AddEntriesSkipped(n int64)    { c.entriesSkipped.Add(n) }
func (c *Collector) AddEntriesFailed(n int64)     { c.entriesFailed.Add(n) }
func (c *Collector) AddTasksDispatched(n int64)   { c.tasksDispatched.Add(n) }
func (c *Collector) AddRetries(n int64)           { c.retries.Add(n) }
func (c *Collector) AddFilesVerified(n int64)     { c.filesVerified.Add(n) }
func (c *Collector) AddFilesVerifyFailed(n int64) { c.filesVerifyFailed.Add(n) }

// Snapshot returns a point-in-time read of all counters. Counters are read
// individually, so a snapshot taken while tasks run may be mid-update.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		DirsCreated:       c.dirsCreated.Load(),
		DirsFailed:        c.dirsFailed.Load(),
		FilesCopied:       c.filesCopied.Load(),
		FilesFailed:       c.filesFailed.Load(),
		BytesCopied:       c.bytesCopied.Load(),
		EntriesSkipped:    c.entriesSkipped.Load(),
		EntriesFailed:     c.entriesFailed.Load(),
		TasksDispatched:   c.tasksDispatched.Load(),
		Retries:           c.retries.Load(),
		FilesVerified:     c.filesVerified.Load(),
		FilesVerifyFailed: c.filesVerifyFailed.Load(),
		Elapsed:           c.Elapsed(),
	}
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

// Failures is the number of tasks, entries and verifications that failed.
func (s Snapshot) Failures() int64 {
	return s.DirsFailed + s.FilesFailed + s.EntriesFailed + s.FilesVerifyFailed
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"dirs=%d files=%d bytes=%d skipped=%d failed=%d retries=%d",
		s.DirsCreated, s.FilesCopied, s.BytesCopied,
		s.EntriesSkipped, s.Failures(), s.Retries,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
