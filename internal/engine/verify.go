package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/fanout/internal/event"
	"github.com/bamsammich/fanout/internal/platform"
	"github.com/bamsammich/fanout/internal/stats"
)

// HashFile returns the hex BLAKE3 digest of the file at path, read with
// the same fixed-size loop the file replicator uses.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := platform.CopyStream(h, f, nil); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyConfig controls the post-copy verification pass.
type VerifyConfig struct {
	Events  chan<- event.Event
	Stats   *stats.Collector
	Logger  *slog.Logger
	SrcRoot string
	DstRoot string
	Workers int
}

// VerifyResult holds the outcome of a verification pass.
type VerifyResult struct {
	Errors   []VerifyError
	Verified int64
	Failed   int64
}

// VerifyError records a single checksum mismatch or unreadable file.
type VerifyError struct {
	Path    string
	SrcHash string
	DstHash string
}

// Verify walks the destination tree and compares BLAKE3 checksums against
// the source for every regular file, hashing up to cfg.Workers files at once.
func Verify(ctx context.Context, cfg VerifyConfig) VerifyResult {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	files := collectVerifyFiles(ctx, cfg.DstRoot, cfg.SrcRoot)

	var (
		mu     sync.Mutex
		result VerifyResult
	)
	fail := func(rel, srcHash, dstHash string, err error) {
		mu.Lock()
		result.Failed++
		result.Errors = append(result.Errors, VerifyError{Path: rel, SrcHash: srcHash, DstHash: dstHash})
		mu.Unlock()
		if cfg.Stats != nil {
			cfg.Stats.AddFilesVerifyFailed(1)
		}
		event.Emit(cfg.Events, event.Event{
			Type:  event.VerifyFailed,
			Src:   filepath.Join(cfg.SrcRoot, rel),
			Dst:   filepath.Join(cfg.DstRoot, rel),
			Error: err,
		})
		logger.Error("verify failed", "path", rel, "src_hash", srcHash, "dst_hash", dstHash, "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rel := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			srcPath := filepath.Join(cfg.SrcRoot, rel)
			dstPath := filepath.Join(cfg.DstRoot, rel)

			srcHash, err := HashFile(srcPath)
			if err != nil {
				fail(rel, "error", "n/a", err)
				return nil
			}
			dstHash, err := HashFile(dstPath)
			if err != nil {
				fail(rel, srcHash, "error", err)
				return nil
			}
			if srcHash != dstHash {
				fail(rel, srcHash, dstHash, nil)
				return nil
			}

			mu.Lock()
			result.Verified++
			mu.Unlock()
			if cfg.Stats != nil {
				cfg.Stats.AddFilesVerified(1)
			}
			event.Emit(cfg.Events, event.Event{Type: event.VerifyOK, Src: srcPath, Dst: dstPath})
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers record failures in result and never return errors

	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Path < result.Errors[j].Path })
	return result
}

// collectVerifyFiles walks the destination tree and returns relative paths
// of regular files that also exist in the source.
func collectVerifyFiles(ctx context.Context, dstRoot, srcRoot string) []string {
	var files []string
	_ = filepath.WalkDir(dstRoot, func(path string, d fs.DirEntry, err error) error { //nolint:errcheck // walk errors skip entries
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(dstRoot, path)
		if err != nil {
			return nil
		}
		if _, err := os.Lstat(filepath.Join(srcRoot, relPath)); err != nil {
			return nil
		}

		files = append(files, relPath)
		return nil
	})
	return files
}
