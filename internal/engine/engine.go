package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bamsammich/fanout/internal/event"
	"github.com/bamsammich/fanout/internal/platform"
	"github.com/bamsammich/fanout/internal/retry"
	"github.com/bamsammich/fanout/internal/stats"
)

// Guard selects how a directory task recognises the destination root
// inside the source tree.
type Guard int

const (
	// GuardExact skips the entries of a directory whose source path string
	// equals the destination root string. Paths that overlap without being
	// byte-identical are not recognised.
	GuardExact Guard = iota
	// GuardNested skips the single entry whose cleaned source path equals
	// the cleaned destination root.
	GuardNested
)

func (g Guard) String() string {
	if g == GuardNested {
		return "nested"
	}
	return "exact"
}

// ParseGuard parses a guard name. The empty string means exact.
func ParseGuard(s string) (Guard, error) {
	switch s {
	case "", "exact":
		return GuardExact, nil
	case "nested":
		return GuardNested, nil
	default:
		return GuardExact, fmt.Errorf("unknown guard %q (want exact or nested)", s)
	}
}

// Config describes a replication run.
type Config struct {
	// Dispatcher overrides Mode/Workers when set. The run never closes a
	// dispatcher it did not create.
	Dispatcher Dispatcher
	// PathMax returns the path length limit for a source directory; nil
	// means platform.PathMax.
	PathMax func(dir string) int
	Stats   *stats.Collector
	Events  chan<- event.Event
	Logger  *slog.Logger
	Src     string
	Dst     string
	Mode    DispatchMode
	Retry   retry.Policy
	Workers int
	Guard   Guard
	// BWLimit caps aggregate write throughput in bytes/sec; zero is unlimited.
	BWLimit int64
	// Verify compares BLAKE3 digests of every copied file once all tasks finish.
	Verify        bool
	VerifyWorkers int
}

// Result is the outcome of a completed run. Failures of individual tasks
// are reported on the diagnostic stream and counted in Stats; they do not
// set Err.
type Result struct {
	Err    error
	Verify *VerifyResult
	Stats  stats.Snapshot
}

// runContext is built once per run and shared read-only by every task.
type runContext struct {
	// ctx is detached from the caller's cancellation: tasks always run to
	// completion once dispatched.
	ctx          context.Context //nolint:containedctx // tasks outlive the Start call
	dispatcher   Dispatcher
	pathMax      func(string) int
	stats        *stats.Collector
	events       chan<- event.Event
	logger       *slog.Logger
	limiter      *rate.Limiter
	tracker      *Tracker
	dstRoot      string
	cleanDstRoot string
	policy       retry.Policy
	guard        Guard
}

// Run is a replication in flight.
type Run struct {
	rc     *runContext
	closer io.Closer
	cfg    Config
	ID     uuid.UUID
}

// Start validates the two top-level paths, dispatches the root task and
// returns without waiting for it. Tasks keep running after Start returns
// and after ctx is cancelled.
func Start(ctx context.Context, cfg Config) (*Run, error) {
	if cfg.Src == "" || cfg.Dst == "" {
		return nil, errors.New("source and destination are required")
	}
	if !filepath.IsAbs(cfg.Src) {
		return nil, fmt.Errorf("source %q: %w", cfg.Src, ErrRelativePath)
	}
	if !filepath.IsAbs(cfg.Dst) {
		return nil, fmt.Errorf("destination %q: %w", cfg.Dst, ErrRelativePath)
	}

	info, err := os.Lstat(cfg.Src)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if Classify(info.Mode()) == KindOther {
		return nil, fmt.Errorf("source %s (%s): %w", cfg.Src, info.Mode().Type(), ErrUnsupportedType)
	}

	run, err := newRun(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rc := run.rc
	event.Emit(rc.events, event.Event{Type: event.RunStarted, Src: cfg.Src, Dst: cfg.Dst})
	rc.logger.Debug("starting replication",
		"src", cfg.Src,
		"dst", cfg.Dst,
		"kind", Classify(info.Mode()).String(),
		"guard", rc.guard.String(),
	)

	root := NewDescriptor(cfg.Src, cfg.Dst, info.Mode())
	if err := rc.dispatch(root); err != nil {
		if run.closer != nil {
			_ = run.closer.Close()
		}
		return nil, fmt.Errorf("dispatch root: %w", err)
	}
	return run, nil
}

func newRun(ctx context.Context, cfg Config) (*Run, error) {
	run := &Run{cfg: cfg, ID: uuid.New()}

	disp := cfg.Dispatcher
	if disp == nil {
		mode, err := ParseDispatchMode(string(cfg.Mode))
		if err != nil {
			return nil, err
		}
		switch mode {
		case DispatchPool:
			pool := NewPoolDispatcher(cfg.Workers)
			disp = pool
			run.closer = pool
		case DispatchInline:
			disp = InlineDispatcher{}
		default:
			disp = SpawnDispatcher{}
		}
	}

	collector := cfg.Stats
	if collector == nil {
		collector = stats.NewCollector()
		run.cfg.Stats = collector
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pathMax := cfg.PathMax
	if pathMax == nil {
		pathMax = platform.PathMax
	}

	policy := cfg.Retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(err error, attempt int) {
		collector.AddRetries(1)
		if onRetry != nil {
			onRetry(err, attempt)
		}
	}

	var limiter *rate.Limiter
	if cfg.BWLimit > 0 {
		limiter = NewBWLimiter(cfg.BWLimit)
	}

	run.rc = &runContext{
		ctx:          context.WithoutCancel(ctx),
		dispatcher:   disp,
		pathMax:      pathMax,
		stats:        collector,
		events:       cfg.Events,
		logger:       logger.With("run", run.ID.String()),
		limiter:      limiter,
		tracker:      &Tracker{},
		dstRoot:      cfg.Dst,
		cleanDstRoot: filepath.Clean(cfg.Dst),
		policy:       policy,
		guard:        cfg.Guard,
	}
	return run, nil
}

// Live returns the number of tasks that have not yet released their
// descriptor.
func (r *Run) Live() int64 {
	return r.rc.tracker.Live()
}

// Wait blocks until every dispatched task has finished, closes any
// dispatcher the run created, and runs verification when configured.
// If ctx ends first, Wait returns ctx's error and the tasks keep running.
func (r *Run) Wait(ctx context.Context) Result {
	if err := r.rc.tracker.Wait(ctx); err != nil {
		return Result{Stats: r.rc.stats.Snapshot(), Err: err}
	}

	var closeErr error
	if r.closer != nil {
		closeErr = r.closer.Close()
	}

	res := Result{Err: closeErr}
	if r.cfg.Verify {
		vr := Verify(ctx, VerifyConfig{
			SrcRoot: r.cfg.Src,
			DstRoot: r.cfg.Dst,
			Workers: r.cfg.VerifyWorkers,
			Events:  r.rc.events,
			Stats:   r.rc.stats,
			Logger:  r.rc.logger,
		})
		res.Verify = &vr
	}
	res.Stats = r.rc.stats.Snapshot()
	return res
}

// Copy starts a run and waits for it to finish.
func Copy(ctx context.Context, cfg Config) Result {
	run, err := Start(ctx, cfg)
	if err != nil {
		return Result{Err: err}
	}
	return run.Wait(ctx)
}

// dispatch hands d to the dispatcher, retrying while task slots are
// exhausted. On failure d is released before returning.
func (rc *runContext) dispatch(d *Descriptor) error {
	var work func(*Descriptor) error
	switch d.Kind() {
	case KindDirectory:
		work = rc.replicateDirectory
	case KindRegular:
		work = rc.replicateFile
	default:
		path := d.Src
		d.release()
		return &PhaseError{Phase: PhaseDispatch, Path: path, Err: ErrUnsupportedType}
	}

	kind := d.Kind()
	d.advance(StateDispatched)
	rc.tracker.add()

	err := rc.policy.Run(func() error {
		return rc.dispatcher.Go(func() { rc.runTask(d, kind, work) })
	})
	if err != nil {
		path := d.Src
		d.advance(StateFailed)
		d.release()
		rc.tracker.done()
		return &PhaseError{Phase: PhaseDispatch, Path: path, Err: err}
	}
	rc.stats.AddTasksDispatched(1)
	return nil
}

// runTask is the body of every task: run the replicator, report a failure
// with both paths, then release the descriptor whatever happened.
func (rc *runContext) runTask(d *Descriptor, kind Kind, work func(*Descriptor) error) {
	defer rc.tracker.done()
	defer d.release()

	d.advance(StateRunning)
	err := work(d)
	if err == nil {
		d.advance(StateSucceeded)
		return
	}

	d.advance(StateFailed)
	evType := event.FileFailed
	if kind == KindDirectory {
		rc.stats.AddDirsFailed(1)
		evType = event.DirFailed
	} else {
		rc.stats.AddFilesFailed(1)
	}
	event.Emit(rc.events, event.Event{Type: evType, Src: d.Src, Dst: d.Dst, Error: err})
	rc.logger.LogAttrs(rc.ctx, slog.LevelError, "copy failed",
		slog.String("task", kind.String()),
		slog.String("phase", string(PhaseOf(err))),
		slog.String("src", d.Src),
		slog.String("dst", d.Dst),
		slog.Any("error", err),
	)
}
