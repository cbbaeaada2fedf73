package engine

import (
	"os"
	"sync/atomic"
)

// Kind classifies a filesystem entry for replication.
type Kind int

const (
	KindDirectory Kind = iota + 1
	KindRegular
	KindOther // symlinks, devices, sockets, fifos: skipped
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "dir"
	case KindRegular:
		return "file"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Classify returns the Kind for a mode obtained without following symlinks.
func Classify(mode os.FileMode) Kind {
	switch {
	case mode.IsDir():
		return KindDirectory
	case mode.IsRegular():
		return KindRegular
	default:
		return KindOther
	}
}

// State is a descriptor's position in its lifecycle. Transitions only move
// forward: Created, Dispatched, Running, Succeeded or Failed, Released.
type State int32

const (
	StateCreated State = iota
	StateDispatched
	StateRunning
	StateSucceeded
	StateFailed
	StateReleased
)

var stateNames = [...]string{
	StateCreated:    "created",
	StateDispatched: "dispatched",
	StateRunning:    "running",
	StateSucceeded:  "succeeded",
	StateFailed:     "failed",
	StateReleased:   "released",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Descriptor is the unit of work for one task: a source path, the
// destination it maps to, and the source mode captured by lstat.
//
// A descriptor is owned by exactly one task from dispatch until release.
// After release its paths are cleared; only State may still be read.
type Descriptor struct {
	Src   string
	Dst   string
	Mode  os.FileMode
	state atomic.Int32
}

// NewDescriptor returns a descriptor in StateCreated.
func NewDescriptor(src, dst string, mode os.FileMode) *Descriptor {
	return &Descriptor{Src: src, Dst: dst, Mode: mode}
}

// Kind classifies the descriptor's mode.
func (d *Descriptor) Kind() Kind {
	return Classify(d.Mode)
}

// State returns the current lifecycle state.
func (d *Descriptor) State() State {
	return State(d.state.Load())
}

// advance moves the descriptor forward to s. Backward moves are ignored.
func (d *Descriptor) advance(s State) {
	for {
		cur := d.state.Load()
		if State(cur) >= s {
			return
		}
		if d.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// release ends the descriptor's lifetime and drops its paths.
func (d *Descriptor) release() {
	d.Src = ""
	d.Dst = ""
	d.advance(StateReleased)
}
