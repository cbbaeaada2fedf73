package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	RunStarted Type = iota + 1
	DirCreated
	DirFailed
	FileCompleted
	FileFailed
	EntrySkipped
	EntryFailed
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	RunStarted:    "RunStarted",
	DirCreated:    "DirCreated",
	DirFailed:     "DirFailed",
	FileCompleted: "FileCompleted",
	FileFailed:    "FileFailed",
	EntrySkipped:  "EntrySkipped",
	EntryFailed:   "EntryFailed",
	VerifyOK:      "VerifyOK",
	VerifyFailed:  "VerifyFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single lifecycle event from a replication task.
type Event struct {
	Timestamp time.Time
	Error     error
	Src       string // source path
	Dst       string // destination path
	Type      Type
	Size      int64 // bytes copied (FileCompleted)
}

// Emit sends e on ch without blocking. Events are dropped when ch is nil
// or full; tasks never wait on an observer.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case ch <- e:
	default:
	}
}
