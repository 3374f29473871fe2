package download

import (
	"context"
	"net/http"
)

// Request describes a single transfer.
type Request struct {
	// Session identifies this run in logs.
	Session string
	URL     string
	Path    string
	Header  http.Header
}

// Executor performs one transfer to req.Path, blocking until it settles.
//
// Run emits at most one Started, any number of Progress events and exactly
// one terminal event (Completed, Canceled or Failed). Canceling ctx before the
// terminal event must eventually produce Canceled; after it, cancel is a no-op.
// On Failed or Canceled the partial file at req.Path is gone by the time the
// terminal event is emitted.
type Executor interface {
	Run(ctx context.Context, req Request, emit func(Event))
}

// Event is the closed set of lifecycle notifications an Executor emits.
type Event interface {
	isEvent()
}

type Started struct{}

// Progress reports bytes written so far. TotalBytes is -1 when unknown.
type Progress struct {
	BytesTransferred int64
	TotalBytes       int64
}

type Completed struct {
	Path string
	Size int64
}

type Canceled struct{}

type Failed struct {
	Err error
}

func (Started) isEvent()   {}
func (Progress) isEvent()  {}
func (Completed) isEvent() {}
func (Canceled) isEvent()  {}
func (Failed) isEvent()    {}

// IsTerminal reports whether ev settles the transfer.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Completed, Canceled, Failed:
		return true
	}
	return false
}
