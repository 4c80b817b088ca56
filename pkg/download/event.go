package download

import "github.com/modelget/rget/pkg/progress"

// Event is one element of a transfer's event sequence: a progress update, or
// the terminal result which is always the last element.
type Event struct {
	// Progress is Snapshot rendered for display. Empty on the terminal event.
	Progress string
	Snapshot progress.Snapshot
	Result   *Result
}

func (e Event) Terminal() bool {
	return e.Result != nil
}

// Result is the outcome of a transfer.
type Result struct {
	Success bool
	// Path is the final file path on success.
	Path string
	// Err is set on failure and is a *client.Error.
	Err error
	// Warning is a non-fatal problem found during finalize, such as a size
	// mismatch. The file was still moved into place.
	Warning error
}

// Message returns the final path on success, or a message suitable for display
// on failure.
func (r Result) Message() string {
	if r.Success {
		return r.Path
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return "download failed"
}

func failed(err error) Event {
	return Event{Result: &Result{Err: err}}
}
