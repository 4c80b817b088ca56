package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/modelget/rget/pkg/client"
	"github.com/modelget/rget/pkg/logging"
	"github.com/modelget/rget/pkg/progress"
)

// Engine moves bytes from a response body into <dest>.downloading, resuming a
// previous partial file when one exists, and renames it to dest when the stream
// ends. The partial file's size is the only resume checkpoint.
type Engine struct {
	client HTTPClient
	opts   Options
}

func NewEngine(c HTTPClient, opts Options) *Engine {
	return &Engine{client: c, opts: opts.withDefaults()}
}

// Transfer returns the event sequence for one transfer of url into dest. total
// is the expected size in bytes. open, when non-nil, is an already issued
// non-ranged response for url which is used as is if there is nothing to
// resume; it is closed otherwise.
//
// The sequence is single-pass: iterating it a second time yields one failure
// event. Breaking out of the loop leaves the partial file ready for a later
// resume.
func (e *Engine) Transfer(ctx context.Context, url, dest string, total int64, headers http.Header, open *http.Response) iter.Seq[Event] {
	var consumed atomic.Bool
	return func(yield func(Event) bool) {
		if consumed.Swap(true) {
			yield(failed(client.NewError(client.KindUnknown, "transfer events can only be consumed once", nil)))
			return
		}
		t := &transfer{
			engine:         e,
			ctx:            ctx,
			url:            url,
			dest:           dest,
			partial:        PartialPath(dest),
			total:          total,
			headers:        headers.Clone(),
			throttle:       progress.NewThrottle(e.opts.EmitInterval),
			restartAllowed: true,
			yield:          yield,
		}
		t.run(open)
	}
}

// transfer is the mutable state of one Transfer run.
type transfer struct {
	engine  *Engine
	ctx     context.Context
	url     string
	dest    string
	partial string
	headers http.Header

	downloaded int64
	session    int64
	total      int64
	start      time.Time
	throttle   *progress.Throttle

	restartAllowed bool
	stopped        bool
	yield          func(Event) bool
}

func (t *transfer) emit(ev Event) bool {
	if t.stopped {
		return false
	}
	if !t.yield(ev) {
		t.stopped = true
	}
	return !t.stopped
}

func (t *transfer) fail(err error) {
	logger := logging.GetLogger()
	logger.Debug().Err(err).Str("url", t.url).Str("dest", t.dest).Msg("Download failed")
	t.emit(failed(err))
}

func (t *transfer) run(open *http.Response) {
	logger := logging.GetLogger()

	if t.total < 0 {
		closeResponse(open)
		t.fail(errSizeUnknown())
		return
	}
	if dir := filepath.Dir(t.dest); !isDir(dir) {
		closeResponse(open)
		t.fail(errNoDirectory(dir))
		return
	}

	logger.Debug().Str("partial", t.partial).Msg("Downloading to temp file")

	resp, err := t.negotiate(open)
	if err != nil {
		t.fail(err)
		return
	}

	t.start = t.engine.opts.Now()
	err = t.stream(resp)
	if t.stopped {
		logger.Debug().Str("partial", t.partial).Int64("downloaded", t.downloaded).Msg("Download abandoned by consumer")
		return
	}
	if err != nil {
		t.fail(err)
		return
	}

	t.finalize()
}

// negotiate returns the response to stream from. It probes the partial file,
// reuses open when there is nothing to resume, and otherwise asks for the
// remaining bytes with a Range header. A 416 means the partial file does not
// match the remote resource: it is deleted and the whole transfer restarts from
// zero, once.
func (t *transfer) negotiate(open *http.Response) (*http.Response, error) {
	logger := logging.GetLogger()

	offset, err := t.probe()
	if err != nil {
		closeResponse(open)
		return nil, err
	}
	t.downloaded = offset

	if offset == 0 && open != nil {
		return open, nil
	}
	closeResponse(open)

	if offset > 0 {
		logger.Info().Str("partial", t.partial).Int64("offset", offset).Msg("Resuming partially downloaded file")
	}

	headers := t.headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	headers.Set("Range", fmt.Sprintf("bytes=%d-", offset))

	resp, err := t.engine.client.Get(t.ctx, t.url, headers)
	if err != nil {
		if errors.Is(err, client.ErrRangeNotSatisfiable) && t.restartAllowed {
			t.restartAllowed = false
			logger.Warn().Str("partial", t.partial).Msg("Could not resume download from existing temporary file. Restarting download.")
			if err := os.Remove(t.partial); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, errIO("error removing", t.partial, err)
			}
			t.resetSession()
			return t.negotiate(nil)
		}
		return nil, err
	}

	if offset > 0 && resp.StatusCode != http.StatusPartialContent {
		// The server sent the whole resource; appending would duplicate bytes.
		logger.Warn().Int("status", resp.StatusCode).Str("partial", t.partial).Msg("Server ignored range request. Restarting download.")
		if err := os.Truncate(t.partial, 0); err != nil {
			closeResponse(resp)
			return nil, errIO("error truncating", t.partial, err)
		}
		t.downloaded = 0
		t.resetSession()
	}
	return resp, nil
}

// resetSession drops the bytes counted towards speed once they are thrown away.
func (t *transfer) resetSession() {
	t.session = 0
	t.start = t.engine.opts.Now()
}

func (t *transfer) probe() (int64, error) {
	info, err := os.Stat(t.partial)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, errIO("error inspecting", t.partial, err)
	}
	return info.Size(), nil
}

// stream copies resp into the partial file chunk by chunk. A read error part
// way through is treated like any other transient network failure: after the
// stepback delay the remaining bytes are requested again, up to the client's
// retry ceiling. The partial file is closed while renegotiating, since a 416
// answer deletes it and the restart must write to a fresh one.
func (t *transfer) stream(resp *http.Response) error {
	logger := logging.GetLogger()
	buf := make([]byte, t.engine.opts.ChunkSize)
	resumes := 0

	for {
		readErr, err := t.copyBody(resp, buf)
		if err != nil || t.stopped || readErr == nil {
			return err
		}

		if t.ctx.Err() != nil {
			return client.NewError(client.KindNetworkTransient, fmt.Sprintf("download of %s cancelled", t.url), t.ctx.Err())
		}
		if resumes >= t.engine.client.MaxRetries() {
			return interruptedError(t.url, resumes, readErr)
		}
		delay := t.engine.client.StepbackDelay(resumes)
		logger.Warn().
			Err(readErr).
			Int64("downloaded", t.downloaded).
			Dur("delay", delay).
			Msg("Download interrupted, resuming")
		if err := sleepContext(t.ctx, delay); err != nil {
			return client.NewError(client.KindNetworkTransient, fmt.Sprintf("download of %s cancelled", t.url), err)
		}
		resumes++

		resp, err = t.negotiate(nil)
		if err != nil {
			return err
		}
	}
}

// copyBody appends resp to the partial file until the body ends, fails, or
// the consumer stops. readErr is the body's failure, nil on a clean end; err
// is a local failure that ends the transfer. resp is always closed.
func (t *transfer) copyBody(resp *http.Response, buf []byte) (readErr, err error) {
	defer closeResponse(resp)

	file, err := os.OpenFile(t.partial, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errIO("error opening", t.partial, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = errIO("error closing", t.partial, closeErr)
		}
	}()

	for {
		n, rerr := readChunk(resp.Body, buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return nil, errIO("error writing", t.partial, err)
			}
			t.downloaded += int64(n)
			t.session += int64(n)
			if !t.maybeEmit() {
				return nil, nil
			}
		}
		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) {
			return nil, nil
		}
		return rerr, nil
	}
}

func (t *transfer) maybeEmit() bool {
	percent := progress.Percent(t.downloaded, t.total)
	now := t.engine.opts.Now()
	if !t.throttle.Ready(now, percent) {
		return true
	}

	speed := float64(t.session)
	if elapsed := now.Sub(t.start).Seconds(); elapsed >= 1 {
		speed = float64(t.session) / elapsed
	}
	snapshot := progress.Snapshot{
		Percent:    percent,
		Downloaded: t.downloaded,
		Total:      t.total,
		Speed:      speed,
	}
	return t.emit(Event{Snapshot: snapshot, Progress: snapshot.Format(t.engine.opts.ShowBar)})
}

// finalize moves the partial file into place. A size mismatch is reported as a
// warning and the file is still renamed, keeping whatever was received.
func (t *transfer) finalize() {
	logger := logging.GetLogger()

	info, err := os.Stat(t.partial)
	if err != nil {
		t.fail(errIO("error inspecting", t.partial, err))
		return
	}

	var warning error
	if info.Size() != t.total {
		warning = errSizeMismatch(t.dest, t.url, t.total, info.Size())
		logger.Warn().
			Str("dest", t.dest).
			Int64("expected", t.total).
			Int64("actual", info.Size()).
			Msg(warning.Error())
	}

	if err := os.Rename(t.partial, t.dest); err != nil {
		t.fail(errIO("error renaming", t.partial, err))
		return
	}
	logger.Info().Str("dest", t.dest).Msg("File Downloaded")

	t.emit(Event{Result: &Result{Success: true, Path: t.dest, Warning: warning}})
}

func interruptedError(url string, attempts int, cause error) error {
	kind := client.KindOf(cause)
	if kind != client.KindTimeout {
		kind = client.KindNetworkTransient
	}
	return client.NewError(kind, fmt.Sprintf("download of %s interrupted after %d resume attempts: %v", url, attempts, cause), cause)
}

// readChunk fills buf unless the reader fails or ends first. Unlike
// io.ReadFull it passes the underlying error through untouched, so a body cut
// short by the server is not mistaken for a clean end of stream.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func closeResponse(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
