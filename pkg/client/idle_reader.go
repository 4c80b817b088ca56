package client

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// idleTimeoutBody fails a Read that blocks longer than timeout by closing the
// underlying body, which unblocks the pending read. The read then reports a
// KindTimeout error instead of the close error.
type idleTimeoutBody struct {
	body     io.ReadCloser
	timeout  time.Duration
	timedOut atomic.Bool
}

func newIdleTimeoutBody(body io.ReadCloser, timeout time.Duration) io.ReadCloser {
	if timeout <= 0 {
		return body
	}
	return &idleTimeoutBody{body: body, timeout: timeout}
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	if b.timedOut.Load() {
		return 0, b.timeoutError()
	}
	timer := time.AfterFunc(b.timeout, func() {
		b.timedOut.Store(true)
		_ = b.body.Close()
	})
	n, err := b.body.Read(p)
	if !timer.Stop() && b.timedOut.Load() {
		return n, b.timeoutError()
	}
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	return b.body.Close()
}

func (b *idleTimeoutBody) timeoutError() error {
	return NewError(KindTimeout, fmt.Sprintf("no data received for %s", b.timeout), nil)
}
