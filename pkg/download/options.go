package download

import (
	"context"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/modelget/rget/pkg/client"
	"github.com/modelget/rget/pkg/progress"
)

const (
	// PartialSuffix is appended to the destination path while a download is in
	// flight.
	PartialSuffix    = ".downloading"
	DefaultChunkSize = 256 * humanize.KiByte
)

// HTTPClient is the subset of *client.Client the engine needs.
type HTTPClient interface {
	Get(ctx context.Context, url string, headers http.Header) (*http.Response, error)
	MaxRetries() int
	StepbackDelay(retries int) time.Duration
}

var _ HTTPClient = &client.Client{}

type Options struct {
	// ChunkSize is the read and write unit. If set to zero, 256 KiB is used.
	ChunkSize int64

	// EmitInterval is the minimum spacing between progress events. If set to
	// zero, 200ms is used.
	EmitInterval time.Duration

	// ShowBar renders a 100 character bar in front of each progress line.
	ShowBar bool

	// Now replaces time.Now. Tests only.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.EmitInterval <= 0 {
		o.EmitInterval = progress.DefaultInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// PartialPath returns the in-flight path for dest.
func PartialPath(dest string) string {
	return dest + PartialSuffix
}
