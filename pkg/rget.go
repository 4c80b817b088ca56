package rget

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/modelget/rget/pkg/download"
	"github.com/modelget/rget/pkg/extract"
	"github.com/modelget/rget/pkg/logging"
)

// Downloader produces the event sequence for one request.
type Downloader interface {
	Download(ctx context.Context, req download.Request) iter.Seq[download.Event]
}

var _ Downloader = &download.Downloader{}

type Getter struct {
	Downloader Downloader
	Options    Options
}

type Options struct {
	// MaxConcurrentFiles limits DownloadFiles. Zero means no limit.
	MaxConcurrentFiles int

	// Extract unpacks each finished file into the directory holding it.
	Extract bool

	// Progress receives every rendered progress line. DownloadFiles calls it
	// from several goroutines at once.
	Progress func(line string)

	// Headers and Duplicate apply to every manifest entry in DownloadFiles.
	Headers   http.Header
	Duplicate download.DuplicatePolicy
}

// DownloadFile runs req to completion. The returned error is the failure
// carried by the terminal event, so callers can use errors.Is against the
// client sentinels.
func (g *Getter) DownloadFile(ctx context.Context, req download.Request) (download.Result, error) {
	logger := logging.GetLogger()
	start := time.Now()

	var result *download.Result
	for ev := range g.Downloader.Download(ctx, req) {
		if ev.Terminal() {
			result = ev.Result
			continue
		}
		if g.Options.Progress != nil {
			g.Options.Progress(ev.Progress)
		}
	}
	if result == nil {
		return download.Result{}, fmt.Errorf("download of %s ended without a result", req.URL)
	}
	if !result.Success {
		return *result, result.Err
	}
	if result.Warning != nil {
		logger.Warn().Str("dest", result.Path).Msg(result.Warning.Error())
	}

	elapsed := time.Since(start)
	var size int64
	if info, err := os.Stat(result.Path); err == nil {
		size = info.Size()
	}
	logger.Info().
		Str("dest", result.Path).
		Str("size", humanize.IBytes(uint64(size))).
		Str("throughput", fmt.Sprintf("%s/s", humanize.IBytes(uint64(float64(size)/elapsed.Seconds())))).
		Str("elapsed", fmt.Sprintf("%.3fs", elapsed.Seconds())).
		Msg("Complete")

	if g.Options.Extract {
		destDir := filepath.Dir(result.Path)
		if err := extract.File(result.Path, destDir, req.Duplicate == download.Overwrite); err != nil {
			return *result, fmt.Errorf("error extracting %s: %w", result.Path, err)
		}
		logger.Info().Str("archive", result.Path).Str("dest", destDir).Msg("Extracted")
	}
	return *result, nil
}

type downloadMetrics struct {
	mu        sync.Mutex
	fileCount int
	totalSize int64
}

func (m *downloadMetrics) add(size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fileCount++
	m.totalSize += size
}

// DownloadFiles downloads every manifest entry as an independent transfer and
// returns the total bytes written and the elapsed time. The first failure
// cancels the transfers still running; their partial files stay resumable.
func (g *Getter) DownloadFiles(ctx context.Context, manifest Manifest) (int64, time.Duration, error) {
	logger := logging.GetLogger()
	start := time.Now()
	metrics := &downloadMetrics{}

	eg, ctx := errgroup.WithContext(ctx)
	if g.Options.MaxConcurrentFiles > 0 {
		logger.Debug().Int("concurrent_file_limit", g.Options.MaxConcurrentFiles).Msg("Config")
		eg.SetLimit(g.Options.MaxConcurrentFiles)
	}

	for host, entries := range manifest {
		logger.Debug().Str("host", host).Int("files", len(entries)).Msg("Queueing host")
		for _, entry := range entries {
			req := download.Request{
				URL:       entry.URL,
				Path:      entry.Dest,
				Headers:   g.Options.Headers,
				Duplicate: g.Options.Duplicate,
			}
			logger.Debug().Str("url", entry.URL).Str("dest", entry.Dest).Msg("Queueing Download")
			eg.Go(func() error {
				result, err := g.DownloadFile(ctx, req)
				if err != nil {
					return fmt.Errorf("error downloading %s: %w", req.URL, err)
				}
				info, err := os.Stat(result.Path)
				if err != nil {
					return fmt.Errorf("error inspecting %s: %w", result.Path, err)
				}
				metrics.add(info.Size())
				return nil
			})
		}
	}

	if err := eg.Wait(); err != nil {
		return metrics.totalSize, time.Since(start), err
	}

	elapsed := time.Since(start)
	logger.Info().
		Int("file_count", metrics.fileCount).
		Str("total_bytes_downloaded", humanize.IBytes(uint64(metrics.totalSize))).
		Str("throughput", fmt.Sprintf("%s/s", humanize.IBytes(uint64(float64(metrics.totalSize)/elapsed.Seconds())))).
		Str("elapsed_time", fmt.Sprintf("%.3fs", elapsed.Seconds())).
		Msg("Metrics")
	return metrics.totalSize, elapsed, nil
}
