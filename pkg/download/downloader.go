package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/modelget/rget/pkg/client"
	"github.com/modelget/rget/pkg/logging"
)

// Downloader resolves where a download goes, applies the duplicate policy,
// discovers the size and hands the transfer to an Engine.
type Downloader struct {
	client HTTPClient
	engine *Engine
}

func NewDownloader(c HTTPClient, opts Options) *Downloader {
	return &Downloader{client: c, engine: NewEngine(c, opts)}
}

// Download returns the event sequence for req. Like Engine.Transfer the
// sequence is lazy and single-pass; nothing touches the network until it is
// iterated.
func (d *Downloader) Download(ctx context.Context, req Request) iter.Seq[Event] {
	var consumed atomic.Bool
	return func(yield func(Event) bool) {
		if consumed.Swap(true) {
			yield(failed(client.NewError(client.KindUnknown, "download events can only be consumed once", nil)))
			return
		}
		d.run(ctx, req, yield)
	}
}

func (d *Downloader) run(ctx context.Context, req Request, yield func(Event) bool) {
	logger := logging.GetLogger()
	headers := req.Headers.Clone()

	// An explicit destination is checked before anything goes over the wire.
	dest, resolved, err := explicitDestination(req)
	if err != nil {
		yield(failed(err))
		return
	}
	if resolved {
		if dest, err = applyDuplicatePolicy(dest, req.Duplicate); err != nil {
			yield(failed(err))
			return
		}
	}

	logger.Debug().Str("url", req.URL).Msg("Start downloading")
	resp, err := d.client.Get(ctx, req.URL, headers)
	if err != nil {
		yield(failed(err))
		return
	}

	if !resolved {
		name := FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
		if name == "" {
			logger.Debug().Str("content_disposition", resp.Header.Get("Content-Disposition")).Msg("Can not get file name from response headers")
			closeResponse(resp)
			yield(failed(errNoFilename()))
			return
		}
		if dest, err = applyDuplicatePolicy(filepath.Join(req.Folder, name), req.Duplicate); err != nil {
			closeResponse(resp)
			yield(failed(err))
			return
		}
	}
	logger.Debug().Str("dest", dest).Msg("Target file path")

	total, err := contentLength(resp)
	if err != nil {
		closeResponse(resp)
		yield(failed(err))
		return
	}
	logger.Debug().
		Int64("size", total).
		Str("human_size", humanize.IBytes(uint64(total))).
		Msg("File size")

	for ev := range d.engine.Transfer(ctx, req.URL, dest, total, headers, resp) {
		if !yield(ev) {
			return
		}
	}
}

// explicitDestination resolves req to a path without contacting the server.
// resolved is false when the name has to come from the response.
func explicitDestination(req Request) (dest string, resolved bool, err error) {
	if req.Path != "" {
		dir := filepath.Dir(req.Path)
		if !isDir(dir) {
			return "", false, errNoDirectory(dir)
		}
		return req.Path, true, nil
	}
	if req.Folder == "" || !isDir(req.Folder) {
		return "", false, errNoDirectory(req.Folder)
	}
	if req.Filename != "" {
		name := sanitizeFilename(req.Filename)
		if name == "" {
			return "", false, errNoFilename()
		}
		return filepath.Join(req.Folder, name), true, nil
	}
	return "", false, nil
}

// applyDuplicatePolicy returns the path to download to when dest may already
// exist. A directory at dest is never a duplicate: no policy can place a file
// there.
func applyDuplicatePolicy(dest string, policy DuplicatePolicy) (string, error) {
	info, err := os.Stat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return dest, nil
	}
	if err != nil {
		return "", errIO("error inspecting", dest, err)
	}
	if !info.Mode().IsRegular() {
		return "", errDestinationNotFile(dest)
	}

	logger := logging.GetLogger()
	switch policy {
	case Overwrite:
		logger.Debug().Str("dest", dest).Msg("Target file already exists, overwriting")
		return dest, nil
	case RenameNew:
		next, err := nextAvailablePath(dest)
		if err != nil {
			return "", err
		}
		logger.Debug().Str("dest", dest).Str("renamed", next).Msg("Target file already exists, renaming")
		return next, nil
	default:
		return "", errDestinationExists(dest)
	}
}

// nextAvailablePath returns <base>_N<ext> for the smallest N >= 2 that does
// not exist yet.
func nextAvailablePath(dest string) (string, error) {
	ext := filepath.Ext(dest)
	base := strings.TrimSuffix(dest, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", base, n, ext)
		exists, err := fileExists(candidate)
		if err != nil {
			return "", errIO("error inspecting", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}
}

// fileExists reports whether anything, file or directory, occupies path.
func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// contentLength returns the declared size of resp. A response without one
// cannot be verified or resumed.
func contentLength(resp *http.Response) (int64, error) {
	if resp.ContentLength >= 0 {
		return resp.ContentLength, nil
	}
	if value := resp.Header.Get("Content-Length"); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n >= 0 {
			return n, nil
		}
	}
	return 0, errSizeUnknown()
}
