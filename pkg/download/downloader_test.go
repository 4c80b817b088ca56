package download

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelget/rget/pkg/client"
)

func TestDownloadNameFromContentDisposition(t *testing.T) {
	content := randomContent(2048)
	cs := newContentServer(t, content, nil)
	dir := t.TempDir()

	d := NewDownloader(newTestClient(t, 2), Options{})
	_, result := collect(t, d.Download(context.Background(), Request{URL: cs.URL, Folder: dir}))

	require.True(t, result.Success, result.Message())
	assert.Equal(t, filepath.Join(dir, "model.safetensors"), result.Path)

	got, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, []string{""}, cs.seenRanges())
}

func TestDownloadExplicitDestinations(t *testing.T) {
	content := []byte("hello, world!")
	cs := newContentServer(t, content, nil)
	dir := t.TempDir()

	testCases := []struct {
		name     string
		req      Request
		expected string
	}{
		{"path", Request{URL: cs.URL, Path: filepath.Join(dir, "a.bin"), Folder: "/ignored"}, filepath.Join(dir, "a.bin")},
		{"folder and filename", Request{URL: cs.URL, Folder: dir, Filename: "b.bin"}, filepath.Join(dir, "b.bin")},
		{"filename reduced to base name", Request{URL: cs.URL, Folder: dir, Filename: "../../c.bin"}, filepath.Join(dir, "c.bin")},
	}

	d := NewDownloader(newTestClient(t, 2), Options{})
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, result := collect(t, d.Download(context.Background(), tc.req))
			require.True(t, result.Success, result.Message())
			assert.Equal(t, tc.expected, result.Path)
			assert.FileExists(t, tc.expected)
		})
	}
}

func TestDownloadRejectMakesNoRequest(t *testing.T) {
	cs := newContentServer(t, []byte("new"), nil)
	dir := t.TempDir()
	dest := filepath.Join(dir, "model.bin")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))

	d := NewDownloader(newTestClient(t, 2), Options{})
	_, result := collect(t, d.Download(context.Background(), Request{URL: cs.URL, Path: dest}))

	require.False(t, result.Success)
	assert.ErrorIs(t, result.Err, client.ErrDestinationExists)
	assert.Contains(t, result.Message(), "already exists")
	assert.Empty(t, cs.seenRanges())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
}

func TestDownloadRejectAfterContentDisposition(t *testing.T) {
	cs := newContentServer(t, []byte("new"), nil)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.safetensors"), []byte("old"), 0o644))

	d := NewDownloader(newTestClient(t, 2), Options{})
	_, result := collect(t, d.Download(context.Background(), Request{URL: cs.URL, Folder: dir}))

	require.False(t, result.Success)
	assert.ErrorIs(t, result.Err, client.ErrDestinationExists)
	assert.NoFileExists(t, PartialPath(filepath.Join(dir, "model.safetensors")))
}

func TestDownloadOverwrite(t *testing.T) {
	cs := newContentServer(t, []byte("new"), nil)
	dest := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))

	d := NewDownloader(newTestClient(t, 2), Options{})
	_, result := collect(t, d.Download(context.Background(), Request{URL: cs.URL, Path: dest, Duplicate: Overwrite}))

	require.True(t, result.Success, result.Message())
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestDownloadRenameNew(t *testing.T) {
	cs := newContentServer(t, []byte("new"), nil)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.bin"), []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo_2.bin"), []byte("two"), 0o644))

	d := NewDownloader(newTestClient(t, 2), Options{})
	_, result := collect(t, d.Download(context.Background(), Request{
		URL:       cs.URL,
		Folder:    dir,
		Filename:  "foo.bin",
		Duplicate: ParseDuplicatePolicy("Rename New"),
	}))

	require.True(t, result.Success, result.Message())
	assert.Equal(t, filepath.Join(dir, "foo_3.bin"), result.Path)

	got, err := os.ReadFile(filepath.Join(dir, "foo.bin"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))
}

func TestDownloadDestinationIsDirectory(t *testing.T) {
	cs := newContentServer(t, []byte("new"), nil)
	dir := t.TempDir()
	dest := filepath.Join(dir, "model.bin")
	require.NoError(t, os.Mkdir(dest, 0o755))

	for _, policy := range []DuplicatePolicy{Reject, Overwrite, RenameNew} {
		t.Run(policy.String(), func(t *testing.T) {
			d := NewDownloader(newTestClient(t, 2), Options{})
			_, result := collect(t, d.Download(context.Background(), Request{URL: cs.URL, Path: dest, Duplicate: policy}))

			require.False(t, result.Success)
			assert.ErrorIs(t, result.Err, client.ErrNoDestination)
			assert.DirExists(t, dest)
		})
	}
	assert.Empty(t, cs.seenRanges())
	assert.NoFileExists(t, PartialPath(dest))
}

func TestDownloadNoDestination(t *testing.T) {
	cs := newContentServer(t, []byte("data"), func(cs *contentServer, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4")
		_, _ = w.Write(cs.content)
	})
	dir := t.TempDir()
	notDir := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(notDir, nil, 0o644))

	testCases := []struct {
		name          string
		req           Request
		expectedCalls int
	}{
		{"no folder", Request{URL: cs.URL}, 0},
		{"missing folder", Request{URL: cs.URL, Folder: filepath.Join(dir, "missing")}, 0},
		{"folder is a file", Request{URL: cs.URL, Folder: notDir}, 0},
		{"path in missing folder", Request{URL: cs.URL, Path: filepath.Join(dir, "missing", "a.bin")}, 0},
		{"no content disposition", Request{URL: cs.URL, Folder: dir}, 1},
	}

	d := NewDownloader(newTestClient(t, 2), Options{})
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			before := len(cs.seenRanges())
			_, result := collect(t, d.Download(context.Background(), tc.req))
			require.False(t, result.Success)
			assert.ErrorIs(t, result.Err, client.ErrNoDestination)
			assert.Equal(t, tc.expectedCalls, len(cs.seenRanges())-before)
		})
	}
}

func TestDownloadSizeUnknown(t *testing.T) {
	cs := newContentServer(t, []byte("streamed"), func(cs *contentServer, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		_, _ = w.Write(cs.content)
	})
	dir := t.TempDir()

	d := NewDownloader(newTestClient(t, 2), Options{})
	_, result := collect(t, d.Download(context.Background(), Request{URL: cs.URL, Folder: dir, Filename: "a.bin"}))

	require.False(t, result.Success)
	assert.ErrorIs(t, result.Err, client.ErrSizeUnknown)
	assert.Contains(t, result.Message(), "API key")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadRequestFailure(t *testing.T) {
	cs := newContentServer(t, nil, func(cs *contentServer, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	d := NewDownloader(newTestClient(t, 2), Options{})
	_, result := collect(t, d.Download(context.Background(), Request{URL: cs.URL, Folder: t.TempDir()}))

	require.False(t, result.Success)
	assert.ErrorIs(t, result.Err, client.ErrAuthenticationRequired)
	assert.Len(t, cs.seenRanges(), 1)
}

func TestDownloadResumesExistingPartial(t *testing.T) {
	content := randomContent(4096)
	cs := newContentServer(t, content, nil)
	dest := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(PartialPath(dest), content[:1000], 0o644))

	d := NewDownloader(newTestClient(t, 2), Options{})
	_, result := collect(t, d.Download(context.Background(), Request{URL: cs.URL, Path: dest}))

	require.True(t, result.Success, result.Message())
	assert.Equal(t, []string{"", "bytes=1000-"}, cs.seenRanges())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadDoesNotMutateRequestHeaders(t *testing.T) {
	content := []byte("hello")
	cs := newContentServer(t, content, nil)
	dest := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(PartialPath(dest), content[:2], 0o644))

	headers := http.Header{"Authorization": []string{"Bearer token"}}
	d := NewDownloader(newTestClient(t, 2), Options{})
	_, result := collect(t, d.Download(context.Background(), Request{URL: cs.URL, Path: dest, Headers: headers}))

	require.True(t, result.Success, result.Message())
	assert.Equal(t, http.Header{"Authorization": []string{"Bearer token"}}, headers)
}

func TestNextAvailablePath(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "model.tar.gz")

	next, err := nextAvailablePath(dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model.tar_2.gz"), next)

	noExt := filepath.Join(dir, "README")
	require.NoError(t, os.WriteFile(noExt+"_2", nil, 0o644))
	next, err = nextAvailablePath(noExt)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "README_3"), next)
}

func TestContentLength(t *testing.T) {
	n, err := contentLength(&http.Response{ContentLength: 42})
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = contentLength(&http.Response{ContentLength: -1, Header: http.Header{"Content-Length": []string{"7"}}})
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = contentLength(&http.Response{ContentLength: -1, Header: http.Header{}})
	assert.ErrorIs(t, err, client.ErrSizeUnknown)
}
