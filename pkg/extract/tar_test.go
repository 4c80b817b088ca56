package extract

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tarEntry struct {
	name     string
	typeflag byte
	body     string
	linkname string
	mode     int64
}

func buildTar(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		mode := e.mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typeflag,
			Linkname: e.linkname,
			Mode:     mode,
			Size:     int64(len(e.body)),
			Format:   tar.FormatPAX,
		}
		if e.typeflag != tar.TypeReg {
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestExtractTar(t *testing.T) {
	archive := buildTar(t, []tarEntry{
		{name: "model/", typeflag: tar.TypeDir, mode: 0o755},
		{name: "model/weights.bin", typeflag: tar.TypeReg, body: "weights"},
		{name: "model/run.sh", typeflag: tar.TypeReg, body: "#!/bin/sh", mode: 0o4755},
		{name: "model/latest", typeflag: tar.TypeSymlink, linkname: "weights.bin"},
		{name: "model/copy.bin", typeflag: tar.TypeLink, linkname: "model/weights.bin"},
	})
	destDir := t.TempDir()

	require.NoError(t, extractTar(bytes.NewReader(archive), destDir, false))

	got, err := os.ReadFile(filepath.Join(destDir, "model", "weights.bin"))
	require.NoError(t, err)
	assert.Equal(t, "weights", string(got))

	info, err := os.Stat(filepath.Join(destDir, "model", "run.sh"))
	require.NoError(t, err)
	assert.Zero(t, info.Mode()&os.ModeSetuid, "setuid must be dropped")

	target, err := os.Readlink(filepath.Join(destDir, "model", "latest"))
	require.NoError(t, err)
	assert.Equal(t, "weights.bin", target)

	original, err := os.Stat(filepath.Join(destDir, "model", "weights.bin"))
	require.NoError(t, err)
	hardLink, err := os.Stat(filepath.Join(destDir, "model", "copy.bin"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(original, hardLink))
}

func TestExtractTarOverwrite(t *testing.T) {
	archive := buildTar(t, []tarEntry{
		{name: "a.txt", typeflag: tar.TypeReg, body: "new"},
		{name: "b.txt", typeflag: tar.TypeSymlink, linkname: "a.txt"},
	})
	destDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(destDir, "a.txt"), []byte("old contents"), 0o644))

	assert.Error(t, extractTar(bytes.NewReader(archive), destDir, false))

	require.NoError(t, extractTar(bytes.NewReader(archive), destDir, true))
	got, err := os.ReadFile(filepath.Join(destDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	// Extracting again replaces the existing symlink.
	require.NoError(t, extractTar(bytes.NewReader(archive), destDir, true))
}

func TestExtractTarRejectsEscapes(t *testing.T) {
	testCases := []struct {
		name  string
		entry tarEntry
	}{
		{"parent path", tarEntry{name: "../evil.txt", typeflag: tar.TypeReg, body: "x"}},
		{"nested parent path", tarEntry{name: "a/../../evil.txt", typeflag: tar.TypeReg, body: "x"}},
		{"absolute symlink", tarEntry{name: "link", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"}},
		{"escaping symlink", tarEntry{name: "dir/link", typeflag: tar.TypeSymlink, linkname: "../../outside"}},
		{"escaping hard link", tarEntry{name: "link", typeflag: tar.TypeLink, linkname: "../outside"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parent := t.TempDir()
			destDir := filepath.Join(parent, "dest")
			require.NoError(t, os.Mkdir(destDir, 0o755))

			err := extractTar(bytes.NewReader(buildTar(t, []tarEntry{tc.entry})), destDir, false)
			assert.ErrorIs(t, err, ErrZipSlip)
			assert.NoFileExists(t, filepath.Join(parent, "evil.txt"))
		})
	}
}

func TestSafeJoin(t *testing.T) {
	destDir := t.TempDir()

	_, err := safeJoin(destDir, "")
	assert.ErrorIs(t, err, ErrEmptyName)

	// A sibling directory sharing the prefix is still outside.
	_, err = safeJoin(destDir, "../"+filepath.Base(destDir)+"-other/file")
	assert.ErrorIs(t, err, ErrZipSlip)

	target, err := safeJoin(destDir, "./a/b/../c")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "a", "c"), target)
}
