package root

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="served.bin"`)
		http.ServeContent(w, r, "", time.Time{}, strings.NewReader("model weights"))
	}))
	t.Cleanup(server.Close)
	return server
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	cmd := GetCommand()
	cmd.SetArgs(append([]string{"--env-file", "", "--retries", "0"}, args...))
	return cmd.ExecuteContext(context.Background())
}

func TestRootDownloadDestinations(t *testing.T) {
	server := newServer(t)

	testCases := []struct {
		name     string
		args     func(dir string) []string
		expected string
	}{
		{"explicit path", func(dir string) []string { return []string{server.URL + "/f", filepath.Join(dir, "explicit.bin")} }, "explicit.bin"},
		{"directory dest", func(dir string) []string { return []string{server.URL + "/f", dir} }, "served.bin"},
		{"output dir and filename", func(dir string) []string { return []string{"-d", dir, "-n", "named.bin", server.URL + "/f"} }, "named.bin"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, execute(t, tc.args(dir)...))

			got, err := os.ReadFile(filepath.Join(dir, tc.expected))
			require.NoError(t, err)
			assert.Equal(t, "model weights", string(got))
		})
	}
}

func TestRootDuplicatePolicy(t *testing.T) {
	server := newServer(t)
	dir := t.TempDir()
	dest := filepath.Join(dir, "model.bin")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))

	assert.ErrorContains(t, execute(t, server.URL+"/f", dest), "already exists")

	require.NoError(t, execute(t, "--duplicate", "rename-new", server.URL+"/f", dest))
	assert.FileExists(t, filepath.Join(dir, "model_2.bin"))

	require.NoError(t, execute(t, "--duplicate", "overwrite", server.URL+"/f", dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "model weights", string(got))
}

func TestRootFailures(t *testing.T) {
	server := newServer(t)
	dir := t.TempDir()

	assert.Error(t, execute(t, server.URL+"/missing", filepath.Join(dir, "a.bin")))
	assert.NoFileExists(t, filepath.Join(dir, "a.bin"))

	assert.ErrorContains(t, execute(t, "-n", "b.bin", server.URL+"/f", filepath.Join(dir, "c.bin")), "--filename")
	assert.Error(t, execute(t))
}
