package syncdocs

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docsmith/internal/config"
	apperrors "git.home.luguber.info/inful/docsmith/internal/errors"
)

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func archiveServer(t *testing.T, payload []byte, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func snapshotFiles() map[string]string {
	return map[string]string{
		"companion-main/docs/guide.md":       "Read [the intro][intro].\n\n[intro]: https://origin.example/intro\n",
		"companion-main/docs/nested/deep.md": "Plain content, [literal] brackets stay.\n",
		"companion-main/src/lib.py":          "print('not docs')\n",
		"companion-main/README.md":           "# Companion\n",
	}
}

func syncCfg(dest string) config.SyncConfig {
	return config.SyncConfig{
		Mode:            config.SyncSourceArchive,
		Selector:        "companion-main/docs/**",
		StripComponents: 2,
		Destination:     dest,
	}
}

func TestSyncExtractsSelectedSubtree(t *testing.T) {
	var calls atomic.Int32
	srv := archiveServer(t, buildTarGz(t, snapshotFiles()), &calls)

	dest := filepath.Join(t.TempDir(), "external")
	cfg := syncCfg(dest)
	cfg.Source = srv.URL

	out, err := NewJob(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.Equal(t, 2, out.Extracted)

	// Subtree landed directly under destination with components stripped.
	assert.FileExists(t, filepath.Join(dest, "guide.md"))
	assert.FileExists(t, filepath.Join(dest, "nested", "deep.md"))
	assert.NoFileExists(t, filepath.Join(dest, "lib.py"))
	assert.NoFileExists(t, filepath.Join(dest, "README.md"))
}

func TestSyncStripsCitations(t *testing.T) {
	var calls atomic.Int32
	srv := archiveServer(t, buildTarGz(t, snapshotFiles()), &calls)

	dest := filepath.Join(t.TempDir(), "external")
	cfg := syncCfg(dest)
	cfg.Source = srv.URL

	out, err := NewJob(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Stripped)

	guide, err := os.ReadFile(filepath.Join(dest, "guide.md"))
	require.NoError(t, err)
	assert.Equal(t, "Read .\n\n", string(guide))

	deep, err := os.ReadFile(filepath.Join(dest, "nested", "deep.md"))
	require.NoError(t, err)
	assert.Equal(t, "Plain content, [literal] brackets stay.\n", string(deep))
}

func TestSyncIdempotentSecondRunNoNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := archiveServer(t, buildTarGz(t, snapshotFiles()), &calls)

	dest := filepath.Join(t.TempDir(), "external")
	cfg := syncCfg(dest)
	cfg.Source = srv.URL

	_, err := NewJob(cfg).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())

	out, err := NewJob(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, int32(1), calls.Load(), "second run must perform zero network calls")
}

func TestSyncZeroMatchesIsWarningNotFatal(t *testing.T) {
	var calls atomic.Int32
	srv := archiveServer(t, buildTarGz(t, map[string]string{"other/file.md": "x"}), &calls)

	dest := filepath.Join(t.TempDir(), "external")
	cfg := syncCfg(dest)
	cfg.Source = srv.URL

	out, err := NewJob(cfg).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "no entries")
	assert.NoDirExists(t, dest, "nothing installed when nothing matched")
}

func TestSyncFetchFailureIsJobFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "external")
	cfg := syncCfg(dest)
	cfg.Source = srv.URL

	_, err := NewJob(cfg).Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategorySync))
	assert.NoDirExists(t, dest, "failed sync must not leave a partial destination")
}

func TestSyncRejectsTraversalEntries(t *testing.T) {
	var calls atomic.Int32
	srv := archiveServer(t, buildTarGz(t, map[string]string{
		"companion-main/docs/../../escape.md": "evil",
		"companion-main/docs/ok.md":           "fine",
	}), &calls)

	base := t.TempDir()
	dest := filepath.Join(base, "external")
	cfg := syncCfg(dest)
	cfg.Source = srv.URL

	out, err := NewJob(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Extracted)
	assert.NoFileExists(t, filepath.Join(base, "escape.md"))
}

func TestSelectEntryStripComponents(t *testing.T) {
	j := NewJob(config.SyncConfig{Selector: "repo/docs/**", StripComponents: 2})

	rel, ok := j.selectEntry("repo/docs/a/b.md")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("a", "b.md"), rel)

	_, ok = j.selectEntry("repo/docs")
	assert.False(t, ok, "entries shallower than strip count are dropped")

	_, ok = j.selectEntry("repo/other/c.md")
	assert.False(t, ok)

	rel, ok = j.selectEntry("./repo/docs/x.md")
	require.True(t, ok)
	assert.Equal(t, "x.md", rel)
}

func TestSelectEntryTraversalSegmentsOnly(t *testing.T) {
	j := NewJob(config.SyncConfig{Selector: "repo/docs/**", StripComponents: 2})

	_, ok := j.selectEntry("repo/docs/../escape.md")
	assert.False(t, ok)

	_, ok = j.selectEntry("../repo/docs/escape.md")
	assert.False(t, ok)

	// Dots inside a filename are not traversal.
	rel, ok := j.selectEntry("repo/docs/notes..md")
	require.True(t, ok)
	assert.Equal(t, "notes..md", rel)
}

func TestSyncMissingConfig(t *testing.T) {
	_, err := NewJob(config.SyncConfig{Destination: "x"}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfig))
}
