package integration

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docsmith/internal/catalog"
	"git.home.luguber.info/inful/docsmith/internal/config"
	"git.home.luguber.info/inful/docsmith/internal/flatten"
	"git.home.luguber.info/inful/docsmith/internal/prebuilt"
	"git.home.luguber.info/inful/docsmith/internal/registry"
	"git.home.luguber.info/inful/docsmith/internal/stats"
	"git.home.luguber.info/inful/docsmith/internal/syncdocs"
)

// TestPipeline_EndToEnd drives the three content stages against local HTTP
// fixtures: sync installs a companion-repo snapshot, prebuilt rewrites the
// marked page region from fetched counts, and flatten emits the corpus.
func TestPipeline_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	root := t.TempDir()
	docsRoot := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(docsRoot, 0o755))

	// Registry fixture: pypistats-shaped responses for two packages.
	registrySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "numpy"):
			fmt.Fprint(w, `{"data":{"last_month":2500000}}`)
		case strings.Contains(r.URL.Path, "scipy"):
			fmt.Fprint(w, `{"data":{"last_month":900000}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer registrySrv.Close()

	// Archive fixture: a tar.gz snapshot with one docs page carrying a
	// reference-style citation.
	archiveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write(buildSnapshot(t, map[string]string{
			"repo-main/docs/guide.md": "# Guide\n\nSee [docs][ref1] for more.\n\n[ref1]: https://example.com\n",
			"repo-main/README.md":     "not selected\n",
		}))
	}))
	defer archiveSrv.Close()

	// Stage 1: sync.
	dest := filepath.Join(docsRoot, "external")
	syncJob := syncdocs.NewJob(config.SyncConfig{
		Mode:            config.SyncSourceArchive,
		Source:          archiveSrv.URL + "/snapshot.tar.gz",
		Selector:        "*/docs/**",
		StripComponents: 2,
		Destination:     dest,
	})
	outcome, err := syncJob.Run(context.Background())
	require.NoError(t, err)
	require.False(t, outcome.Skipped)
	require.Equal(t, 1, outcome.Extracted)

	synced, err := os.ReadFile(filepath.Join(dest, "guide.md"))
	require.NoError(t, err)
	require.Contains(t, string(synced), "See  for more.")
	require.NotContains(t, string(synced), "[ref1]")

	// Stage 2: prebuilt.
	catalogPath := filepath.Join(root, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(`packages:
  - name: numpy
    ecosystem: python
    registry: pypi:numpy
    repo: https://github.com/numpy/numpy
  - name: scipy
    ecosystem: python
    registry: pypi:scipy
    repo: https://github.com/scipy/scipy
`), 0o644))

	pagePath := filepath.Join(docsRoot, "prebuilt.md")
	require.NoError(t, os.WriteFile(pagePath, []byte(
		"# Prebuilt\n\n<!-- prebuilt:begin -->\nstale content\n<!-- prebuilt:end -->\n",
	), 0o644))

	cat, err := catalog.Load(catalogPath)
	require.NoError(t, err)

	client := registry.NewClient(5*time.Second, registry.WithBaseURL("pypi", registrySrv.URL))
	fetcher := stats.NewFetcher(client, stats.NewMemoryStore(), stats.DefaultOptions())
	result, err := fetcher.Fetch(context.Background(), cat.List())
	require.NoError(t, err)
	require.Empty(t, result.Warnings)

	table := prebuilt.Generate(result.Records, "python")
	require.NoError(t, prebuilt.ReplaceRegion(pagePath, "<!-- prebuilt:begin -->", "<!-- prebuilt:end -->", table))

	page, err := os.ReadFile(pagePath)
	require.NoError(t, err)
	require.Contains(t, string(page), "2,500,000")
	require.NotContains(t, string(page), "stale content")
	// numpy outranks scipy.
	require.Less(t, strings.Index(string(page), "numpy"), strings.Index(string(page), "scipy"))

	// Stage 3: flatten.
	corpusPath := filepath.Join(root, "corpus.txt")
	flatResult, err := flatten.Run(docsRoot, nil, corpusPath)
	require.NoError(t, err)
	require.Equal(t, 2, flatResult.Files)
	require.False(t, flatResult.Unchanged)

	corpus, err := os.ReadFile(corpusPath)
	require.NoError(t, err)
	require.Contains(t, string(corpus), "=== external/guide.md ===")
	require.Contains(t, string(corpus), "=== prebuilt.md ===")

	// A second flatten run against unchanged inputs skips the write.
	second, err := flatten.Run(docsRoot, nil, corpusPath)
	require.NoError(t, err)
	require.True(t, second.Unchanged)

	// A second sync run against the populated destination stays offline.
	again, err := syncJob.Run(context.Background())
	require.NoError(t, err)
	require.True(t, again.Skipped)
}

func buildSnapshot(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}
