package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "git.home.luguber.info/inful/docsmith/internal/errors"
)

func TestDownloadsPyPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/packages/pydantic-settings/recent", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"last_day":10,"last_month":12345}}`))
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithBaseURL(SchemePyPI, srv.URL))
	n, err := c.Downloads(context.Background(), SchemePyPI, "pydantic-settings")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), n)
}

func TestDownloadsNPM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/downloads/point/last-month/@pydantic/ui", r.URL.Path)
		_, _ = w.Write([]byte(`{"downloads":777,"package":"@pydantic/ui"}`))
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithBaseURL(SchemeNPM, srv.URL))
	n, err := c.Downloads(context.Background(), SchemeNPM, "@pydantic/ui")
	require.NoError(t, err)
	assert.Equal(t, int64(777), n)
}

func TestDownloadsCrates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"crate":{"recent_downloads":42}}`))
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithBaseURL(SchemeCrates, srv.URL))
	n, err := c.Downloads(context.Background(), SchemeCrates, "pydantic-core")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestDownloadsZeroIsGenuine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"last_month":0}}`))
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithBaseURL(SchemePyPI, srv.URL))
	n, err := c.Downloads(context.Background(), SchemePyPI, "dormant-pkg")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestServerErrorsAreRetryable(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c := NewClient(time.Second, WithBaseURL(SchemePyPI, srv.URL))
		_, err := c.Downloads(context.Background(), SchemePyPI, "x")
		srv.Close()
		require.Error(t, err, "status %d", status)
		assert.True(t, apperrors.IsRetryable(err), "status %d should be retryable", status)
	}
}

func TestNotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithBaseURL(SchemePyPI, srv.URL))
	_, err := c.Downloads(context.Background(), SchemePyPI, "gone")
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestUnknownScheme(t *testing.T) {
	c := NewClient(time.Second)
	_, err := c.Downloads(context.Background(), "sourceforge", "x")
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryRegistry))
	assert.False(t, c.Supported("sourceforge"))
	assert.True(t, c.Supported(SchemePyPI))
}
