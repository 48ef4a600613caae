package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawncast/internal/types"
)

func TestPathAllowed(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"2025/06/09/nws_precip_1day_20250609_conus.tif", true},
		{"current/nws_precip_last24hours_conus.tif", true},
		{"current/nws_precip_last48hours_conus.tif", true},
		{"current/nws_precip_last7hours_conus.tif", true},
		{"2025/06/09/nws_precip_1day_20250609_conus.tiff", false},
		{"2025/6/9/nws_precip_1day_20250609_conus.tif", false},
		{"2025/06/09/nws_precip_1day_20250609_conus.tif/extra", false},
		{"../etc/passwd", false},
		{"current/other_file.tif", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, pathAllowed(tt.path))
		})
	}
}

func TestServeHTTP_ForwardsAllowedPath(t *testing.T) {
	tiff := []byte("II*\x00fake-raster-bytes")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2025/06/09/nws_precip_1day_20250609_conus.tif", r.URL.Path)
		w.Header().Set("Content-Type", "image/tiff")
		w.Write(tiff)
	}))
	defer upstream.Close()

	h := New(upstream.URL, 2*time.Second, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/2025/06/09/nws_precip_1day_20250609_conus.tif", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/tiff", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
	assert.Equal(t, tiff, w.Body.Bytes())
}

func TestServeHTTP_RejectsDisallowedPathWithout403Upstream(t *testing.T) {
	upstreamCalled := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalled = true
	}))
	defer upstream.Close()

	h := New(upstream.URL, 2*time.Second, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secrets/admin.tif", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeProxyPathForbidden))
	assert.False(t, upstreamCalled, "disallowed paths never reach the upstream")
}

func TestServeHTTP_ForwardsUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	h := New(upstream.URL, 2*time.Second, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/current/nws_precip_last24hours_conus.tif", nil))

	assert.Equal(t, http.StatusNotFound, w.Code, "upstream status passes through unchanged")
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
}

func TestServeHTTP_UpstreamUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()

	h := New(upstream.URL, 2*time.Second, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/current/nws_precip_last24hours_conus.tif", nil))

	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeUpstreamNetwork))
}
