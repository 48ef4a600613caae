// Package proxy exposes the NOAA precipitation raster host through a strict
// same-origin allow-list. Only the daily Stage IV GeoTIFF paths and the
// "current" aliases pass through; everything else is rejected with 403 before
// any upstream request is made.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"lawncast/internal/core"
	"lawncast/internal/types"
)

// allowedPaths are the only upstream paths the proxy will forward.
var allowedPaths = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}/\d{2}/\d{2}/nws_precip_1day_\d{8}_conus\.tif$`),
	regexp.MustCompile(`^current/nws_precip_last24hours_conus\.tif$`),
	regexp.MustCompile(`^current/nws_precip_last\d+hours_conus\.tif$`),
}

// cacheControl is injected on every forwarded response so rasters are cached
// for an hour, matching the upstream's daily publication cadence.
const cacheControl = "public, max-age=3600"

// Handler forwards allow-listed raster requests to the upstream host,
// copying status, content type and content length through unchanged.
type Handler struct {
	upstreamURL string
	client      *http.Client
	logger      *slog.Logger
}

// New creates a raster proxy targeting upstreamURL.
func New(upstreamURL string, timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		upstreamURL: strings.TrimSuffix(upstreamURL, "/"),
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// ServeHTTP implements http.Handler. The request path (relative to the mount
// point) must match the allow-list exactly.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/")
	if !pathAllowed(rel) {
		h.logger.WarnContext(r.Context(), "rejecting raster proxy path", "path", rel)
		core.Error(w, r, types.NewAppError(types.ErrCodeProxyPathForbidden,
			fmt.Sprintf("path %q is not an allowed raster path", rel), nil))
		return
	}

	upstream := h.upstreamURL + "/" + rel
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstream, nil)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected,
			"building upstream request", err))
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		code := types.ErrCodeUpstreamNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			code = types.ErrCodeUpstreamTimeout
		}
		h.logger.WarnContext(r.Context(), "raster upstream request failed",
			"url", upstream, "error", err)
		core.Error(w, r, types.NewAppError(code, "raster upstream unreachable", err))
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// Headers are already written, nothing to send to the client.
		h.logger.WarnContext(r.Context(), "streaming raster body failed",
			"url", upstream, "error", err)
	}
}

func pathAllowed(rel string) bool {
	for _, p := range allowedPaths {
		if p.MatchString(rel) {
			return true
		}
	}
	return false
}
