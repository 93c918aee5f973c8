package gateway

import (
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wayfarer/internal/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TransportConfig configures the HTTP client used by the gateway.
type TransportConfig struct {
	Timeout time.Duration

	// CacheDir enables a disk backed HTTP cache honouring Cache-Control for
	// GET responses. Requests carrying an Authorization header bypass it.
	CacheDir string

	// MemoryCache enables an in-memory HTTP cache when CacheDir is empty.
	MemoryCache bool

	// Base is the innermost round tripper. Defaults to a clone of http.DefaultTransport.
	Base http.RoundTripper

	// LogRequests logs every network round trip at debug level.
	LogRequests bool
}

// NewHTTPClient builds the client stack: otel instrumentation, an optional
// HTTP cache, then gzip decompression over the base transport.
func NewHTTPClient(cfg TransportConfig) *http.Client {
	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.LogRequests {
		base = logger.NewRequests(base, log.Logger)
	}

	rt := gzhttp.Transport(base)

	var cache httpcache.Cache
	switch {
	case cfg.CacheDir != "":
		cache = diskcache.New(cfg.CacheDir)
	case cfg.MemoryCache:
		cache = httpcache.NewMemoryCache()
	}
	if cache != nil {
		cached := httpcache.NewTransport(cache)
		cached.Transport = rt
		rt = anonymousOnly{cached: cached, direct: rt}
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(rt),
		Timeout:   cfg.Timeout,
	}
}

// anonymousOnly routes requests with credentials around the HTTP cache, which
// keys entries by URL alone.
type anonymousOnly struct {
	cached http.RoundTripper
	direct http.RoundTripper
}

func (a anonymousOnly) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return a.direct.RoundTrip(req)
	}
	return a.cached.RoundTrip(req)
}
