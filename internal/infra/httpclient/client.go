package httpclient

import (
	"net"
	"net/http"
	"time"

	"github.com/thumbforge/server/internal/infra/config"
)

// New creates a pooled HTTP client for outbound calls (image provider, object storage).
// Zero values in cfg fall back to conservative defaults.
func New(cfg *config.HTTPClientConfig) *http.Client {
	if cfg == nil {
		cfg = &config.HTTPClientConfig{}
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   orDefault(cfg.DialTimeout, 30*time.Second),
			KeepAlive: orDefault(cfg.KeepAlive, 30*time.Second),
		}).DialContext,
		MaxIdleConns:        orDefaultInt(cfg.MaxIdleConns, 100),
		MaxIdleConnsPerHost: orDefaultInt(cfg.MaxIdleConnsPerHost, 20),
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     orDefault(cfg.IdleConnTimeout, 90*time.Second),
		TLSHandshakeTimeout: orDefault(cfg.TLSHandshakeTimeout, 10*time.Second),
		ForceAttemptHTTP2:   true,
	}

	// ResponseTimeout bounds a whole provider call, including reading the image body.
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.ResponseTimeout,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func orDefaultInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
