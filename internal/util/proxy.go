package util

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProxyConfig overrides the environment proxy settings for one backend.
type ProxyConfig struct {
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// NewProxyFunc creates a proxy function based on configuration.
// If no proxy URLs are provided, falls back to environment variables.
func NewProxyFunc(cfg ProxyConfig) func(*http.Request) (*url.URL, error) {
	if cfg.HTTPProxy == "" && cfg.HTTPSProxy == "" {
		return http.ProxyFromEnvironment
	}

	return func(req *http.Request) (*url.URL, error) {
		if bypassProxy(req.URL.Hostname(), cfg.NoProxy) {
			return nil, nil
		}
		if req.URL.Scheme == "https" && cfg.HTTPSProxy != "" {
			return url.Parse(cfg.HTTPSProxy)
		}
		if cfg.HTTPProxy != "" {
			return url.Parse(cfg.HTTPProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}

// NewHTTPClient builds the client used for JSON backends. Requests still carry
// their own context, so the client timeout is only an upper bound.
func NewHTTPClient(timeout time.Duration, proxy ProxyConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = NewProxyFunc(proxy)
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func bypassProxy(host, noProxy string) bool {
	if noProxy == "" || host == "" {
		return false
	}
	for _, entry := range strings.Split(noProxy, ",") {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
		case entry == "*", entry == host:
			return true
		case strings.HasPrefix(entry, ".") && strings.HasSuffix(host, entry):
			return true
		}
	}
	return false
}
