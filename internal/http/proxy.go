package http

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http/httpproxy"

	"github.com/rescale/rescale-qr/internal/config"
	"github.com/rescale/rescale-qr/internal/constants"
)

const defaultProxyPort = 8080

// proxyRoute is the resolved proxy setup for one client.
type proxyRoute struct {
	mode    string   // no-proxy, system, basic or ntlm
	url     *url.URL // explicit proxy, nil for no-proxy and system
	noProxy string
}

// resolveProxy validates cfg's proxy mode. An explicit mode without a host
// degrades to a direct connection with a warning rather than failing every
// request.
func resolveProxy(cfg *config.Config) (proxyRoute, error) {
	mode := strings.ToLower(cfg.ProxyMode)
	switch mode {
	case "", "no-proxy":
		return proxyRoute{mode: "no-proxy"}, nil
	case "system":
		return proxyRoute{mode: mode}, nil
	case "basic", "ntlm":
		if cfg.ProxyHost == "" {
			log.Warn().Str("mode", mode).Msg("Proxy host missing, connecting directly")
			return proxyRoute{mode: "no-proxy"}, nil
		}
		if mode == "basic" && cfg.ProxyUser != "" && cfg.ProxyPassword == "" {
			log.Warn().Msg("Proxy user set without a password, proxy auth disabled")
		}
		return proxyRoute{mode: mode, url: buildProxyURL(cfg), noProxy: cfg.NoProxy}, nil
	default:
		return proxyRoute{}, fmt.Errorf("unsupported proxy mode: %s", cfg.ProxyMode)
	}
}

// active reports whether any request may go through a proxy.
func (r proxyRoute) active() bool {
	switch r.mode {
	case "no-proxy":
		return false
	case "system":
		cfg := httpproxy.FromEnvironment()
		return cfg.HTTPProxy != "" || cfg.HTTPSProxy != ""
	default:
		return true
	}
}

// proxyFunc returns the Transport.Proxy function for the route.
func (r proxyRoute) proxyFunc() func(*nethttp.Request) (*url.URL, error) {
	switch {
	case r.mode == "system":
		return nethttp.ProxyFromEnvironment
	case r.url == nil:
		return nil
	case r.noProxy == "":
		return nethttp.ProxyURL(r.url)
	}
	return proxyFuncWithBypass(r.url, r.noProxy)
}

// ConfigureHTTPClient returns a client honoring the proxy settings in cfg.
func ConfigureHTTPClient(cfg *config.Config) (*nethttp.Client, error) {
	route, err := resolveProxy(cfg)
	if err != nil {
		return nil, err
	}

	transport := &nethttp.Transport{
		Proxy: route.proxyFunc(),
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}

	client := &nethttp.Client{Transport: transport, Timeout: constants.DefaultRequestTimeout}
	if route.mode == "ntlm" {
		client.Transport = ntlmssp.Negotiator{RoundTripper: transport}
	}
	return client, nil
}

// buildProxyURL returns http://host:port, with credentials only when both
// user and password are set.
func buildProxyURL(cfg *config.Config) *url.URL {
	port := cfg.ProxyPort
	if port == 0 {
		port = defaultProxyPort
	}
	u := &url.URL{Scheme: "http", Host: net.JoinHostPort(cfg.ProxyHost, fmt.Sprint(port))}
	if cfg.ProxyUser != "" && cfg.ProxyPassword != "" {
		u.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPassword)
	}
	return u
}

// proxyFuncWithBypass proxies every request except those matching the
// NO_PROXY-style list (hosts, .domains, *.domains, CIDRs). Archives on the
// hospital network are usually listed here.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) func(*nethttp.Request) (*url.URL, error) {
	match := (&httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}).ProxyFunc()

	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := match(req.URL)
		if result == nil {
			log.Debug().Str("host", req.URL.Host).Msg("Proxy bypassed")
		}
		return result, err
	}
}

// NeedsProxyPassword reports whether the CLI should prompt for a proxy
// password: an authenticating mode with a user but no password.
func NeedsProxyPassword(cfg *config.Config) bool {
	mode := strings.ToLower(cfg.ProxyMode)
	if mode != "basic" && mode != "ntlm" {
		return false
	}
	return cfg.ProxyUser != "" && cfg.ProxyPassword == ""
}
