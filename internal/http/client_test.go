package http

import (
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	ntlmssp "github.com/Azure/go-ntlmssp"

	"github.com/rescale/rescale-qr/internal/config"
)

func TestConfigureHTTPClient_Modes(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		host     string
		wantNTLM bool
		wantErr  bool
	}{
		{"no proxy", "no-proxy", "", false, false},
		{"system", "system", "", false, false},
		{"basic", "basic", "proxy.corp", false, false},
		{"basic without host falls back", "basic", "", false, false},
		{"ntlm", "ntlm", "proxy.corp", true, false},
		{"unsupported", "socks", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.ProxyMode = tt.mode
			cfg.ProxyHost = tt.host

			client, err := ConfigureHTTPClient(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ConfigureHTTPClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			_, isNTLM := client.Transport.(ntlmssp.Negotiator)
			if isNTLM != tt.wantNTLM {
				t.Errorf("NTLM transport = %v, want %v", isNTLM, tt.wantNTLM)
			}
		})
	}
}

func TestBuildProxyURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProxyHost = "proxy.corp"
	cfg.ProxyUser = "alice"

	u := buildProxyURL(cfg)
	if u.Host != "proxy.corp:8080" {
		t.Errorf("Host = %q, want proxy.corp:8080", u.Host)
	}
	if u.User != nil {
		t.Error("user info should be omitted without a password")
	}

	cfg.ProxyPassword = "pw"
	cfg.ProxyPort = 3128
	u = buildProxyURL(cfg)
	if u.Host != "proxy.corp:3128" || u.User == nil {
		t.Errorf("buildProxyURL() = %v", u)
	}
}

func TestNeedsProxyPassword(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProxyMode = "basic"
	cfg.ProxyUser = "alice"
	if !NeedsProxyPassword(cfg) {
		t.Error("basic proxy with user and no password should need a password")
	}
	cfg.ProxyPassword = "pw"
	if NeedsProxyPassword(cfg) {
		t.Error("password already set")
	}
	cfg.ProxyMode = "system"
	cfg.ProxyPassword = ""
	if NeedsProxyPassword(cfg) {
		t.Error("system mode never prompts")
	}
}

func TestNewRetryClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(nethttp.StatusOK)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.HTTPRetries = 1

	client, err := NewRetryClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewRetryClient() error = %v", err)
	}
	req, _ := nethttp.NewRequestWithContext(context.Background(), "GET", srv.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestNewRetryClient_NoRetriesByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		calls.Add(1)
		w.WriteHeader(nethttp.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewRetryClient(config.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewRetryClient() error = %v", err)
	}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != nethttp.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", resp.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1", got)
	}
}
